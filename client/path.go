package client

import (
	"net/url"
	"strings"
)

// normalizePath strips one leading and one trailing slash. Interior
// slashes are kept, so "a//b" is rejected rather than collapsed.
func normalizePath(path string) (string, error) {
	p := strings.TrimPrefix(path, "/")
	p = strings.TrimSuffix(p, "/")
	if strings.Contains(p, "//") {
		return "", &ValidationError{Path: path, Reason: ErrEmptySegment}
	}
	return p, nil
}

// endpoint frames a normalized path as {baseURL}/{path}.json[?auth=token].
func (c *Client) endpoint(path string) string {
	u := c.cfg.BaseURL + "/" + path + ".json"
	if c.cfg.AuthToken != "" {
		u += "?auth=" + url.QueryEscape(c.cfg.AuthToken)
	}
	return u
}

// joinPath appends a child segment to a node path.
func joinPath(parent, child string) string {
	parent = strings.TrimSuffix(parent, "/")
	child = strings.TrimPrefix(child, "/")
	if parent == "" {
		return child
	}
	return parent + "/" + child
}
