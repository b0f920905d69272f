package client

import "context"

// Node is a handle bound to one path.
type Node struct {
	c    *Client
	path string
}

// Node returns a handle for path. The path is validated on each call.
func (c *Client) Node(path string) *Node {
	return &Node{c: c, path: path}
}

// Path returns the bound path.
func (n *Node) Path() string {
	return n.path
}

// Child returns a handle for a location below this node.
func (n *Node) Child(segment string) *Node {
	return &Node{c: n.c, path: joinPath(n.path, segment)}
}

func (n *Node) Get(ctx context.Context) (any, error) {
	return n.c.Get(ctx, n.path)
}

func (n *Node) Set(ctx context.Context, data any) (any, error) {
	return n.c.Put(ctx, n.path, data)
}

func (n *Node) Update(ctx context.Context, data any) (any, error) {
	return n.c.Patch(ctx, n.path, data)
}

func (n *Node) Delete(ctx context.Context) (any, error) {
	return n.c.Delete(ctx, n.path)
}

// Field fetches the node and returns one of its top-level keys. ok is
// false when the node is missing, is not an object, or lacks the key.
func (n *Node) Field(ctx context.Context, name string) (value any, ok bool, err error) {
	data, err := n.Get(ctx)
	if err != nil {
		return nil, false, err
	}
	obj, isObj := data.(map[string]any)
	if !isObj {
		return nil, false, nil
	}
	value, ok = obj[name]
	return value, ok, nil
}

// SetField reads the node, merges name into the local copy and patches
// only that key. The read and the write are separate requests, so
// concurrent writers on the same node can overwrite each other. The
// merged copy is returned.
func (n *Node) SetField(ctx context.Context, name string, value any) (map[string]any, error) {
	data, err := n.Get(ctx)
	if err != nil {
		return nil, err
	}

	current, ok := data.(map[string]any)
	if !ok {
		current = map[string]any{}
	}
	current[name] = value

	if _, err := n.Update(ctx, map[string]any{name: value}); err != nil {
		return nil, err
	}
	return current, nil
}
