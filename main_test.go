package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/restdb/client"
	"github.com/stevemurr/restdb/handler"
	"github.com/stevemurr/restdb/store"
)

func emulator(t *testing.T) string {
	t.Helper()
	ts := httptest.NewServer(handler.New(store.NewTree(store.NewMemoryStore())))
	t.Cleanup(ts.Close)
	return ts.URL
}

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func decodeOutput(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestPutGetDelete(t *testing.T) {
	url := emulator(t)

	out, _, err := execute(t, "--url", url, "put", "users/alice", `{"name":"Alice","age":30}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Alice", "age": float64(30)}, decodeOutput(t, out))

	out, _, err = execute(t, "--url", url, "get", "users/alice/age")
	require.NoError(t, err)
	assert.Equal(t, "30\n", out)

	out, _, err = execute(t, "--url", url, "patch", "users/alice", `{"age":31}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"age": float64(31)}, decodeOutput(t, out))

	out, _, err = execute(t, "--url", url, "delete", "users/alice")
	require.NoError(t, err)
	assert.Equal(t, "null\n", out)

	out, _, err = execute(t, "--url", url, "get", "users")
	require.NoError(t, err)
	assert.Equal(t, "null\n", out)
}

func TestPost(t *testing.T) {
	url := emulator(t)

	out, _, err := execute(t, "--url", url, "post", "messages", `{"text":"hi"}`)
	require.NoError(t, err)
	res, ok := decodeOutput(t, out).(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, res["name"])
}

func TestFieldCommands(t *testing.T) {
	url := emulator(t)

	_, _, err := execute(t, "--url", url, "put", "users/bob", `{"name":"Bob"}`)
	require.NoError(t, err)

	out, _, err := execute(t, "--url", url, "set-field", "users/bob", "email", `"bob@example.com"`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Bob", "email": "bob@example.com"}, decodeOutput(t, out))

	out, _, err = execute(t, "--url", url, "field", "users/bob", "email")
	require.NoError(t, err)
	assert.Equal(t, "\"bob@example.com\"\n", out)

	_, _, err = execute(t, "--url", url, "field", "users/bob", "phone")
	assert.Error(t, err)
}

func TestQueryCommand(t *testing.T) {
	url := emulator(t)

	_, _, err := execute(t, "--url", url, "put", "items", `{"a":{"x":3},"b":{"x":7},"c":{"x":5}}`)
	require.NoError(t, err)

	out, _, err := execute(t, "--url", url, "query", "items", "--where", "x>=5")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"b": map[string]any{"x": float64(7)},
		"c": map[string]any{"x": float64(5)},
	}, decodeOutput(t, out))

	out, _, err = execute(t, "--url", url, "query", "items", "--where", "x>1", "--where", "x<5")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": map[string]any{"x": float64(3)}}, decodeOutput(t, out))

	_, _, err = execute(t, "--url", url, "query", "items", "--where", "x=5")
	assert.Error(t, err)
}

func TestInvalidArguments(t *testing.T) {
	url := emulator(t)

	_, _, err := execute(t, "--url", url, "put", "k", "{not json")
	assert.ErrorContains(t, err, "invalid JSON value")

	_, _, err = execute(t, "--url", url, "get", "a//b")
	assert.ErrorIs(t, err, client.ErrEmptySegment)

	_, _, err = execute(t, "--url", url, "get")
	assert.Error(t, err)
}

func TestMissingURL(t *testing.T) {
	t.Setenv("RESTDB_URL", "")

	_, _, err := execute(t, "get", "a")
	assert.ErrorContains(t, err, "invalid client config")
}

func TestConfigLayering(t *testing.T) {
	url := emulator(t)
	path := filepath.Join(t.TempDir(), "restdb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base_url: "+url+"\nmax_retries: 2\n"), 0o644))

	out, _, err := execute(t, "--config", path, "put", "k", `"v"`)
	require.NoError(t, err)
	assert.Equal(t, "\"v\"\n", out)

	t.Setenv("RESTDB_URL", "http://127.0.0.1:1")
	_, _, err = execute(t, "--config", path, "get", "k")
	var nerr *client.NetworkError
	assert.True(t, errors.As(err, &nerr), "environment overrides the config file: %v", err)

	_, _, err = execute(t, "--config", path, "--url", url, "get", "k")
	assert.NoError(t, err, "flags override the environment")

	_, _, err = execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "get", "k")
	assert.Error(t, err)
}

func TestMetricsFlag(t *testing.T) {
	url := emulator(t)

	_, stderr, err := execute(t, "--url", url, "--metrics", "get", "k")
	require.NoError(t, err)
	assert.Contains(t, stderr, `metrics: {"requestCount":1,`)
	assert.Contains(t, stderr, `"errorRate":0`)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 1, exitCode(errors.New("boom")))
	assert.Equal(t, 2, exitCode(&client.HTTPError{StatusCode: 404}))
	assert.Equal(t, 3, exitCode(&client.HTTPError{StatusCode: 503}))
}

func TestServeBuild(t *testing.T) {
	for _, backend := range []string{"memory", "json", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			so := &serveOptions{backend: backend, dataDir: t.TempDir(), origins: "*"}
			h, s, err := so.build(hclog.NewNullLogger(), prometheus.NewRegistry())
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })

			ts := httptest.NewServer(h)
			t.Cleanup(ts.Close)

			cfg := client.DefaultConfig()
			cfg.BaseURL = ts.URL
			c, err := client.New(cfg)
			require.NoError(t, err)

			_, err = c.Put(context.Background(), "a/b", 1)
			require.NoError(t, err)
			got, err := c.Get(context.Background(), "a")
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"b": float64(1)}, got)

			_, err = c.Get(context.Background(), "/x/")
			require.NoError(t, err)

			resp, err := http.Get(ts.URL + "/a//b.json")
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

			resp, err = http.Get(ts.URL + "/metrics")
			require.NoError(t, err)
			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			require.NoError(t, err)
			assert.Contains(t, string(body), `restdb_server_requests_total{code="200",method="PUT"} 1`)
			assert.Contains(t, string(body), "go_goroutines")
		})
	}

	t.Run("unknown backend", func(t *testing.T) {
		so := &serveOptions{backend: "redis", dataDir: t.TempDir(), origins: "*"}
		_, _, err := so.build(hclog.NewNullLogger(), prometheus.NewRegistry())
		assert.ErrorContains(t, err, "failed to create store")
	})
}

func TestServeAuthAndSilent(t *testing.T) {
	so := &serveOptions{backend: "memory", origins: "https://app.example.com", authToken: "s3cret", silent: true}
	h, s, err := so.build(hclog.NewNullLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	defer s.Close()

	ts := httptest.NewServer(h)
	defer ts.Close()

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/k.json?auth=s3cret", strings.NewReader(`"v"`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/k.json")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestListenShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- listen(ctx, "127.0.0.1:0", http.NotFoundHandler(), hclog.NewNullLogger())
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("listen did not return after cancel")
	}
}
