// Package handler serves a store.Store over the path-addressed JSON
// protocol: every location of the tree is reachable as /{path}.json.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stevemurr/restdb/store"
)

// Handler holds the server dependencies and registers routes.
type Handler struct {
	store    store.Store
	mux      *http.ServeMux
	log      hclog.Logger
	token    string
	silent   bool
	reg      prometheus.Registerer
	requests *prometheus.CounterVec
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the request logger.
func WithLogger(l hclog.Logger) Option {
	return func(h *Handler) {
		h.log = l
	}
}

// WithAuthToken requires ?auth=<token> on every data request.
func WithAuthToken(token string) Option {
	return func(h *Handler) {
		h.token = token
	}
}

// WithSilentWrites answers every write with 204 and no body, as if each
// request carried ?print=silent.
func WithSilentWrites(silent bool) Option {
	return func(h *Handler) {
		h.silent = silent
	}
}

// WithRegisterer counts requests by method and status on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(h *Handler) {
		h.reg = reg
	}
}

// New creates a Handler and wires up all routes.
func New(s store.Store, opts ...Option) *Handler {
	h := &Handler{store: s, mux: http.NewServeMux(), log: hclog.NewNullLogger()}
	for _, opt := range opts {
		opt(h)
	}
	if h.reg != nil {
		h.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "restdb",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Requests served by method and status code",
		}, []string{"method", "code"})
		h.reg.MustRegister(h.requests)
	}
	h.routes()
	return h
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	if h.requests != nil {
		sw.onHeader = func(status int) {
			h.requests.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
		}
	}

	start := time.Now()
	// Data paths bypass the mux so that "a//b.json" is rejected instead of
	// being redirected to its cleaned form.
	if strings.HasSuffix(r.URL.Path, ".json") {
		h.node(sw, r)
	} else {
		h.mux.ServeHTTP(sw, r)
	}
	h.log.Debug("request", "method", r.Method, "path", r.URL.Path, "status", sw.status,
		"elapsed", time.Since(start))
}

func (h *Handler) routes() {
	h.mux.HandleFunc("GET /health", h.health)
	h.mux.HandleFunc("/", h.notFound)
}

// ---------- helpers ----------

// statusWriter records the status and counts the response before it
// reaches the client.
type statusWriter struct {
	http.ResponseWriter
	status   int
	onHeader func(status int)
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	if w.onHeader != nil {
		w.onHeader(status)
	}
	w.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

var errEmptySegment = errors.New("invalid path: contains empty segments")

// parsePath turns "/a/b.json" into ["a", "b"]. ok is false when the path
// does not carry the .json suffix.
func parsePath(urlPath string) (segments []string, ok bool, err error) {
	if !strings.HasSuffix(urlPath, ".json") {
		return nil, false, nil
	}
	p := strings.TrimPrefix(strings.TrimSuffix(urlPath, ".json"), "/")
	if p == "" {
		return nil, true, nil
	}
	segments = strings.Split(p, "/")
	for _, seg := range segments {
		if seg == "" {
			return nil, true, errEmptySegment
		}
	}
	return segments, true, nil
}

// ---------- status endpoints ----------

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}

// ---------- data endpoints ----------

func (h *Handler) node(w http.ResponseWriter, r *http.Request) {
	path, ok, err := parsePath(r.URL.Path)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if h.token != "" && r.URL.Query().Get("auth") != h.token {
		writeError(w, http.StatusUnauthorized, "Permission denied")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	silent := h.silent || r.URL.Query().Get("print") == "silent"

	switch r.Method {
	case http.MethodGet:
		h.doGet(w, path)
	case http.MethodPut:
		h.doPut(w, r, path, silent)
	case http.MethodPost:
		h.doPost(w, r, path, silent)
	case http.MethodPatch:
		h.doPatch(w, r, path, silent)
	case http.MethodDelete:
		h.doDelete(w, path, silent)
	default:
		w.Header().Set("Allow", "GET, PUT, POST, PATCH, DELETE")
		writeError(w, http.StatusMethodNotAllowed, fmt.Sprintf("method %s not allowed", r.Method))
	}
}

// ---------- core logic ----------

func (h *Handler) doGet(w http.ResponseWriter, path []string) {
	v, err := h.store.Get(path)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) doPut(w http.ResponseWriter, r *http.Request, path []string, silent bool) {
	var incoming any
	if err := readJSON(r, &incoming); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := h.store.Set(path, incoming); err != nil {
		h.fail(w, err)
		return
	}
	h.written(w, incoming, silent)
}

func (h *Handler) doPost(w http.ResponseWriter, r *http.Request, path []string, silent bool) {
	var incoming any
	if err := readJSON(r, &incoming); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	name, err := h.store.Push(path, incoming)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.written(w, map[string]string{"name": name}, silent)
}

func (h *Handler) doPatch(w http.ResponseWriter, r *http.Request, path []string, silent bool) {
	var fields map[string]any
	if err := readJSON(r, &fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if fields == nil {
		writeError(w, http.StatusBadRequest, "PATCH body must be an object")
		return
	}
	if err := h.store.Update(path, fields); err != nil {
		h.fail(w, err)
		return
	}
	h.written(w, fields, silent)
}

func (h *Handler) doDelete(w http.ResponseWriter, path []string, silent bool) {
	if err := h.store.Delete(path); err != nil {
		h.fail(w, err)
		return
	}
	h.written(w, nil, silent)
}

func (h *Handler) written(w http.ResponseWriter, v any, silent bool) {
	if silent {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrRootNotObject) || errors.Is(err, store.ErrEmptyField) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.log.Error("store failure", "error", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}
