package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stevemurr/restdb/handler"
	"github.com/stevemurr/restdb/store"
)

const shutdownTimeout = 5 * time.Second

type serveOptions struct {
	host      string
	port      string
	dataDir   string
	backend   string
	origins   string
	authToken string
	silent    bool
}

func newServeCmd(o *rootOptions) *cobra.Command {
	so := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local database that speaks the REST protocol",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := o.logger(cmd, "restdb-server")

			h, s, err := so.build(log, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer s.Close()

			addr := net.JoinHostPort(so.host, so.port)
			log.Info("restdb server starting", "addr", addr, "store", so.backend, "data", so.dataDir)
			return listen(cmd.Context(), addr, h, log)
		},
	}

	f := cmd.Flags()
	f.StringVar(&so.host, "host", env("HOST", "0.0.0.0"), "Listen host")
	f.StringVar(&so.port, "port", env("PORT", "8080"), "Listen port")
	f.StringVar(&so.dataDir, "data-dir", env("DATA_DIR", "./data"), "Directory for the json and sqlite backends")
	f.StringVar(&so.backend, "backend", env("STORE_BACKEND", "json"), "Store backend (json, sqlite, memory)")
	f.StringVar(&so.origins, "origins", env("ALLOWED_ORIGINS", "*"), "Comma-separated CORS origins")
	f.StringVar(&so.authToken, "auth-token", env("AUTH_TOKEN", ""), "Require ?auth=<token> on data requests")
	f.BoolVar(&so.silent, "silent", false, "Answer every write with 204 and no body")
	return cmd
}

// build assembles the store, the data handler and /metrics. The caller
// owns the returned store.
func (so *serveOptions) build(log hclog.Logger, reg *prometheus.Registry) (http.Handler, store.Store, error) {
	s, err := store.New(so.backend, so.dataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create store (backend=%s): %w", so.backend, err)
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	api := handler.CORS(handler.New(s,
		handler.WithLogger(log.Named("http")),
		handler.WithAuthToken(so.authToken),
		handler.WithSilentWrites(so.silent),
		handler.WithRegisterer(reg),
	), strings.Split(so.origins, ","))
	metrics := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	// No ServeMux here: it would redirect "a//b.json" instead of letting
	// the handler reject it.
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			metrics.ServeHTTP(w, r)
			return
		}
		api.ServeHTTP(w, r)
	}), s, nil
}

// listen serves h on addr until ctx ends, then shuts down gracefully.
func listen(ctx context.Context, addr string, h http.Handler, log hclog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
