package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/stevemurr/restdb/client"
)

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath  string
	url         string
	token       string
	maxRetries  int
	retryDelay  time.Duration
	timeout     time.Duration
	logLevel    string
	showMetrics bool
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}
	defaults := client.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "restdb",
		Short: "restdb talks to a JSON document database over REST",
		Long: `restdb reads and writes a hierarchical JSON database that exposes every
location as {url}/{path}.json. Failed 5xx requests are retried with
exponential backoff.

Connection settings are taken from --config, then RESTDB_URL and
RESTDB_AUTH_TOKEN, then flags. "restdb serve" runs a local database
speaking the same protocol.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&o.configPath, "config", "", "Path to a YAML client configuration file")
	pf.StringVar(&o.url, "url", env("RESTDB_URL", ""), "Database base URL")
	pf.StringVar(&o.token, "token", env("RESTDB_AUTH_TOKEN", ""), "Auth token sent as ?auth=")
	pf.IntVar(&o.maxRetries, "max-retries", defaults.MaxRetries, "Attempts per call, including the first")
	pf.DurationVar(&o.retryDelay, "retry-delay", defaults.RetryDelay, "Delay before the first retry, doubled after each retry")
	pf.DurationVar(&o.timeout, "timeout", defaults.Timeout, "Per-attempt timeout (0 disables)")
	pf.StringVar(&o.logLevel, "log-level", env("LOG_LEVEL", "info"), "Log level (trace, debug, info, warn, error)")
	pf.BoolVar(&o.showMetrics, "metrics", false, "Print the client metrics to stderr after the call")

	cmd.AddCommand(
		newGetCmd(o),
		newDeleteCmd(o),
		newWriteCmd(o, "put", "Replace the value at a path", (*client.Client).Put),
		newWriteCmd(o, "post", "Append a value under a generated key", (*client.Client).Post),
		newWriteCmd(o, "patch", "Merge the keys of an object into a path", (*client.Client).Patch),
		newFieldCmd(o),
		newSetFieldCmd(o),
		newQueryCmd(o),
		newServeCmd(o),
	)
	return cmd
}

func (o *rootOptions) logger(cmd *cobra.Command, name string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   name,
		Level:  hclog.LevelFromString(o.logLevel),
		Output: cmd.ErrOrStderr(),
	})
}

// clientConfig layers the config file, environment and explicit flags.
func (o *rootOptions) clientConfig(cmd *cobra.Command) (client.Config, error) {
	cfg := client.DefaultConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = client.LoadConfig(o.configPath); err != nil {
			return cfg, err
		}
	}

	flags := cmd.Flags()
	if o.url != "" {
		cfg.BaseURL = o.url
	}
	if o.token != "" {
		cfg.AuthToken = o.token
	}
	if flags.Changed("max-retries") {
		cfg.MaxRetries = o.maxRetries
	}
	if flags.Changed("retry-delay") {
		cfg.RetryDelay = o.retryDelay
	}
	if flags.Changed("timeout") {
		cfg.Timeout = o.timeout
	}
	return cfg, nil
}

func (o *rootOptions) newClient(cmd *cobra.Command) (*client.Client, error) {
	cfg, err := o.clientConfig(cmd)
	if err != nil {
		return nil, err
	}
	return client.New(cfg, client.WithLogger(o.logger(cmd, "restdb")))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(exitCode(err))
	}
}

// exitCode maps HTTP failures to distinct exit codes for scripting.
func exitCode(err error) int {
	switch code := client.StatusCode(err); {
	case code == 0:
		return 1
	case code >= 500:
		return 3
	default:
		return 2
	}
}
