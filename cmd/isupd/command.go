// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rbmk-project/censordetect/closepool"
	"github.com/rbmk-project/censordetect/internal/logging"
	"github.com/rbmk-project/censordetect/isup"
	"github.com/rbmk-project/censordetect/netcore"
	"github.com/rbmk-project/censordetect/platform"
	"github.com/spf13/cobra"
)

// shutdownTimeout is the time we wait for pending requests.
const shutdownTimeout = 45 * time.Second

// options contains the command line options.
type options struct {
	allowPrivate bool
	endpoint     string
	logFile      string
	logFormat    string
	metricsAddr  string
	timeout      time.Duration
	verbose      bool
}

func envOr(name, value string) string {
	if env := os.Getenv(name); env != "" {
		return env
	}
	return value
}

func newCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "isupd",
		Short:        "Serve the reachability oracle",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, nil)
		},
	}
	flags := cmd.Flags()
	flags.BoolVar(&opts.allowPrivate, "allow-private", false,
		"Allow probing loopback, private and link-local addresses")
	flags.StringVar(&opts.endpoint, "endpoint", envOr("ISUPD_ENDPOINT", "127.0.0.1:8338"), "API endpoint")
	flags.StringVar(&opts.logFile, "log-file", envOr("ISUPD_LOG_FILE", ""),
		"Write rotated logs to the given file instead of the standard error")
	flags.StringVar(&opts.logFormat, "log-format", envOr("ISUPD_LOG_FORMAT", "json"), "Log format: json or text")
	flags.StringVar(&opts.metricsAddr, "prometheus", envOr("ISUPD_PROMETHEUS", "127.0.0.1:9091"),
		"Prometheus endpoint")
	flags.DurationVar(&opts.timeout, "timeout", isup.DefaultTimeout, "Timeout of each probe")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logs")
	return cmd
}

// run serves until ctx is done. When ready is not nil, run posts
// the API address to it once listening.
func run(ctx context.Context, opts *options, ready chan<- string) error {
	var pool closepool.Pool
	defer pool.Close()

	logger, closer, err := logging.New(&logging.Options{
		File:    opts.logFile,
		Format:  opts.logFormat,
		Verbose: opts.verbose,
	})
	if err != nil {
		return err
	}
	pool.Add(closer)

	netx := netcore.NewNetwork()
	netx.Logger = logger
	if !opts.allowPrivate {
		netx.DialContextFunc = isup.NewDialer().DialContext
	}
	client := &platform.Client{Logger: logger, Network: netx}
	pool.Add(client)

	reg := prometheus.NewRegistry()
	handler := isup.NewHandler(client)
	handler.AllowPrivate = opts.allowPrivate
	handler.Logger = logger
	handler.Metrics = isup.NewMetrics(reg)
	handler.Timeout = opts.timeout

	apiSrv, apiAddr, err := listenAndServe(opts.endpoint, isup.NewRouter(handler), logger)
	if err != nil {
		return err
	}
	promMux := http.NewServeMux()
	promMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	promSrv, _, err := listenAndServe(opts.metricsAddr, promMux, logger)
	if err != nil {
		apiSrv.Close()
		return err
	}

	if ready != nil {
		ready <- apiAddr
	}
	<-ctx.Done()
	logger.Info("isupdShutdown", slog.Any("err", context.Cause(ctx)))

	var wg sync.WaitGroup
	for _, srv := range []*http.Server{apiSrv, promSrv} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}
	wg.Wait()
	return nil
}

// listenAndServe serves in the background and returns the server
// along with the address it is listening at.
func listenAndServe(address string, handler http.Handler, logger *slog.Logger) (*http.Server, string, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, "", err
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("serveDone", slog.Any("err", err))
		}
	}()
	logger.Info("serveStart", slog.String("addr", listener.Addr().String()))
	return srv, listener.Addr().String(), nil
}
