// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rbmk-project/censordetect/checks"
	"github.com/rbmk-project/censordetect/closepool"
	"github.com/rbmk-project/censordetect/detector"
	"github.com/rbmk-project/censordetect/doh"
	"github.com/rbmk-project/censordetect/errclass"
	"github.com/rbmk-project/censordetect/internal/logging"
	"github.com/rbmk-project/censordetect/localresolver"
	"github.com/rbmk-project/censordetect/metrics"
	"github.com/rbmk-project/censordetect/model"
	"github.com/rbmk-project/censordetect/netcore"
	"github.com/rbmk-project/censordetect/platform"
	"github.com/spf13/cobra"
)

// userOrigin is the origin of the requests for the user URLs.
const userOrigin = "user"

// options contains the command line options.
type options struct {
	jsonOutput   bool
	logFile      string
	logFormat    string
	metricsAddr  string
	oracleURL    string
	referenceURL string
	resolvers    []string
	stub         bool
	timeout      time.Duration
	verbose      bool
}

// envOr returns the value of the environment variable or the default.
func envOr(name, value string) string {
	if env := os.Getenv(name); env != "" {
		return env
	}
	return value
}

func newCommand(stdout io.Writer) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "censordetect [flags] URL...",
		Short:        "Detect which censorship technique blocks the given URLs",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, args, stdout)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.jsonOutput, "json", false, "Write the report as JSON")
	flags.StringVar(&opts.logFile, "log-file", envOr("CENSORDETECT_LOG_FILE", ""),
		"Write rotated logs to the given file instead of the standard error")
	flags.StringVar(&opts.logFormat, "log-format", envOr("CENSORDETECT_LOG_FORMAT", "json"),
		"Log format: json or text")
	flags.StringVar(&opts.metricsAddr, "metrics", envOr("CENSORDETECT_METRICS", ""),
		"Serve Prometheus metrics at the given address")
	flags.StringVar(&opts.oracleURL, "oracle", envOr("CENSORDETECT_ORACLE", detector.DefaultOracleURL),
		"URL of the reachability oracle")
	flags.StringVar(&opts.referenceURL, "reference", envOr("CENSORDETECT_REFERENCE", detector.DefaultReferenceURL),
		"Always-up plain HTTP URL used as baseline")
	flags.StringSliceVar(&opts.resolvers, "resolver", defaultResolvers(),
		"DoH resolver URL (repeatable)")
	flags.BoolVar(&opts.stub, "stub-resolver", false,
		"Query the configured DNS server directly instead of using the system resolver")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "Timeout of each request")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logs")
	return cmd
}

// defaultResolvers returns the resolvers configured in the environment
// or the default ones.
func defaultResolvers() []string {
	if env := os.Getenv("CENSORDETECT_RESOLVERS"); env != "" {
		return strings.Split(env, ",")
	}
	return append([]string{}, doh.DefaultServers...)
}

func run(ctx context.Context, opts *options, URLs []string, stdout io.Writer) error {
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
	client := &platform.Client{Logger: logger, Network: netx}
	pool.Add(client)

	cfg := detector.DefaultConfig()
	cfg.Platform = client
	cfg.Logger = logger
	cfg.OracleURL = opts.oracleURL
	cfg.ReferenceURL = opts.referenceURL
	cfg.Resolvers = opts.resolvers
	cfg.FetchTimeout = opts.timeout
	cfg.LocalResolver = &localresolver.System{Logger: logger, Network: netx}
	if opts.stub {
		cfg.LocalResolver = &localresolver.Stub{Logger: logger}
	}

	rep := newReport()
	detectorOpts := []detector.Option{detector.WithObserver(rep)}
	if opts.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		detectorOpts = append(detectorOpts, detector.WithObserver(metrics.New(reg)))
		srv, err := serveMetrics(opts.metricsAddr, reg, logger)
		if err != nil {
			return err
		}
		pool.AddFunc(func() { srv.Close() })
	}

	d := detector.New(cfg, checks.Default(), detectorOpts...)
	listenCtx, stopListening := context.WithCancel(ctx)
	d.Start(listenCtx, client)

	var wg sync.WaitGroup
	for _, URL := range URLs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rep.addFetch(URL, fetch(ctx, client, URL, opts.timeout))
		}()
	}
	wg.Wait()

	// all the failures are queued by now
	stopListening()
	d.Wait()
	return rep.write(stdout, opts.jsonOutput)
}

// fetch fetches URL on behalf of the user and returns the error class.
func fetch(ctx context.Context, client *platform.Client, URL string, timeout time.Duration) string {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := client.Send(ctx, &model.Request{
		URL:    URL,
		Method: http.MethodGet,
		Origin: userOrigin,
	})
	return errclass.New(err)
}

// serveMetrics serves the metrics in the background.
func serveMetrics(address string, reg *prometheus.Registry, logger *slog.Logger) (*http.Server, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metricsServeDone", slog.Any("err", err))
		}
	}()
	logger.Info("metricsServeStart", slog.String("addr", listener.Addr().String()))
	return srv, nil
}
