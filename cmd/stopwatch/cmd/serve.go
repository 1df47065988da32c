package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/psantana5/stopwatch/internal/report"
	"github.com/psantana5/stopwatch/internal/runner"
	"github.com/psantana5/stopwatch/internal/server"
	"github.com/psantana5/stopwatch/pkg/auth"
	"github.com/psantana5/stopwatch/pkg/logging"
	"github.com/psantana5/stopwatch/pkg/metrics"
	"github.com/psantana5/stopwatch/pkg/ratelimit"
	"github.com/psantana5/stopwatch/pkg/shutdown"
	"github.com/psantana5/stopwatch/pkg/tlsutil"
	"github.com/psantana5/stopwatch/pkg/tracing"
)

var (
	serveLabel     string
	serveKill      bool
	serveMaxRuns   int
	serveGenAPIKey bool
)

// serveListening receives the bound address once the endpoint is up. Tests
// use it to find the port when --addr ends in :0.
var serveListening func(addr net.Addr)

var serveCmd = &cobra.Command{
	Use:   "serve [flags] -- <command> [args...]",
	Short: "Time a command periodically and expose the results over HTTP",
	Long: `Serve runs a command every --interval and exposes the measurements on
--addr. With --api-key (or auth.api_keys) every route except /health needs
"Authorization: Bearer <key>" or "X-API-Key: <key>".

  GET /metrics   Prometheus metrics
  GET /health    liveness and sample counts
  GET /last      the most recent sample
  GET /timeouts  recent runs that exceeded --timeout
  GET /uptime    how long the endpoint has been up

Example:
  stopwatch serve --interval 30s -- curl -s -o /dev/null https://example.com
  stopwatch serve --tls --gen-cert --cert certs/sw.crt --key certs/sw.key -- ./healthcheck.sh`,
	Args: cobra.MinimumNArgs(1),
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	addPolicyFlags(serveCmd.Flags())
	serveCmd.Flags().StringVarP(&serveLabel, "label", "l", "", "label for the samples (default is the command name)")
	serveCmd.Flags().Duration("timeout", 0, "mark runs longer than this as timed out (0 disables)")
	serveCmd.Flags().BoolVar(&serveKill, "kill", false, "kill the command once --timeout has passed")
	serveCmd.Flags().Duration("interval", 30*time.Second, "time between runs")
	serveCmd.Flags().String("addr", ":9464", "listen address of the HTTP endpoint")
	serveCmd.Flags().IntVar(&serveMaxRuns, "max-runs", 0, "stop after this many runs (0 runs until interrupted)")
	serveCmd.Flags().Bool("log-file", false, "also write logs under /var/log/stopwatch (or ./logs)")

	serveCmd.Flags().Bool("tls", false, "serve HTTPS")
	serveCmd.Flags().String("cert", "", "TLS certificate file")
	serveCmd.Flags().String("key", "", "TLS key file")
	serveCmd.Flags().String("ca", "", "CA certificate for client verification")
	serveCmd.Flags().Bool("client-auth", false, "require client certificates signed by --ca")
	serveCmd.Flags().Bool("gen-cert", false, "generate a self-signed certificate when --cert/--key are missing")

	serveCmd.Flags().StringSlice("api-key", nil, "API key accepted by the endpoint (repeatable)")
	serveCmd.Flags().BoolVar(&serveGenAPIKey, "gen-api-key", false, "generate an API key and print it on startup")
	serveCmd.Flags().Float64("rate-limit", 0, "requests per second allowed per client (0 disables)")
	serveCmd.Flags().Int("burst", 10, "burst size of --rate-limit")
	serveCmd.Flags().StringSlice("trusted-proxy", nil, "proxy address whose X-Forwarded-For is used for --rate-limit (repeatable)")
}

func runServe(cmd *cobra.Command, args []string) error {
	policy, err := cfg.Policy()
	if err != nil {
		return err
	}

	log := logger.WithPrefix("[serve] ")
	if cfg.Log.File {
		fileLogger, err := logging.NewFileLogger("stopwatch", "serve", cfg.LogLevel(), cfg.Log.JSON)
		if err != nil {
			return err
		}
		log = fileLogger
	}

	mgr := shutdown.New(10*time.Second, log)
	mgr.Register(shutdown.CloseResource(log, "log file"))

	recorder, err := metrics.NewRecorder(prometheus.NewRegistry())
	if err != nil {
		return err
	}

	tracer, err := tracing.InitTracer(cmd.Context(), tracingConfig(), log)
	if err != nil {
		return err
	}
	mgr.Register(tracer.Shutdown)

	keys, err := serveKeys(cmd)
	if err != nil {
		return err
	}
	var limiter *ratelimit.Limiter
	if cfg.Auth.RateLimit > 0 {
		limiter = ratelimit.NewLimiter(cfg.Auth.RateLimit, cfg.Auth.Burst)
	}

	timeouts := report.NewTimeoutLog(50)
	srv := server.New(server.Config{
		Recorder: recorder,
		Timeouts: timeouts,
		Tracer:   tracer,
		Logger:   log,
		Policy:   policy,
		Keys:     keys,
		Limiter:  limiter,

		TrustedProxies: cfg.Auth.TrustedProxies,
	})

	tlsConfig, err := serveTLSConfig(log)
	if err != nil {
		return err
	}

	httpSrv := srv.HTTPServer(cfg.Metrics.Addr, tlsConfig)
	ln, err := net.Listen("tcp", cfg.Metrics.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Metrics.Addr, err)
	}
	mgr.Register(shutdown.StopHTTPServer(httpSrv, "metrics"))

	go func() {
		var err error
		if tlsConfig != nil {
			err = httpSrv.ServeTLS(ln, "", "")
		} else {
			err = httpSrv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", map[string]interface{}{"error": err.Error()})
			mgr.Trigger()
		}
	}()
	log.Info("serving", map[string]interface{}{"addr": ln.Addr().String(), "tls": tlsConfig != nil})
	if serveListening != nil {
		serveListening(ln.Addr())
	}

	go mgr.Wait()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go func() {
		<-mgr.Done()
		cancel()
	}()

	r := &runner.Runner{
		Policy:   policy,
		Timeout:  cfg.Timer.Timeout,
		Kill:     serveKill,
		Stdout:   cmd.OutOrStdout(),
		Stderr:   cmd.ErrOrStderr(),
		Logger:   log,
		Recorder: recorder,
		Timeouts: timeouts,
		Tracer:   tracer,
	}

	runErr := serveLoop(ctx, r, srv, limiter, log, args)
	mgr.Trigger()
	if failed := mgr.Shutdown(); failed > 0 {
		return fmt.Errorf("%d shutdown steps failed", failed)
	}
	return runErr
}

// serveLoop runs the command until ctx is done or --max-runs is reached.
// A command that cannot be started ends the loop.
func serveLoop(ctx context.Context, r *runner.Runner, srv *server.Server, limiter *ratelimit.Limiter, log *logging.Logger, args []string) error {
	ticker := time.NewTicker(cfg.Metrics.Interval)
	defer ticker.Stop()

	for runs := 1; ; runs++ {
		sample, err := r.Run(ctx, serveLabel, args[0], args[1:])
		if sample != nil && ctx.Err() == nil {
			srv.Record(sample)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if rotated, err := log.RotateIfNeeded(cfg.Log.MaxSize); err != nil {
			log.Warn("log rotation failed", map[string]interface{}{"error": err.Error()})
		} else if rotated {
			log.Debug("log file rotated")
		}
		if limiter != nil {
			if dropped := limiter.Cleanup(10 * time.Minute); dropped > 0 {
				log.Debug("forgot idle clients", map[string]interface{}{"count": dropped})
			}
		}

		if serveMaxRuns > 0 && runs >= serveMaxRuns {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// serveKeys returns nil when neither configured nor generated keys exist.
func serveKeys(cmd *cobra.Command) (*auth.KeyStore, error) {
	if len(cfg.Auth.APIKeys) == 0 && !serveGenAPIKey {
		return nil, nil
	}

	keys := auth.NewKeyStore(0)
	for i, key := range cfg.Auth.APIKeys {
		if err := keys.Add(key, fmt.Sprintf("configured #%d", i+1)); err != nil {
			return nil, err
		}
	}
	if serveGenAPIKey {
		key, err := keys.Generate("generated")
		if err != nil {
			return nil, err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "api key:", key)
	}
	return keys, nil
}

func serveTLSConfig(log *logging.Logger) (*tls.Config, error) {
	if !cfg.TLS.Enabled {
		return nil, nil
	}
	if cfg.TLS.Generate {
		generated, err := tlsutil.EnsureSelfSigned(cfg.TLS.Cert, cfg.TLS.Key, "stopwatch")
		if err != nil {
			return nil, err
		}
		if generated {
			log.Info("generated self-signed certificate", map[string]interface{}{"cert": cfg.TLS.Cert})
		}
	}
	return tlsutil.LoadServerConfig(cfg.TLS.Cert, cfg.TLS.Key, cfg.TLS.CA, cfg.TLS.ClientAuth)
}
