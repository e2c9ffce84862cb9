package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/mantle/pkg/config"
	"github.com/cuemby/mantle/pkg/events"
	"github.com/cuemby/mantle/pkg/gateway"
	"github.com/cuemby/mantle/pkg/health"
	"github.com/cuemby/mantle/pkg/log"
	"github.com/cuemby/mantle/pkg/manager"
	"github.com/cuemby/mantle/pkg/metrics"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// flushTimeout bounds the wait for queued progress events on exit
const flushTimeout = 2 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mantle",
	Short: "Mantle - cluster management client for HPC systems",
	Long: `Mantle drives the cluster-management services of an HPC system:
inventory and groups, boot templates, configuration sessions, images and
power control.

It resolves groups to nodes, checks what the caller may touch, fans bulk
requests out in batches and follows long-running operations to the end.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: initLogging,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Mantle version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "", "Config file (default $MANTLE_CONFIG or ~/.config/mantle/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON")
	rootCmd.PersistentFlags().String("metrics-addr", "", "Serve Prometheus metrics on this address while the command runs")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "Output format (table, yaml)")
}

func configPath(cmd *cobra.Command) string {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path
	}
	if path := os.Getenv("MANTLE_CONFIG"); path != "" {
		return path
	}
	return config.DefaultPath()
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath(cmd))
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if jsonLogs, _ := cmd.Flags().GetBool("json-logs"); jsonLogs {
		cfg.Log.JSON = true
	}
	return cfg, nil
}

func initLogging(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log.Init(log.Config{Level: log.Level(cfg.Log.Level), JSONOutput: cfg.Log.JSON})
	return nil
}

// session holds everything a command needs to talk to the cluster
type session struct {
	cfg     *config.Config
	client  *gateway.Client
	mgr     *manager.Manager
	broker  *events.Broker
	metrics *http.Server
}

func newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("no endpoint configured, set one with: mantle config init --endpoint <url>")
	}

	token, err := cfg.ReadToken()
	if err != nil {
		return nil, err
	}

	client, err := gateway.New(cfg.Gateway(token))
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway client: %w", err)
	}

	broker := events.NewBroker()
	broker.Start()

	opts := manager.Options{
		Token:                token,
		Filters:              cfg.Auth.Filters(),
		StatusBatchSize:      cfg.Bulk.StatusBatchSize,
		ComponentBatchSize:   cfg.Bulk.ComponentBatchSize,
		PowerStatusBatchSize: cfg.Bulk.PowerStatusBatchSize,
		MaxConcurrency:       cfg.Bulk.MaxConcurrency,
		TransitionPolicy:     cfg.Poll.Transition.Policy(),
		PowerPolicy:          cfg.Poll.Power.Policy(),
		SessionPolicy:        cfg.Poll.Session.Policy(),
		Events:               broker,
	}
	if cfg.Power.Backend == config.BackendCAPMC {
		opts.LegacyPower = client.LegacyPower("mantle")
	}
	for _, e := range client.Endpoints() {
		opts.Checkers = append(opts.Checkers,
			health.NewHTTPChecker(e.Service, e.URL).WithClient(client.HTTPClient()).WithBearerToken(token))
	}

	mgr, err := manager.New(client, opts)
	if err != nil {
		broker.Stop()
		return nil, err
	}

	s := &session{cfg: cfg, client: client, mgr: mgr, broker: broker}

	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		s.metrics = serveMetrics(addr)
	}
	return s, nil
}

func (s *session) Close() {
	s.broker.Stop()
	if s.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.metrics.Shutdown(ctx)
	}
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Logger.Warn().Err(err).Str("addr", addr).Msg("Metrics server stopped")
		}
	}()
	return srv
}

// followProgress prints progress events to stderr until the returned stop
// function is called
func (s *session) followProgress() func() {
	return followEvents(s.broker, os.Stderr)
}

// followEvents writes every event to w. The returned stop function flushes
// events still queued in the broker before it unsubscribes, so the last
// progress line is not lost.
func followEvents(broker *events.Broker, w io.Writer) func() {
	sub := broker.Subscribe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for e := range sub {
			if e.Attempts > 0 {
				fmt.Fprintf(w, "[%d/%d] %s\n", e.Attempt, e.Attempts, e.Message)
			} else {
				fmt.Fprintf(w, "%s\n", e.Message)
			}
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		if err := broker.Flush(ctx); err != nil {
			log.Logger.Debug().Err(err).Msg("Progress events not flushed")
		}
		broker.Unsubscribe(sub)
		<-done
	}
}

// checkAccess aborts when the caller is not entitled to every group
func (s *session) checkAccess(ctx context.Context, groups []string) error {
	if len(groups) == 0 {
		return nil
	}
	denied, err := s.mgr.CheckAccess(ctx, groups)
	if err != nil {
		return fmt.Errorf("failed to check access: %w", err)
	}
	if len(denied) > 0 {
		return &manager.DeniedError{Groups: denied}
	}
	return nil
}
