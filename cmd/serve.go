package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shaharia-lab/verimail/internal/api"
	"github.com/shaharia-lab/verimail/internal/build"
	"github.com/shaharia-lab/verimail/internal/config"
	"github.com/shaharia-lab/verimail/internal/consumer"
	"github.com/shaharia-lab/verimail/internal/logger"
	"github.com/shaharia-lab/verimail/internal/metrics"
	"github.com/shaharia-lab/verimail/internal/scheduler"
	"github.com/shaharia-lab/verimail/internal/server"
	"github.com/shaharia-lab/verimail/internal/telemetry"
)

// NewServeCmd returns the "serve" subcommand: the HTTP push endpoint plus,
// when configured, a Kafka consumer.
func NewServeCmd(opts *rootOptions) *cobra.Command {
	var port int
	var logStderr bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Receive notifications and send verification mail",
		Long: `Start the HTTP push endpoint (POST /api/events) and, when KAFKA_BROKERS
and KAFKA_TOPICS are set, a Kafka consumer. Every delivery is dispatched as
one batch.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			// CLI flags override env config.
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logFile := filepath.Join(cfg.LogDir(), "system.log")
			if err := runServe(cfg, logStderr); err != nil {
				fmt.Fprintf(os.Stderr, "An error occurred. Please check the logs at: %s\n", logFile)
				return err
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 8990, "HTTP server port (overrides PORT env var)")
	cmd.Flags().BoolVar(&logStderr, "log-stderr", false, "Also write structured logs to stderr")
	return cmd
}

func runServe(cfg *config.AppConfig, logStderr bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()
	tel, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceVersion: build.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Registerer:     m.Registry(),
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logOpts := logger.Options{Level: cfg.SlogLevel(), Stderr: logStderr}
	if h := tel.LogHandler(); h != nil {
		logOpts.Extra = append(logOpts.Extra, h)
	}
	sysLogger, logCloser, err := logger.NewSystemLogger(cfg.LogDir(), logOpts)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(sysLogger)

	sysLogger.Info("verimail starting",
		slog.Int("port", cfg.Port),
		slog.String("data_dir", cfg.DataDir),
		slog.String("transport", cfg.MailTransport),
		slog.String("version", build.Version),
		slog.String("commit", build.CommitSHA),
		slog.String("build_date", build.BuildDate),
	)

	p, err := buildPipeline(ctx, cfg, sysLogger, m)
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}
	defer p.Close()
	p.bus.Subscribe(m.HandleEvent)

	sched, err := scheduler.New(scheduler.Config{
		Store:          p.deliveries,
		Logger:         sysLogger,
		Retention:      cfg.DeliveryLogRetention,
		EventPublisher: p.bus,
	})
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = sched.Stop() }()

	srv := server.New(api.New(p.dispatcher, p.deliveries, sysLogger), m.Handler(), cfg.Port, sysLogger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })

	kafkaLine := "disabled"
	if cfg.KafkaEnabled() {
		kc := consumer.Config{Brokers: cfg.KafkaBrokers, Topics: cfg.KafkaTopics, Group: cfg.KafkaGroup}
		client, err := consumer.NewClient(kc)
		if err != nil {
			return err
		}
		defer client.Close()

		checkCtx, checkCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := consumer.CheckTopics(checkCtx, client, cfg.KafkaTopics); err != nil {
			sysLogger.Warn("kafka topic check failed", "error", err)
		}
		checkCancel()

		c := consumer.New(client, p.dispatcher, kc.MaxPollRecords, sysLogger)
		g.Go(func() error { return c.Run(gctx) })
		kafkaLine = strings.Join(cfg.KafkaTopics, ",") + " @ " + strings.Join(cfg.KafkaBrokers, ",")
	}

	printBanner(os.Stdout, build.Version, []bannerLine{
		{"Endpoint", fmt.Sprintf("http://localhost:%d/api/events", cfg.Port)},
		{"Transport", cfg.MailTransport},
		{"Kafka", kafkaLine},
		{"Logs", filepath.Join(cfg.LogDir(), "system.log")},
	})

	return g.Wait()
}
