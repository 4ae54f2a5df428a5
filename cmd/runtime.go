package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaharia-lab/verimail/internal/config"
	"github.com/shaharia-lab/verimail/internal/dispatch"
	"github.com/shaharia-lab/verimail/internal/eventbus"
	"github.com/shaharia-lab/verimail/internal/metrics"
	"github.com/shaharia-lab/verimail/internal/notification"
	"github.com/shaharia-lab/verimail/internal/storage"
	"github.com/shaharia-lab/verimail/internal/verification"
)

// pipeline is everything a command needs to dispatch messages.
type pipeline struct {
	dispatcher *dispatch.Dispatcher
	deliveries storage.DeliveryLogStore
	bus        eventbus.EventBus
	userDB     *sql.DB
	logDB      *sql.DB
}

// buildPipeline wires the dispatcher from cfg. The user database is opened
// lazily: an unreachable database is logged, not fatal, because mail
// delivery does not depend on it. m may be nil.
func buildPipeline(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger, m *metrics.Metrics) (*pipeline, error) {
	tc, err := cfg.TransportConfig()
	if err != nil {
		return nil, err
	}
	transport, err := notification.NewTransport(tc)
	if err != nil {
		return nil, err
	}

	enc, err := verification.ParseEncoding(cfg.TokenEncoding)
	if err != nil {
		return nil, err
	}
	links, err := verification.NewComposer(cfg.LinkBase(), enc)
	if err != nil {
		return nil, err
	}

	p := &pipeline{}

	p.userDB, err = storage.OpenPostgres(cfg.PostgresConfig())
	if err != nil {
		return nil, err
	}
	if err := storage.Ping(ctx, p.userDB, cfg.DBConnectTimeout); err != nil {
		logger.Warn("user database unreachable at startup; delivery status updates will fail until it recovers",
			"host", cfg.DatabaseHost(), "error", err)
	}
	recorder, err := storage.NewSQLUserStore(p.userDB, cfg.DBTable, storage.DialectPostgres)
	if err != nil {
		_ = p.Close()
		return nil, err
	}

	var fresh bool
	p.logDB, fresh, err = storage.NewSQLiteDB(cfg.DeliveryLogPath())
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("opening delivery log: %w", err)
	}
	if fresh {
		logger.Info("created delivery log", "path", cfg.DeliveryLogPath())
	}
	p.deliveries = storage.NewSQLiteDeliveryLogStore(p.logDB)

	p.bus = eventbus.New(0, logger)
	p.bus.Subscribe(notification.NewDeliveryLogHandler(p.deliveries, logger).Handle)

	p.dispatcher, err = dispatch.New(dispatch.Config{
		Links: links,
		Mail: notification.Composer{
			From:    cfg.FromAddress(),
			Subject: cfg.EmailSubject,
			LinkTTL: cfg.LinkTTL,
		},
		Transport:     transport,
		Recorder:      recorder,
		Bus:           p.bus,
		Metrics:       m,
		Logger:        logger,
		SendTimeout:   cfg.SendTimeout,
		RecordTimeout: cfg.RecordTimeout,
	})
	if err != nil {
		_ = p.Close()
		return nil, err
	}

	logger.Info("dispatcher ready",
		"transport", transport.Name(), "table", cfg.DBTable, "token_encoding", string(enc))
	return p, nil
}

// Close drains the event bus before closing the databases so queued
// delivery log writes land.
func (p *pipeline) Close() error {
	if p.bus != nil {
		p.bus.Close()
	}
	var errs []error
	if p.logDB != nil {
		errs = append(errs, p.logDB.Close())
	}
	if p.userDB != nil {
		errs = append(errs, p.userDB.Close())
	}
	return errors.Join(errs...)
}
