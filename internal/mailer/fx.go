package mailer

import (
	"context"

	"github.com/adlift/trafficd/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("mailer",
	fx.Provide(
		ProvideConfig,
		ProvideTransportFactory,
		NewService,
		NewWorker,
	),
	fx.Invoke(runWorker),
)

func ProvideConfig(cfg config.Config) Config {
	return Config{
		PopTimeout:     cfg.PopTimeout,
		SyncAttempts:   cfg.EmailMaxRetries,
		MaxAttempts:    cfg.EmailMaxAttempts,
		Backoff:        cfg.EmailBackoff,
		HealthInterval: cfg.HealthInterval,
	}
}

func ProvideTransportFactory(cfg config.Config) TransportFactory {
	if cfg.SMTPHost == "" {
		return func() Transport { return NoopTransport{} }
	}
	return func() Transport {
		return NewSMTPTransport(TransportConfig{
			Host:               cfg.SMTPHost,
			Port:               cfg.SMTPPort,
			Username:           cfg.SMTPUsername,
			Password:           cfg.SMTPPassword,
			From:               cfg.SMTPFrom,
			MaxConnections:     cfg.SMTPMaxConnections,
			MaxMessagesPerConn: cfg.SMTPMaxMessagesConn,
		})
	}
}

func runWorker(lc fx.Lifecycle, worker *Worker) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			worker.Start(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			worker.Wait()
			return nil
		},
	})
}
