package refund

import (
	"context"

	"github.com/adlift/trafficd/internal/config"
	"github.com/adlift/trafficd/internal/setting"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("refund",
	fx.Provide(
		ProvideConfig,
		ProvideReporter,
		func(db *gorm.DB) *setting.Store { return setting.NewStore(db) },
		NewWorker,
	),
	fx.Invoke(runWorker),
)

func ProvideConfig(cfg config.Config) Config {
	return Config{
		PopTimeout:       cfg.PopTimeout,
		StandardPriceKey: cfg.StandardPriceKey,
		VideoPriceKey:    cfg.VideoPriceKey,
	}
}

func ProvideReporter(cfg config.Config) TrafficReporter {
	return NewHTTPTrafficReporter(cfg.TrafficAPIBaseURL)
}

func runWorker(lc fx.Lifecycle, worker *Worker) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				worker.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
