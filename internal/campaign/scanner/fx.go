package scanner

import (
	"context"

	"github.com/adlift/trafficd/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("campaign.scanner",
	fx.Provide(
		ProvideConfig,
		New,
	),
	fx.Invoke(runScanner),
)

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Interval:        cfg.ScanInterval,
		CutoffHour:      cfg.ScanCutoffHour,
		ReconcileWindow: cfg.ReconcileWindow,
		LockTTL:         cfg.ScanLockTTL,
	}
}

func runScanner(lc fx.Lifecycle, s *Scanner) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				s.RunForever(ctx)
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
