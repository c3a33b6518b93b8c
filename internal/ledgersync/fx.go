package ledgersync

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("ledger.sync",
	fx.Provide(New),
)

// Run starts the background loop with the application and stops it on
// shutdown.
var Run = fx.Invoke(func(lc fx.Lifecycle, w *Worker) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				w.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
			return nil
		},
	})
})
