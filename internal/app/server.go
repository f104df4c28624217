package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/campus-eats/pkg/health"
)

// serve runs srv until ctx is done, then drains it: readiness flips to false,
// load balancers get ReadinessDelay to notice, and in-flight requests get
// ShutdownTimeout to finish.
func serve(ctx context.Context, lg *zap.Logger, srv *http.Server, hs *health.Health, g GracefulConfig) error {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		lg.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		defer hs.Stop()

		hs.SetReady(false)
		if ctx.Err() != nil {
			// Signalled shutdown, not a listener failure.
			lg.Info("Readiness set to false, draining", zap.Duration("delay", g.ReadinessDelay))
			time.Sleep(g.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), g.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", g.ShutdownTimeout))
		if err := srv.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		return nil
	})

	return eg.Wait()
}
