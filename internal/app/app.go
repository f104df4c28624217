package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/campus-eats/internal/domain/delivery"
	"github.com/xenking/campus-eats/internal/domain/identity"
	"github.com/xenking/campus-eats/internal/domain/order"
	"github.com/xenking/campus-eats/internal/handler"
	"github.com/xenking/campus-eats/internal/session"
	"github.com/xenking/campus-eats/pkg/health"
	"github.com/xenking/campus-eats/pkg/httpmiddleware"
)

const serviceName = "campus-eats"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))
	ctx = zctx.Base(ctx, lg)

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	if err := loadCatalog(ctx, cfg.Catalog.File, st.meals); err != nil {
		return errors.Wrap(err, "load catalog")
	}

	// Health check service.
	healthSvc := health.New()
	if st.ping != nil {
		healthSvc.AddReadinessCheck(st.backend, health.PingCheck(st.ping), health.WithTimeout(5*time.Second))
	}
	healthSvc.AddLivenessCheck("goroutines", health.GoroutineCountCheck(10000), health.WithTimeout(time.Second))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Domain services.
	allocator, err := delivery.NewAllocator(st.slots, st.kv, delivery.Telemetry{
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create allocator")
	}
	cartCfg := cfg.CartSettings()
	orderService := order.NewService(st.orders, cartCfg.Pricing, m.TracerProvider())

	sessions, err := session.NewManager(session.Config{
		Storage:       st.kv,
		Provider:      identity.NewSimulatedProvider(cfg.Identity.Delay, []byte(cfg.Identity.Pepper)),
		Cart:          cartCfg,
		Orders:        orderService,
		Allocator:     allocator,
		MeterProvider: m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create session manager")
	}
	go sessions.RunPruner(ctx, cfg.Session.PruneInterval, cfg.Session.IdleTimeout)

	// HTTP handlers.
	h := handler.New(
		handler.Config{
			ImageBaseURL:     cfg.ImageBaseURL,
			CurrencyExponent: cfg.Catalog.CurrencyExponent,
		},
		sessions,
		st.meals,
		allocator,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Login and signup wait for the identity provider.
		WriteTimeout:   10*time.Second + cfg.Identity.Delay,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", httpmiddleware.DeviceIDHeader},
				ExposeHeaders:    []string{httpmiddleware.DeviceIDHeader, httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.Device(httpmiddleware.DeviceConfig{Secure: cfg.Session.SecureCookie}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Instrument(serviceName, routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	lg.Info("Starting", zap.String("storage", st.backend))
	return serve(ctx, lg, server, healthSvc, cfg.Graceful)
}
