package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/antoniostano/kirana/internal/assistant"
	"github.com/antoniostano/kirana/internal/cart"
	"github.com/antoniostano/kirana/internal/catalog"
	"github.com/antoniostano/kirana/internal/chat"
	"github.com/antoniostano/kirana/internal/completion"
	"github.com/antoniostano/kirana/internal/config"
	"github.com/antoniostano/kirana/internal/conversation"
	"github.com/antoniostano/kirana/internal/httpapi"
	"github.com/antoniostano/kirana/internal/observability"
	"github.com/antoniostano/kirana/internal/order"
	"github.com/antoniostano/kirana/internal/session"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *session.Manager
	Chat     *chat.Service
	Carts    *cart.Manager
	Orders   order.Repository
	Catalog  *catalog.Catalog
	Metrics  *observability.Metrics
	Backend  string

	// Cleanup should be called on shutdown to release external resources (DB, redis).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	metrics.SetInterpretBudget(cfg.InterpretTimeout)
	ordering := cfg.Ordering()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("catalog load failed: %w", err)
	}

	var closers []func() error
	cleanup := func() error {
		var errs []string
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}
	fail := func(err error) (*BuildResult, error) {
		_ = cleanup()
		return nil, err
	}

	turns, err := conversation.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fail(fmt.Errorf("conversation store init failed: %w", err))
	}
	closers = append(closers, turns.Close)

	orders, err := order.NewRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		return fail(fmt.Errorf("order store init failed: %w", err))
	}
	closers = append(closers, orders.Close)

	cartStore, err := cart.NewStore(ctx, cfg.RedisAddr, cfg.CartTTL)
	if err != nil {
		return fail(fmt.Errorf("cart store init failed: %w", err))
	}
	closers = append(closers, cartStore.Close)

	client, err := completion.NewClient(ctx, completion.Config{
		Mode:         cfg.CompletionMode,
		GeminiAPIKey: cfg.GeminiAPIKey,
		GeminiModel:  cfg.GeminiModel,
		HTTPURL:      cfg.CompletionHTTPURL,
		HTTPAPIKey:   cfg.CompletionHTTPAPIKey,
		HTTPModel:    cfg.CompletionHTTPModel,
		HTTPTimeout:  cfg.InterpretTimeout,
		Ordering:     ordering,
	})
	if err != nil {
		return fail(fmt.Errorf("completion client init failed: %w", err))
	}
	logger.Info("completion backend ready", zap.String("backend", client.Name()))

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(s *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
		logger.Info("session expired", zap.String("session_id", s.ID))
	})

	carts := cart.NewManager(cartStore, cat, orders, ordering)
	carts.SetLogger(logger.Named("cart"))
	interpreter := assistant.New(client, assistant.Options{
		Ordering: ordering,
		Timeout:  cfg.InterpretTimeout,
		Logger:   logger.Named("assistant"),
	})
	svc := chat.NewService(sessions, turns, interpreter, carts, cat, chat.Options{
		HistoryWindow: cfg.HistoryWindow,
		Metrics:       metrics,
		Logger:        logger.Named("chat"),
	})

	api := httpapi.New(cfg, httpapi.Deps{
		Sessions: sessions,
		Chat:     svc,
		Carts:    carts,
		Catalog:  cat,
		Orders:   orders,
		Metrics:  metrics,
		Logger:   logger.Named("http"),
		Backend:  client.Name(),
	})

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Sessions: sessions,
		Chat:     svc,
		Carts:    carts,
		Orders:   orders,
		Catalog:  cat,
		Metrics:  metrics,
		Backend:  client.Name(),
		Cleanup:  cleanup,
	}, nil
}
