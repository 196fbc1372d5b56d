package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	nethttp "net/http"
	"time"

	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/api"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/auth"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/config"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/dashboard"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/db"
	statushttp "github.com/WailSalutem-Health-Care/telemed-dashboard/internal/http"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/logger"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/messaging"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/reconcile"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/telemetry"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/view"
)

const serviceName = "telemed-dashboard"

var version = "dev"

// app holds everything one dashboard process owns.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	provider   *telemetry.Provider
	jwks       *auth.JWKS
	publisher  *messaging.Publisher
	events     *messaging.Emitter
	database   *sql.DB
	buffer     *view.Buffer
	controller *dashboard.Controller
	server     *nethttp.Server
}

type appOptions struct {
	configPath string
	display    view.Display
	manual     bool
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, serviceName)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &app{cfg: cfg, logger: log, buffer: view.NewBuffer()}

	if cfg.OTELEnabled {
		a.provider, err = telemetry.InitProvider(ctx, telemetry.ConfigFrom(cfg, version), log)
		if err != nil {
			log.Warn("telemetry disabled", zap.Error(err))
		}
	}
	metrics, err := telemetry.InitMetrics()
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	authCfg := auth.ConfigFrom(cfg)
	var kcOpts []auth.KeycloakOption
	if a.jwks, err = auth.NewJWKS(ctx, authCfg.CertsURL(), 0, log); err != nil {
		log.Warn("token signatures will not be verified", zap.String("jwks_url", authCfg.CertsURL()), zap.Error(err))
	} else {
		kcOpts = append(kcOpts, auth.WithVerifier(auth.NewVerifier(authCfg, a.jwks)))
	}
	keycloak := auth.NewKeycloak(authCfg, log, kcOpts...)

	var rules auth.Visibility
	if cfg.VisibilityFile != "" {
		if rules, err = auth.LoadVisibility(cfg.VisibilityFile); err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("load visibility rules: %w", err)
		}
	}

	// The gate resolves roles before it can hand out credentials, so the
	// role lookup uses a client without a token source.
	roles := api.NewClient(cfg.APIBaseURL, nil, log, api.WithMetrics(metrics))
	gate := auth.NewGate(roles, rules, log, auth.WithGateMetrics(metrics))
	gate.Attach(keycloak)
	client := api.NewClient(cfg.APIBaseURL, gate, log, api.WithMetrics(metrics))

	var pub messaging.PublisherInterface
	if cfg.RabbitMQURL != "" {
		if a.publisher, err = messaging.NewPublisher(cfg.RabbitMQURL, log); err != nil {
			log.Warn("dashboard events disabled", zap.Error(err))
		} else {
			pub = a.publisher
		}
	}
	a.events = messaging.NewEmitter(pub, log)

	var journal dashboard.Journal
	if cfg.DatabaseURL != "" {
		if a.database, err = db.Connect(ctx, cfg.DatabaseURL, log); err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("connect journal database: %w", err)
		}
		j := reconcile.NewJournal(a.database, "", log)
		if err := j.EnsureSchema(ctx); err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("prepare journal: %w", err)
		}
		journal = j
	}

	display := view.Display(a.buffer)
	if opts.display != nil {
		display = view.Tee{a.buffer, opts.display}
	}

	a.controller = dashboard.New(gate, keycloak, client, display, dashboard.Options{
		Manual:          opts.manual,
		DoctorID:        api.ID(cfg.DoctorID),
		RefreshInterval: cfg.RefreshInterval,
		VitalsInterval:  cfg.VitalsInterval,
		Metrics:         metrics,
		Events:          a.events,
		Journal:         journal,
		Logger:          log,
	})

	if cfg.StatusAddr != "" {
		router := statushttp.NewStatusRouter(a.buffer, a.controller.Selection(), a.controller, cfg.Origins(), log)
		a.server = &nethttp.Server{
			Addr:              cfg.StatusAddr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("status server listening", zap.String("addr", cfg.StatusAddr))
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
				log.Error("status server failed", zap.Error(err))
			}
		}()
	}
	return a, nil
}

// close releases everything in reverse order of acquisition. It is safe on
// a partially built app.
func (a *app) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Warn("status server shutdown", zap.Error(err))
		}
	}
	if a.controller != nil {
		a.controller.Close()
	}
	if a.events != nil {
		a.events.Wait()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("close publisher", zap.Error(err))
		}
	}
	if a.database != nil {
		_ = a.database.Close()
	}
	if a.jwks != nil {
		a.jwks.Close()
	}
	if a.provider != nil {
		if err := a.provider.Shutdown(ctx); err != nil {
			a.logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
