// Package app provides application-level wiring and dependency injection
// for the tenant gate.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"tenant-gate/internal/api"
	"tenant-gate/internal/config"
	"tenant-gate/internal/credential"
	"tenant-gate/internal/domain"
	"tenant-gate/internal/metrics"
	"tenant-gate/internal/middleware"
	"tenant-gate/internal/revocation"
	"tenant-gate/internal/service/governance"
	"tenant-gate/internal/service/identity"
	"tenant-gate/internal/service/impersonation"
	"tenant-gate/internal/service/usage"
)

// revocationPruneSchedule drops expired in-memory revocations.
const revocationPruneSchedule = "@every 1m"

// Deps holds the external dependencies that main() must provide.
// These are things the app package cannot (or should not) create itself:
// open store handles, config, and the metrics registry.
type Deps struct {
	Cfg    *config.Config
	Stores *Stores
	// Redis backs the revocation store when set; nil keeps it in memory.
	Redis redis.UniversalClient
	// Registerer receives the gate's collectors. Nil skips registration.
	Registerer prometheus.Registerer
	// HTTPClient fetches OIDC discovery documents and key sets.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Services groups all service pointers that the API handler and router need.
type Services struct {
	Verifier      *credential.Verifier
	Issuer        *credential.Issuer
	Resolver      *identity.Resolver
	Impersonation *impersonation.Manager
	Usage         *usage.Gate
	Audit         *governance.AuditService
}

// App holds the fully-wired application.
type App struct {
	Services      Services
	Stores        *Stores
	Revocations   revocation.Store
	Retrier       *impersonation.AuditRetrier
	Authenticator *middleware.Authenticator
	Metrics       *metrics.Gate

	cfg    *config.Config
	logger *slog.Logger
}

// New wires all services from the provided deps. It seeds the plan catalog
// and fails when the default plan is missing from it.
func New(ctx context.Context, deps Deps) (*App, error) {
	cfg := deps.Cfg
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if deps.Stores == nil {
		return nil, errors.New("app: stores are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stores := deps.Stores

	// === Metrics ===
	m := metrics.New()
	if deps.Registerer != nil {
		if err := m.Register(deps.Registerer); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	// === Reference data ===
	if _, err := SeedPlans(ctx, stores.Plans, cfg.Usage.PlansFile, logger); err != nil {
		return nil, fmt.Errorf("seed plans: %w", err)
	}
	if _, err := stores.Plans.Get(ctx, cfg.Usage.DefaultPlan); err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			return nil, domain.ErrReferenceDataMissing("default plan %q is not in the plan catalog", cfg.Usage.DefaultPlan)
		}
		return nil, fmt.Errorf("load default plan: %w", err)
	}

	// === Credentials ===
	vcfg := credential.VerifierConfig{
		Issuers:           cfg.Auth.AllowedIssuers,
		Audience:          cfg.Auth.Audience,
		Secret:            []byte(cfg.Auth.JWTSecret),
		SymmetricIssuer:   cfg.Auth.SymmetricIssuer,
		SymmetricFallback: cfg.Auth.SymmetricFallback,
		Leeway:            cfg.Auth.ClockLeeway,
		Metrics:           m,
	}
	if cfg.Auth.OIDCEnabled() {
		keys, err := credential.NewKeySetCache(credential.KeySetConfig{
			IssuerURL:    cfg.Auth.IssuerURL,
			JWKSURL:      cfg.Auth.JWKSURL,
			TTL:          cfg.Auth.JWKSCacheTTL,
			MinRefresh:   cfg.Auth.JWKSMinRefresh,
			FetchTimeout: cfg.Auth.JWKSFetchTimeout,
			HTTPClient:   deps.HTTPClient,
			Metrics:      m,
			Logger:       logger,
		})
		if err != nil {
			return nil, fmt.Errorf("key set cache: %w", err)
		}
		vcfg.Keys = keys
	}
	verifier := credential.NewVerifier(vcfg)
	if !verifier.Configured() {
		logger.Warn("no credential verification path configured; every request will be rejected")
	}
	issuer, err := credential.NewIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.SymmetricIssuer)
	if err != nil {
		return nil, fmt.Errorf("credential issuer: %w", err)
	}

	// === Revocations and deferred audit ===
	retrier := impersonation.NewAuditRetrier(stores.Audit, impersonation.RetrierConfig{}, m, logger)
	var revocations revocation.Store
	if deps.Redis != nil {
		revocations = revocation.NewRedis(deps.Redis)
	} else {
		mem := revocation.NewMemory()
		if err := retrier.AddJob(revocationPruneSchedule, func() {
			if n := mem.Prune(); n > 0 {
				logger.Debug("pruned expired revocations", "count", n)
			}
		}); err != nil {
			return nil, fmt.Errorf("schedule revocation pruning: %w", err)
		}
		revocations = mem
	}

	// === Core services ===
	resolver := identity.NewResolver(stores.Principals, stores.Plans, identity.Config{
		DefaultPlan:    cfg.Usage.DefaultPlan,
		BootstrapAdmin: cfg.Auth.BootstrapAdmin,
	}, logger)
	gate := usage.NewGate(stores.Subscriptions, stores.Plans, stores.Usage, usage.Config{
		Timezone:    cfg.Usage.Timezone,
		IOTimeout:   cfg.IOTimeout,
		DefaultPlan: cfg.Usage.DefaultPlan,
	}, m, logger)
	manager := impersonation.NewManager(stores.Tenants, stores.Audit, issuer, revocations, retrier, impersonation.Config{
		TTL:        cfg.Impersonation.TTL,
		TenantRole: cfg.Impersonation.Role,
		ReturnPath: cfg.Impersonation.ReturnPath,
	}, m, logger)
	auditSvc := governance.NewAuditService(stores.AuditReader, logger)

	authn := middleware.NewAuthenticator(verifier, resolver, revocations, api.WriteError, logger)

	return &App{
		Services: Services{
			Verifier:      verifier,
			Issuer:        issuer,
			Resolver:      resolver,
			Impersonation: manager,
			Usage:         gate,
			Audit:         auditSvc,
		},
		Stores:        stores,
		Revocations:   revocations,
		Retrier:       retrier,
		Authenticator: authn,
		Metrics:       m,
		cfg:           cfg,
		logger:        logger,
	}, nil
}

// Router builds the HTTP handler. gatherer serves /metrics and may be nil.
// Background rate limiter cleanup stops when ctx is done.
func (a *App) Router(ctx context.Context, gatherer prometheus.Gatherer) http.Handler {
	h := api.NewHandler(a.Services.Impersonation, a.Services.Usage, a.Services.Resolver, a.Services.Audit)
	return api.NewRouter(ctx, h, api.RouterConfig{
		Authenticator: a.Authenticator,
		UsageGate:     a.Services.Usage,
		Metered:       middleware.MeteredConfig{Units: 1, Strict: a.cfg.Usage.Strict},
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: a.cfg.RateLimitRPS,
			Burst:             a.cfg.RateLimitBurst,
		},
		AllowedOrigins: a.cfg.CORSAllowedOrigins,
		Gatherer:       gatherer,
		Logger:         a.logger,
	})
}
