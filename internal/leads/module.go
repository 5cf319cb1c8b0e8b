package leads

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"lead_protection_backend/internal/events"
	apphttp "lead_protection_backend/internal/http"
	"lead_protection_backend/internal/leads/handler"
	"lead_protection_backend/internal/leads/repository"
	"lead_protection_backend/internal/leads/service"
	"lead_protection_backend/platform/logger"
	"lead_protection_backend/platform/validator"
)

// Module mounts the lead protection API.
type Module struct {
	handler *handler.Handler
}

// NewModule wires the traced Postgres store, the access guard and the service
// behind the lead handler.
func NewModule(pool *pgxpool.Pool, eventBus events.Bus, val *validator.Validator, cfg ModuleConfig, log *logger.Logger) (*Module, error) {
	guard, err := NewGuard(cfg)
	if err != nil {
		return nil, err
	}

	store := repository.NewTracingStore(repository.New(pool))
	users := repository.NewUserDirectory(pool)

	svc := service.New(store, NewLifecycle(), guard, users, eventBus, service.OptionsFromConfig(cfg, cfg), log)

	return &Module{handler: handler.New(svc, val)}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// RegisterRoutes mounts /leads on the authenticated group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	leadsGroup := ctx.Protected.Group("/leads")
	m.handler.RegisterRoutes(leadsGroup)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
