// Package http holds what the router needs from the composition root: the
// config slice it reads, a readiness probe and the modules that mount routes.
package http

import (
	"context"

	"github.com/gin-gonic/gin"

	"lead_protection_backend/platform/config"
	"lead_protection_backend/platform/logger"
)

// RouterConfig is the config the router reads.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker backs /api/ready.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Module is a bounded context that mounts its own routes.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext is handed to every Module during registration.
type RouterContext struct {
	// V1 is the public /api/v1 group.
	V1 *gin.RouterGroup
	// Protected is V1 behind AuthRequired.
	Protected *gin.RouterGroup
}

// App is assembled by cmd/api and consumed by router.New.
type App struct {
	Config  RouterConfig
	Logger  *logger.Logger
	Health  HealthChecker
	Modules []Module
}
