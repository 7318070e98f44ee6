package router

import (
	userapp "github.com/OlivMer765/auth-service/internal/application"
	"github.com/OlivMer765/auth-service/internal/container"
	pginfra "github.com/OlivMer765/auth-service/internal/infrastructure/postgres"
	handlers "github.com/OlivMer765/auth-service/internal/interface/http"
	"github.com/OlivMer765/auth-service/internal/router/modules"
)

func buildService() *userapp.Service {
	pool := container.GetPGPool()
	cfg := container.GetConfig()
	return userapp.NewService(
		pginfra.NewUserRepository(pool),
		pginfra.NewRoleRepository(pool),
		container.GetJWT(),
		container.GetRedis(),
		container.GetRabbitPub(),
		container.GetGCS(),
		cfg.GCSBucket,
		container.GetES(),
		cfg.ESUsersIndex,
		container.GetLogger(),
		cfg,
	)
}

// InitModules builds the shared application service and registers every
// feature module with the router registry. Called once during startup.
func InitModules(r *Registry) {
	svc := buildService()
	cfg := container.GetConfig()
	logger := container.GetLogger()
	jwt := container.GetJWT()

	userHandler := handlers.NewUserHandler(svc, jwt, logger, cfg.CookieDomain, cfg.CookieSecure)
	authHandler := handlers.NewAuthHandler(svc, logger)
	adminHandler := handlers.NewAdminHandler(svc, logger)
	emailHandler := handlers.NewEmailHandler(container.GetRabbitPub(), logger, cfg)

	r.Add(modules.NewUserModule(userHandler, jwt))
	r.Add(modules.NewAuthModule(authHandler, jwt))
	r.Add(modules.NewAdminModule(adminHandler, svc, jwt))
	r.Add(modules.NewEmailModule(emailHandler, jwt))
	if cfg.DebugMetricsEnabled {
		r.Add(modules.NewDebugModule())
	}
}
