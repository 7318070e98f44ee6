package modules

import (
	"time"

	"github.com/gin-gonic/gin"

	userapp "github.com/OlivMer765/auth-service/internal/application"
	"github.com/OlivMer765/auth-service/internal/container"
	handlers "github.com/OlivMer765/auth-service/internal/interface/http"
	"github.com/OlivMer765/auth-service/internal/interface/middleware"
	"github.com/OlivMer765/auth-service/pkg/helpers"
)

const adminRole = "ADMIN"

// AdminModule wires the administration routes behind Auth plus a role gate.
type AdminModule struct {
	Handler *handlers.AdminHandler
	Svc     *userapp.Service
	JWT     *helpers.JWTManager
}

func NewAdminModule(h *handlers.AdminHandler, svc *userapp.Service, jwt *helpers.JWTManager) *AdminModule {
	return &AdminModule{Handler: h, Svc: svc, JWT: jwt}
}

func (m *AdminModule) Register(rg *gin.RouterGroup) {
	admin := rg.Group("/admin")
	admin.Use(middleware.Auth(container.GetRedis(), m.JWT))
	admin.Use(middleware.RequireRole(m.Svc.RoleNames, adminRole))
	admin.Use(middleware.RateLimit(container.GetRedis(), 120, time.Minute, middleware.KeyByUserID(), middleware.AllowPrivateIP()))
	{
		admin.GET("/users/:id", m.Handler.GetUser)
		admin.PUT("/users/:id/role", m.Handler.ChangeRole)
		admin.DELETE("/users/:id", m.Handler.DeleteUser)
		admin.GET("/roles/:name/users", m.Handler.UsersInRole)
	}
}
