package modules

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OlivMer765/auth-service/internal/container"
	handlers "github.com/OlivMer765/auth-service/internal/interface/http"
	"github.com/OlivMer765/auth-service/internal/interface/middleware"
	"github.com/OlivMer765/auth-service/pkg/helpers"
)

type EmailModule struct {
	Handler *handlers.EmailHandler
	JWT     *helpers.JWTManager
}

func NewEmailModule(h *handlers.EmailHandler, jwt *helpers.JWTManager) *EmailModule {
	return &EmailModule{Handler: h, JWT: jwt}
}

func (m *EmailModule) Register(rg *gin.RouterGroup) {
	// Protected email endpoints
	auth := rg.Group("/")
	auth.Use(middleware.Auth(container.GetRedis(), m.JWT))
	auth.Use(
		middleware.RateLimit(container.GetRedis(), 60, time.Minute, middleware.KeyByUserID(), nil),
	)
	{
		auth.POST("/email/send", m.Handler.Send)
	}
}
