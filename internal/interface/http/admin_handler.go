package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	userapp "github.com/OlivMer765/auth-service/internal/application"
	"github.com/OlivMer765/auth-service/pkg/response"
	"github.com/OlivMer765/auth-service/pkg/validation"
)

// AdminHandler serves user administration: role changes, member listings and
// account removal. Routes are gated by the admin role middleware.
type AdminHandler struct {
	Svc    *userapp.Service
	Logger *logrus.Logger
}

func NewAdminHandler(svc *userapp.Service, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{Svc: svc, Logger: logger}
}

type changeRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// GetUser GET /api/admin/users/:id
func (h *AdminHandler) GetUser(c *gin.Context) {
	u, err := h.Svc.GetProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, userapp.ErrUserNotFound) {
			response.Error[any](c, http.StatusNotFound, "user not found", nil)
			return
		}
		response.Error[any](c, http.StatusInternalServerError, "lookup failed", nil)
		return
	}
	response.Success(c, http.StatusOK, userView(u), "user", nil)
}

// ChangeRole PUT /api/admin/users/:id/role {role}
// The user ends up holding exactly the named role.
func (h *AdminHandler) ChangeRole(c *gin.Context) {
	var req changeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	u, err := h.Svc.AssignRole(c.Request.Context(), c.Param("id"), req.Role)
	if err != nil {
		switch {
		case errors.Is(err, userapp.ErrRoleNotFound):
			response.Error[any](c, http.StatusNotFound, "role not found", nil)
		case errors.Is(err, userapp.ErrUserNotFound):
			response.Error[any](c, http.StatusNotFound, "user not found", nil)
		default:
			if h.Logger != nil {
				h.Logger.WithError(err).Error("role change failed")
			}
			response.Error[any](c, http.StatusInternalServerError, "role change failed", nil)
		}
		return
	}
	response.Success(c, http.StatusOK, userView(u), "role updated", nil)
}

// DeleteUser DELETE /api/admin/users/:id
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	if err := h.Svc.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, userapp.ErrUserNotFound) {
			response.Error[any](c, http.StatusNotFound, "user not found", nil)
			return
		}
		if h.Logger != nil {
			h.Logger.WithError(err).Error("user delete failed")
		}
		response.Error[any](c, http.StatusInternalServerError, "delete failed", nil)
		return
	}
	response.Success[any](c, http.StatusOK, gin.H{"deleted": true}, "user deleted", nil)
}

// UsersInRole GET /api/admin/roles/:name/users
func (h *AdminHandler) UsersInRole(c *gin.Context) {
	users, count, err := h.Svc.UsersInRole(c.Request.Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, userapp.ErrRoleNotFound) {
			response.Error[any](c, http.StatusNotFound, "role not found", nil)
			return
		}
		response.Error[any](c, http.StatusInternalServerError, "listing failed", nil)
		return
	}
	views := make([]gin.H, 0, len(users))
	for _, u := range users {
		views = append(views, userView(u))
	}
	response.Success(c, http.StatusOK, views, "role members", map[string]any{"count": count})
}
