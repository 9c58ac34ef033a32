package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"party-lobby/internal/service"
)

// AuthHandler 封装了匿名登录的 HTTP 处理逻辑
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler 创建 AuthHandler 实例
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// SignInAnonymously POST /api/auth/anonymous
func (h *AuthHandler) SignInAnonymously(c *gin.Context) {
	identity, err := h.authService.SignInAnonymously()
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, identity)
}
