package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/undercurrent-backend/internal/http/response"
	"github.com/yungbote/undercurrent-backend/internal/services"
)

type UserHandler struct {
	authService services.AuthService
}

func NewUserHandler(authService services.AuthService) *UserHandler {
	return &UserHandler{authService: authService}
}

// GET /api/me
func (uh *UserHandler) GetMe(c *gin.Context) {
	me, err := uh.authService.Me(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"me": me})
}
