package handler

import (
	"Horizon/internal/api/dto"
	"Horizon/internal/api/middleware"
	"Horizon/internal/pkg/response"
	"Horizon/internal/pkg/util"
	"Horizon/internal/service"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	adminSvc service.AdminService
}

func NewAdminHandler(adminSvc service.AdminService) *AdminHandler {
	return &AdminHandler{adminSvc: adminSvc}
}

// Login POST /api/admin/login
func (s *AdminHandler) Login(c *gin.Context) {
	var req dto.AdminLoginDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}
	if err := util.ValidateDTO(&req); err != nil {
		response.Fail(c, response.BadRequest, err.Error())
		return
	}
	res, err := s.adminSvc.Login(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// Logout POST /api/admin/logout
func (s *AdminHandler) Logout(c *gin.Context) {
	if err := s.adminSvc.Logout(c.Request.Context(), c.GetString(middleware.AccessTokenKey)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Me GET /api/admin/me
func (s *AdminHandler) Me(c *gin.Context) {
	response.Success(c, &dto.AdminDTO{
		ID:          c.GetUint64(middleware.AdminIDKey),
		DisplayName: c.GetString(middleware.AdminNameKey),
		Roles:       c.GetStringSlice(middleware.RolesKey),
	})
}
