package service

import (
	"Horizon/internal/api/config"
	"Horizon/internal/api/dto"
	"Horizon/internal/model"
	"Horizon/internal/pkg/consts"
	"Horizon/internal/pkg/redis"
	"Horizon/internal/pkg/security"
	"Horizon/internal/repository"
	"context"
	log "log/slog"
	"strings"
	"time"

	"github.com/jinzhu/copier"
	goredis "github.com/redis/go-redis/v9"
)

type AdminService interface {
	Login(ctx context.Context, req *dto.AdminLoginDTO) (*dto.AdminLoginResultDTO, error)
	Logout(ctx context.Context, token string) error
	IsTokenRevoked(ctx context.Context, token string) (bool, error)
	SeedAdmin(ctx context.Context, seed config.AdminSeed) error
}

type AdminServiceImpl struct {
	adminRepo repository.AdminRepo
	rdb       *goredis.Client
}

func NewAdminService(adminRepo repository.AdminRepo, rdb *goredis.Client) AdminService {
	return &AdminServiceImpl{adminRepo: adminRepo, rdb: rdb}
}

// Login 校验账号密码并签发 token
func (s *AdminServiceImpl) Login(ctx context.Context, req *dto.AdminLoginDTO) (*dto.AdminLoginResultDTO, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, ErrMissingLoginCredentials
	}

	admin, err := s.adminRepo.GetAdminByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if admin == nil {
		security.BurnPasswordCheck(req.Password)
		return nil, ErrPasswordIncorrect
	}
	if admin.IsDisabled == 1 {
		return nil, ErrAdminDisabled
	}
	if err = security.CheckPasswordHash(req.Password, admin.PasswordHash); err != nil {
		return nil, ErrPasswordIncorrect
	}

	roles := splitRoles(admin.Roles)
	token, err := security.GenerateToken(admin.ID, admin.DisplayName, roles)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err = s.adminRepo.UpdateLastLogin(ctx, admin.ID, now); err != nil {
		log.WarnContext(ctx, "update admin last login failed", "adminID", admin.ID, "err", err)
	}

	adminDTO := &dto.AdminDTO{}
	if err = copier.Copy(adminDTO, admin); err != nil {
		return nil, err
	}
	adminDTO.Roles = roles
	adminDTO.LastLoginAt = &now
	return &dto.AdminLoginResultDTO{Token: token, Admin: adminDTO}, nil
}

// Logout 把 token 签名记入黑名单，直到 token 自然过期
func (s *AdminServiceImpl) Logout(ctx context.Context, token string) error {
	signature, err := security.ExtractSignature(token)
	if err != nil {
		return UnauthorizedError
	}
	return redis.SetWithExpiration(ctx, s.rdb, consts.TokenRevokedKey+signature, 1, security.TokenTTL())
}

func (s *AdminServiceImpl) IsTokenRevoked(ctx context.Context, token string) (bool, error) {
	signature, err := security.ExtractSignature(token)
	if err != nil {
		return false, UnauthorizedError
	}
	value, err := redis.GetValue(ctx, s.rdb, consts.TokenRevokedKey+signature)
	if err != nil {
		return false, err
	}
	return value != "", nil
}

// SeedAdmin 账号不存在时按配置创建初始客服账号
func (s *AdminServiceImpl) SeedAdmin(ctx context.Context, seed config.AdminSeed) error {
	if seed.Username == "" || seed.Password == "" {
		return nil
	}
	existing, err := s.adminRepo.GetAdminByUsername(ctx, seed.Username)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	hash, err := security.HashPassword(seed.Password)
	if err != nil {
		return err
	}
	displayName := seed.DisplayName
	if displayName == "" {
		displayName = consts.DefaultAdminName
	}
	admin := &model.Admin{
		Username:     seed.Username,
		PasswordHash: hash,
		DisplayName:  displayName,
		Roles:        consts.ChatRoleAdmin,
	}
	if err = s.adminRepo.CreateAdmin(ctx, admin); err != nil {
		return err
	}
	log.InfoContext(ctx, "seeded admin account", "username", seed.Username)
	return nil
}

func splitRoles(raw string) []string {
	roles := make([]string, 0, 1)
	for _, r := range strings.Split(raw, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, strings.ToUpper(r))
		}
	}
	if len(roles) == 0 {
		roles = append(roles, consts.ChatRoleAdmin)
	}
	return roles
}
