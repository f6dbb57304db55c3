package dto

import "time"

// AdminLoginDTO 后台登录
type AdminLoginDTO struct {
	Username string `json:"username" binding:"required" validate:"min=3,max=64"`
	Password string `json:"password" binding:"required" validate:"min=6,max=72"`
}

// AdminDTO 当前登录的后台账号
type AdminDTO struct {
	ID          uint64     `json:"id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"displayName"`
	Roles       []string   `json:"roles" copier:"-"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

type AdminLoginResultDTO struct {
	Token string    `json:"token"`
	Admin *AdminDTO `json:"admin"`
}
