package security

import (
	"github.com/golang-jwt/jwt/v5"
)

const Issuer = "Horizon"

// AdminClaims 后台账号 token 中携带的身份信息
type AdminClaims struct {
	AdminID     uint64   `json:"admin_id"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles"`
	jwt.RegisteredClaims
}
