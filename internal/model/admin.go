package model

import "time"

// Admin 后台客服账号
type Admin struct {
	ID           uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	PasswordHash string     `gorm:"type:varchar(255);not null" json:"-"`
	DisplayName  string     `gorm:"type:varchar(120);not null" json:"displayName"`
	Roles        string     `gorm:"type:varchar(255);not null;default:'ADMIN'" json:"roles"` // 逗号分隔
	IsDisabled   int8       `gorm:"not null;default:0" json:"isDisabled"`
	LastLoginAt  *time.Time `json:"lastLoginAt"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func (Admin) TableName() string { return "admins" }
