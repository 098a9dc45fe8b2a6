package models

import (
	"time"
)

// AuthorizationGrant is a (principal, role) grant. Last write wins.
type AuthorizationGrant struct {
	Principal    string    `gorm:"primaryKey;size:64" json:"principal"`
	Role         string    `gorm:"primaryKey;size:64" json:"role"`
	IsAuthorized bool      `json:"is_authorized"`
	GrantedBy    string    `gorm:"size:64" json:"granted_by"`
	GrantedAt    time.Time `json:"granted_at"`
}
