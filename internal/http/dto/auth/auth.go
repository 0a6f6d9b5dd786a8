// Package auth define los DTOs de signup, login y perfil del end user.
package auth

import "time"

type SignupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse se devuelve al emitir sesión. El token viaja solo en la cookie.
type SessionResponse struct {
	SubjectID string    `json:"subject_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type MeResponse struct {
	ID          string    `json:"id"`
	AppID       string    `json:"app_id"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastLoginAt time.Time `json:"last_login_at"`
}

type LogoutAllResponse struct {
	Revoked int `json:"revoked"`
}
