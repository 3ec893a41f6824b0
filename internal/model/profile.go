package model

import (
	"net/mail"
	"strings"
	"time"
)

// Role はプロフィールのロールを表す。
type Role string

const (
	RoleUser  Role = "user"
	RoleOwner Role = "owner"
	RoleAdmin Role = "admin"
)

// Valid は定義済みのロールかどうかを返す。
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleOwner, RoleAdmin:
		return true
	}
	return false
}

// CanManageSpots はダッシュボードを利用できるロールかどうかを返す。
func (r Role) CanManageSpots() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Profile はアプリケーション側のユーザーレコード（profilesテーブル）を表す。
// IDは認証サービスのユーザーIDと一致する。
type Profile struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	Name            string    `json:"name"`
	Phone           *string   `json:"phone"`
	Role            Role      `json:"role"`
	AvatarURL       *string   `json:"avatar_url"`
	BusinessName    *string   `json:"business_name"`
	BusinessAddress *string   `json:"business_address"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ProfileUpdate はプロフィールの部分更新内容を表す。
// nilのフィールドは更新しない。
type ProfileUpdate struct {
	Name            *string `json:"name,omitempty"`
	Phone           *string `json:"phone,omitempty"`
	AvatarURL       *string `json:"avatar_url,omitempty"`
	BusinessName    *string `json:"business_name,omitempty"`
	BusinessAddress *string `json:"business_address,omitempty"`
}

// IsEmpty は更新対象のフィールドが一つもないかどうかを返す。
func (u ProfileUpdate) IsEmpty() bool {
	return u.Name == nil && u.Phone == nil && u.AvatarURL == nil &&
		u.BusinessName == nil && u.BusinessAddress == nil
}

// Validate は更新内容を検証する。問題がある場合はAPIErrorを返す。
func (u ProfileUpdate) Validate() error {
	if u.IsEmpty() {
		return NewInvalidProfileError("更新するフィールドがありません")
	}
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return NewInvalidProfileError("名前は空にできません")
	}
	if u.Name != nil && len([]rune(*u.Name)) > 100 {
		return NewInvalidProfileError("名前は100文字以内で入力してください")
	}
	if u.Phone != nil && len(*u.Phone) > 32 {
		return NewInvalidProfileError("電話番号が長すぎます")
	}
	return nil
}

// ValidEmail はメールアドレスの形式を検証する。
func ValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
