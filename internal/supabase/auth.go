package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// User は認証サービスのユーザーを表す。
type User struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	Phone            string         `json:"phone"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at"`
	UserMetadata     map[string]any `json:"user_metadata"`
	CreatedAt        time.Time      `json:"created_at"`
}

// MetadataString はuser_metadataの文字列値を返す。
// キーが存在しない、文字列でない、空文字のいずれかの場合は空文字を返す。
func (u *User) MetadataString(key string) string {
	if u == nil || u.UserMetadata == nil {
		return ""
	}
	s, _ := u.UserMetadata[key].(string)
	return s
}

// Session は認証サービスが発行したセッション（トークンの組）を表す。
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

// Expiry はアクセストークンの有効期限を返す。
// expires_atがない場合はトークンのexpクレームから求める。
func (s *Session) Expiry() time.Time {
	if s.ExpiresAt > 0 {
		return time.Unix(s.ExpiresAt, 0)
	}
	if claims, err := ParseAccessToken(s.AccessToken); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return time.Time{}
}

// UserID はセッションのユーザーIDを返す。
func (s *Session) UserID() string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.ID
}

// SignInWithPassword はメールアドレスとパスワードでサインインする。
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	body, err := c.do(ctx, request{
		operation: "auth.token",
		method:    http.MethodPost,
		path:      "/auth/v1/token",
		query:     url.Values{"grant_type": {"password"}},
		body:      map[string]string{"email": email, "password": password},
	})
	if err != nil {
		return nil, err
	}
	return decodeSession(body)
}

// RefreshSession はリフレッシュトークンで新しいセッションを取得する。
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	body, err := c.do(ctx, request{
		operation: "auth.refresh",
		method:    http.MethodPost,
		path:      "/auth/v1/token",
		query:     url.Values{"grant_type": {"refresh_token"}},
		body:      map[string]string{"refresh_token": refreshToken},
	})
	if err != nil {
		return nil, err
	}
	return decodeSession(body)
}

// SignUp はユーザーを登録する。dataはuser_metadataとして保存される。
// メール確認が必要な場合、セッションはnilで返る。
func (c *Client) SignUp(ctx context.Context, email, password string, data map[string]any) (*User, *Session, error) {
	body, err := c.do(ctx, request{
		operation: "auth.signup",
		method:    http.MethodPost,
		path:      "/auth/v1/signup",
		body: map[string]any{
			"email":    email,
			"password": password,
			"data":     data,
		},
	})
	if err != nil {
		return nil, nil, err
	}

	// メール確認が無効な場合はセッション、有効な場合はユーザーのみが返る
	var issued struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &issued); err != nil {
		return nil, nil, fmt.Errorf("failed to parse signup response: %w", err)
	}
	if issued.AccessToken != "" {
		session, err := decodeSession(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse signup session: %w", err)
		}
		return session.User, session, nil
	}

	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, nil, fmt.Errorf("failed to parse signup response: %w", err)
	}
	return &user, nil, nil
}

// GetUser はアクセストークンに対応するユーザーを取得する。
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	body, err := c.do(ctx, request{
		operation: "auth.user",
		method:    http.MethodGet,
		path:      "/auth/v1/user",
		token:     accessToken,
	})
	if err != nil {
		return nil, err
	}

	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to parse user response: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("empty id in user response")
	}
	return &user, nil
}

// SignOut はアクセストークンを失効させる。
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	_, err := c.do(ctx, request{
		operation: "auth.logout",
		method:    http.MethodPost,
		path:      "/auth/v1/logout",
		token:     accessToken,
	})
	return err
}

// Resend は登録確認メールを再送信する。
func (c *Client) Resend(ctx context.Context, email string) error {
	_, err := c.do(ctx, request{
		operation: "auth.resend",
		method:    http.MethodPost,
		path:      "/auth/v1/resend",
		body:      map[string]string{"type": "signup", "email": email},
	})
	return err
}

func decodeSession(body []byte) (*Session, error) {
	var session Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("failed to parse session response: %w", err)
	}
	if session.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}
	if session.ExpiresAt == 0 && session.ExpiresIn > 0 {
		session.ExpiresAt = time.Now().Add(time.Duration(session.ExpiresIn) * time.Second).Unix()
	}
	return &session, nil
}
