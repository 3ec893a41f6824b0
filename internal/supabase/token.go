package supabase

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims はSupabaseのアクセストークンに含まれるクレーム。
type AccessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// ParseAccessToken はアクセストークンのクレームを読み取る。
// 署名はSupabase側で検証されるため、ここでは検証しない。
// 有効期限とユーザーIDの参照にのみ使用する。
func ParseAccessToken(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to parse access token: %w", err)
	}
	return claims, nil
}
