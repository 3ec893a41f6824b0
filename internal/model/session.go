package model

import "time"

// Session はブラウザごとのサーバー側セッションを表す。
// 認証状態はセッションに紐づくReconcilerが保持するため、ユーザーIDは持たない。
type Session struct {
	ID        string
	ExpiresAt time.Time
	CreatedAt time.Time
}
