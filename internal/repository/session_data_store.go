package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/parkspot/internal/supabase"
)

// AuthTokenKey はSupabaseのセッションを保存するdataのキー。
const AuthTokenKey = "sb-auth-token"

// SessionDataStore は1つのブラウザセッションのdataカラムをキーと値のストアとして扱う。
// supabase.SessionStorageとauth.CredentialStoreを実装する。
type SessionDataStore struct {
	repo      SessionDataRepository
	sessionID string
}

// NewSessionDataStore はSessionDataStoreを生成する。
func NewSessionDataStore(repo SessionDataRepository, sessionID string) *SessionDataStore {
	return &SessionDataStore{repo: repo, sessionID: sessionID}
}

// LoadSession は保存済みのSupabaseセッションを取得する。存在しない場合はnilを返す。
func (s *SessionDataStore) LoadSession(ctx context.Context) (*supabase.Session, error) {
	raw, err := s.repo.GetDataValue(ctx, s.sessionID, AuthTokenKey)
	if err != nil {
		return nil, err
	}
	if raw == nil || string(raw) == "null" {
		return nil, nil
	}

	var session supabase.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("failed to decode stored auth session: %w", err)
	}
	return &session, nil
}

// SaveSession はSupabaseセッションを保存する。
func (s *SessionDataStore) SaveSession(ctx context.Context, session *supabase.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode auth session: %w", err)
	}
	return s.repo.SetDataValue(ctx, s.sessionID, AuthTokenKey, raw)
}

// ClearSession は保存済みのSupabaseセッションを削除する。
func (s *SessionDataStore) ClearSession(ctx context.Context) error {
	return s.repo.RemoveDataKeys(ctx, s.sessionID, AuthTokenKey)
}

// Get は文字列値を取得する。キーがない場合はfalseを返す。
func (s *SessionDataStore) Get(ctx context.Context, key string) (string, bool, error) {
	raw, err := s.repo.GetDataValue(ctx, s.sessionID, key)
	if err != nil {
		return "", false, err
	}
	if raw == nil {
		return "", false, nil
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false, fmt.Errorf("failed to decode session value %q: %w", key, err)
	}
	return value, true, nil
}

// Set は文字列値を保存する。
func (s *SessionDataStore) Set(ctx context.Context, key, value string) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode session value %q: %w", key, err)
	}
	return s.repo.SetDataValue(ctx, s.sessionID, key, raw)
}

// Remove は指定キーを削除する。
func (s *SessionDataStore) Remove(ctx context.Context, keys ...string) error {
	return s.repo.RemoveDataKeys(ctx, s.sessionID, keys...)
}

// compile-time interface check
var _ supabase.SessionStorage = (*SessionDataStore)(nil)
