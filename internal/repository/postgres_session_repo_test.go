package repository

import (
	"testing"
)

// PostgresSessionRepoはSessionRepositoryインターフェースを満たすことを検証
func TestPostgresSessionRepo_ImplementsInterface(t *testing.T) {
	var _ SessionRepository = (*PostgresSessionRepo)(nil)
	var _ SessionDataRepository = (*PostgresSessionRepo)(nil)
}

// NewPostgresSessionRepoが正しく初期化されることを検証
func TestNewPostgresSessionRepo_Initializes(t *testing.T) {
	repo := NewPostgresSessionRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// キーが空の場合はDBにアクセスせずに成功すること
func TestPostgresSessionRepo_RemoveDataKeys_NoKeys(t *testing.T) {
	repo := NewPostgresSessionRepo(nil)
	if err := repo.RemoveDataKeys(t.Context(), "session-1"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
