// Package repository はデータ永続化のインターフェースと実装を提供する。
// サーバー側セッションは自前のPostgreSQLに、マーケットプレイスのデータはSupabase（PostgREST）に保存する。
package repository

import (
	"context"
	"encoding/json"

	"github.com/hitoshi/parkspot/internal/model"
)

// SessionRepository はブラウザセッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	SessionDataRepository
}

// SessionDataRepository はセッションのdataカラム（キーと値の組）の永続化インターフェース。
// ブラウザのlocalStorageに相当する。
type SessionDataRepository interface {
	// GetDataValue は指定キーの値を取得する。キーがない場合はnilを返す。
	GetDataValue(ctx context.Context, sessionID, key string) (json.RawMessage, error)
	// SetDataValue は指定キーに値を設定する。
	SetDataValue(ctx context.Context, sessionID, key string, value json.RawMessage) error
	// RemoveDataKeys は指定キーを削除する。存在しないキーは無視する。
	RemoveDataKeys(ctx context.Context, sessionID string, keys ...string) error
}

// ProfileRepository はprofilesテーブルのインターフェース。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)
	// Insert はプロフィールを作成し、保存された行を返す。
	Insert(ctx context.Context, profile *model.Profile) (*model.Profile, error)
	// Update はプロフィールを部分更新する。
	Update(ctx context.Context, id string, update model.ProfileUpdate) error
}

// SpotRepository はparking_spotsテーブルのインターフェース。
type SpotRepository interface {
	// ListActive は公開中の駐車場を評価の高い順に取得する。
	ListActive(ctx context.Context) ([]model.ParkingSpot, error)
	// FindByID は指定IDの駐車場を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.ParkingSpot, error)
	// ListByOwner はオーナーの駐車場を取得する。
	ListByOwner(ctx context.Context, ownerID string) ([]model.ParkingSpot, error)
	// ListAll は全駐車場を取得する（管理者用）。
	ListAll(ctx context.Context) ([]model.ParkingSpot, error)
	// SetActive は駐車場の公開状態を更新する。
	SetActive(ctx context.Context, id string, active bool) error
}

// ReviewRepository はreviewsテーブルのインターフェース。
type ReviewRepository interface {
	// ListBySpot は駐車場のレビューを新しい順に取得する。投稿者名を含む。
	ListBySpot(ctx context.Context, spotID string) ([]model.Review, error)
	// ListByOwner はオーナーの駐車場に対するレビューを新しい順に取得する。
	ListByOwner(ctx context.Context, ownerID string) ([]model.Review, error)
	// ListAll は全レビューを取得する（管理者用）。
	ListAll(ctx context.Context) ([]model.Review, error)
}

// BookingRepository はbookingsテーブルのインターフェース。
type BookingRepository interface {
	// ListByOwner はオーナーの駐車場に対する予約を新しい順に取得する。
	ListByOwner(ctx context.Context, ownerID string) ([]model.Booking, error)
	// ListAll は全予約を新しい順に取得する（管理者用）。
	ListAll(ctx context.Context) ([]model.Booking, error)
	// FindByID は指定IDの予約を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	// UpdateStatus は予約ステータスを更新する。
	UpdateStatus(ctx context.Context, id string, status model.BookingStatus) error
}

// PaymentMethodRepository はpayment_methodsテーブルのインターフェース。
type PaymentMethodRepository interface {
	// ListByOwner はオーナーの支払い方法を登録順に取得する。
	ListByOwner(ctx context.Context, ownerID string) ([]model.PaymentMethod, error)
	// FindByID は指定IDの支払い方法を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.PaymentMethod, error)
	// Save は支払い方法を作成または更新し、保存された行を返す。
	Save(ctx context.Context, method *model.PaymentMethod) (*model.PaymentMethod, error)
	// ClearDefault はオーナーの既定の支払い方法を解除する。
	ClearDefault(ctx context.Context, ownerID string) error
}
