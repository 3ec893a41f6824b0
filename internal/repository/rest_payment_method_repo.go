package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/parkspot/internal/model"
	"github.com/hitoshi/parkspot/internal/supabase"
)

// RestPaymentMethodRepo はSupabase（PostgREST）を使用した支払い方法リポジトリ。
type RestPaymentMethodRepo struct {
	client *supabase.Client
}

// NewRestPaymentMethodRepo はRestPaymentMethodRepoを生成する。
func NewRestPaymentMethodRepo(client *supabase.Client) *RestPaymentMethodRepo {
	return &RestPaymentMethodRepo{client: client}
}

// paymentMethodWrite は作成・更新時に送信するカラム。
type paymentMethodWrite struct {
	OwnerID    string            `json:"owner_id"`
	Type       model.PaymentType `json:"type"`
	Label      string            `json:"label"`
	Details    string            `json:"details"`
	QRImageURL *string           `json:"qr_image_url"`
	IsDefault  bool              `json:"is_default"`
}

// ListByOwner はオーナーの支払い方法を登録順に取得する。
func (r *RestPaymentMethodRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.PaymentMethod, error) {
	var methods []model.PaymentMethod
	err := r.client.From("payment_methods").
		Select("*").
		Eq("owner_id", ownerID).
		Order("created_at", true).
		Get(ctx, &methods)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %w", err)
	}
	return methods, nil
}

// FindByID は指定IDの支払い方法を取得する。見つからない場合はnilを返す。
func (r *RestPaymentMethodRepo) FindByID(ctx context.Context, id string) (*model.PaymentMethod, error) {
	var method model.PaymentMethod
	found, err := r.client.From("payment_methods").Select("*").Eq("id", id).MaybeSingle(ctx, &method)
	if err != nil {
		return nil, fmt.Errorf("failed to find payment method: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &method, nil
}

// Save は支払い方法を作成または更新し、保存された行を返す。
// IDが空の場合は作成、それ以外は同じオーナーの行を更新する。
func (r *RestPaymentMethodRepo) Save(ctx context.Context, method *model.PaymentMethod) (*model.PaymentMethod, error) {
	row := paymentMethodWrite{
		OwnerID:    method.OwnerID,
		Type:       method.Type,
		Label:      method.Label,
		Details:    method.Details,
		QRImageURL: method.QRImageURL,
		IsDefault:  method.IsDefault,
	}

	var saved model.PaymentMethod
	var err error
	if method.ID == "" {
		err = r.client.From("payment_methods").Select("*").Insert(ctx, row, &saved)
	} else {
		err = r.client.From("payment_methods").
			Select("*").
			Eq("id", method.ID).
			Eq("owner_id", method.OwnerID).
			Update(ctx, row, &saved)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save payment method: %w", err)
	}
	return &saved, nil
}

// ClearDefault はオーナーの既定の支払い方法を解除する。
func (r *RestPaymentMethodRepo) ClearDefault(ctx context.Context, ownerID string) error {
	err := r.client.From("payment_methods").
		Eq("owner_id", ownerID).
		Eq("is_default", "true").
		Update(ctx, map[string]bool{"is_default": false}, nil)
	if err != nil {
		return fmt.Errorf("failed to clear default payment method: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PaymentMethodRepository = (*RestPaymentMethodRepo)(nil)
