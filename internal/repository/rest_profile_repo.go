package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/parkspot/internal/model"
	"github.com/hitoshi/parkspot/internal/supabase"
)

// RestProfileRepo はSupabase（PostgREST）を使用したプロフィールリポジトリ。
// アクセストークンはコンテキストから取得される。
type RestProfileRepo struct {
	client *supabase.Client
}

// NewRestProfileRepo はRestProfileRepoを生成する。
func NewRestProfileRepo(client *supabase.Client) *RestProfileRepo {
	return &RestProfileRepo{client: client}
}

// profileInsert はINSERT時に送信するカラム。タイムスタンプはDBの既定値に任せる。
type profileInsert struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	Name            string     `json:"name"`
	Phone           *string    `json:"phone"`
	Role            model.Role `json:"role"`
	AvatarURL       *string    `json:"avatar_url"`
	BusinessName    *string    `json:"business_name"`
	BusinessAddress *string    `json:"business_address"`
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *RestProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	var profile model.Profile
	found, err := r.client.From("profiles").Select("*").Eq("id", id).MaybeSingle(ctx, &profile)
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &profile, nil
}

// Insert はプロフィールを作成し、保存された行を返す。
func (r *RestProfileRepo) Insert(ctx context.Context, profile *model.Profile) (*model.Profile, error) {
	row := profileInsert{
		ID:              profile.ID,
		Email:           profile.Email,
		Name:            profile.Name,
		Phone:           profile.Phone,
		Role:            profile.Role,
		AvatarURL:       profile.AvatarURL,
		BusinessName:    profile.BusinessName,
		BusinessAddress: profile.BusinessAddress,
	}

	var created model.Profile
	if err := r.client.From("profiles").Select("*").Insert(ctx, row, &created); err != nil {
		return nil, fmt.Errorf("failed to insert profile: %w", err)
	}
	return &created, nil
}

// Update はプロフィールを部分更新する。
func (r *RestProfileRepo) Update(ctx context.Context, id string, update model.ProfileUpdate) error {
	if err := r.client.From("profiles").Eq("id", id).Update(ctx, update, nil); err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ProfileRepository = (*RestProfileRepo)(nil)
