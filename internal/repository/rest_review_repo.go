package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/parkspot/internal/model"
	"github.com/hitoshi/parkspot/internal/supabase"
)

// reviewColumns はレビュー取得時のカラム。投稿者名を埋め込む。
const reviewColumns = "*,profiles:user_id(name)"

// RestReviewRepo はSupabase（PostgREST）を使用したレビューリポジトリ。
type RestReviewRepo struct {
	client *supabase.Client
}

// NewRestReviewRepo はRestReviewRepoを生成する。
func NewRestReviewRepo(client *supabase.Client) *RestReviewRepo {
	return &RestReviewRepo{client: client}
}

// ListBySpot は駐車場のレビューを新しい順に取得する。
func (r *RestReviewRepo) ListBySpot(ctx context.Context, spotID string) ([]model.Review, error) {
	var reviews []model.Review
	err := r.client.From("reviews").
		Select(reviewColumns).
		Eq("spot_id", spotID).
		Order("created_at", false).
		Get(ctx, &reviews)
	if err != nil {
		return nil, fmt.Errorf("failed to list spot reviews: %w", err)
	}
	return reviews, nil
}

// ListByOwner はオーナーの駐車場に対するレビューを新しい順に取得する。
// parking_spotsを内部結合し、owner_idで絞り込む。
func (r *RestReviewRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.Review, error) {
	var reviews []model.Review
	err := r.client.From("reviews").
		Select(reviewColumns+",parking_spots!inner(owner_id)").
		Eq("parking_spots.owner_id", ownerID).
		Order("created_at", false).
		Get(ctx, &reviews)
	if err != nil {
		return nil, fmt.Errorf("failed to list owner reviews: %w", err)
	}
	return reviews, nil
}

// ListAll は全レビューを新しい順に取得する。
func (r *RestReviewRepo) ListAll(ctx context.Context) ([]model.Review, error) {
	var reviews []model.Review
	if err := r.client.From("reviews").Select(reviewColumns).Order("created_at", false).Get(ctx, &reviews); err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	return reviews, nil
}

// compile-time interface check
var _ ReviewRepository = (*RestReviewRepo)(nil)
