package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/parkspot/internal/model"
	"github.com/hitoshi/parkspot/internal/supabase"
)

// RestSpotRepo はSupabase（PostgREST）を使用した駐車場リポジトリ。
type RestSpotRepo struct {
	client *supabase.Client
}

// NewRestSpotRepo はRestSpotRepoを生成する。
func NewRestSpotRepo(client *supabase.Client) *RestSpotRepo {
	return &RestSpotRepo{client: client}
}

// ListActive は公開中の駐車場を評価の高い順に取得する。
func (r *RestSpotRepo) ListActive(ctx context.Context) ([]model.ParkingSpot, error) {
	var spots []model.ParkingSpot
	err := r.client.From("parking_spots").
		Select("*").
		Eq("is_active", "true").
		Order("rating", false).
		Get(ctx, &spots)
	if err != nil {
		return nil, fmt.Errorf("failed to list active spots: %w", err)
	}
	return spots, nil
}

// FindByID は指定IDの駐車場を取得する。見つからない場合はnilを返す。
func (r *RestSpotRepo) FindByID(ctx context.Context, id string) (*model.ParkingSpot, error) {
	var spot model.ParkingSpot
	found, err := r.client.From("parking_spots").Select("*").Eq("id", id).MaybeSingle(ctx, &spot)
	if err != nil {
		return nil, fmt.Errorf("failed to find spot: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &spot, nil
}

// ListByOwner はオーナーの駐車場を作成順に取得する。
func (r *RestSpotRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.ParkingSpot, error) {
	var spots []model.ParkingSpot
	err := r.client.From("parking_spots").
		Select("*").
		Eq("owner_id", ownerID).
		Order("created_at", true).
		Get(ctx, &spots)
	if err != nil {
		return nil, fmt.Errorf("failed to list owner spots: %w", err)
	}
	return spots, nil
}

// ListAll は全駐車場を作成順に取得する。
func (r *RestSpotRepo) ListAll(ctx context.Context) ([]model.ParkingSpot, error) {
	var spots []model.ParkingSpot
	if err := r.client.From("parking_spots").Select("*").Order("created_at", true).Get(ctx, &spots); err != nil {
		return nil, fmt.Errorf("failed to list spots: %w", err)
	}
	return spots, nil
}

// SetActive は駐車場の公開状態を更新する。
func (r *RestSpotRepo) SetActive(ctx context.Context, id string, active bool) error {
	err := r.client.From("parking_spots").
		Eq("id", id).
		Update(ctx, map[string]bool{"is_active": active}, nil)
	if err != nil {
		return fmt.Errorf("failed to update spot status: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SpotRepository = (*RestSpotRepo)(nil)
