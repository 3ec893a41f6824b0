package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/parkspot/internal/model"
	"github.com/hitoshi/parkspot/internal/supabase"
)

// RestBookingRepo はSupabase（PostgREST）を使用した予約リポジトリ。
type RestBookingRepo struct {
	client *supabase.Client
}

// NewRestBookingRepo はRestBookingRepoを生成する。
func NewRestBookingRepo(client *supabase.Client) *RestBookingRepo {
	return &RestBookingRepo{client: client}
}

// ListByOwner はオーナーの駐車場に対する予約を新しい順に取得する。
func (r *RestBookingRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.Booking, error) {
	var bookings []model.Booking
	err := r.client.From("bookings").
		Select("*,parking_spots!inner(name,address,owner_id)").
		Eq("parking_spots.owner_id", ownerID).
		Order("created_at", false).
		Get(ctx, &bookings)
	if err != nil {
		return nil, fmt.Errorf("failed to list owner bookings: %w", err)
	}
	return bookings, nil
}

// ListAll は全予約を新しい順に取得する。
func (r *RestBookingRepo) ListAll(ctx context.Context) ([]model.Booking, error) {
	var bookings []model.Booking
	err := r.client.From("bookings").
		Select("*,parking_spots(name,address,owner_id)").
		Order("created_at", false).
		Get(ctx, &bookings)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// FindByID は指定IDの予約を取得する。見つからない場合はnilを返す。
func (r *RestBookingRepo) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	var booking model.Booking
	found, err := r.client.From("bookings").
		Select("*,parking_spots(name,address,owner_id)").
		Eq("id", id).
		MaybeSingle(ctx, &booking)
	if err != nil {
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &booking, nil
}

// UpdateStatus は予約ステータスを更新する。
func (r *RestBookingRepo) UpdateStatus(ctx context.Context, id string, status model.BookingStatus) error {
	err := r.client.From("bookings").
		Eq("id", id).
		Update(ctx, map[string]model.BookingStatus{"status": status}, nil)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	return nil
}

// compile-time interface check
var _ BookingRepository = (*RestBookingRepo)(nil)
