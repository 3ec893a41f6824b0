package spot

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hitoshi/parkspot/internal/model"
	"github.com/hitoshi/parkspot/internal/repository"
	"github.com/hitoshi/parkspot/internal/security"
)

// Service は駐車場の一覧と詳細のビューモデルを提供する。
type Service struct {
	spots     repository.SpotRepository
	reviews   repository.ReviewRepository
	sanitizer security.ContentSanitizerService
}

// NewService はServiceを生成する。
func NewService(spots repository.SpotRepository, reviews repository.ReviewRepository, sanitizer security.ContentSanitizerService) *Service {
	return &Service{
		spots:     spots,
		reviews:   reviews,
		sanitizer: sanitizer,
	}
}

// ListCards は公開中の駐車場のカード一覧を返す。
func (s *Service) ListCards(ctx context.Context) ([]Card, error) {
	spots, err := s.spots.ListActive(ctx)
	if err != nil {
		slog.Error("failed to list parking spots", slog.String("error", err.Error()))
		return nil, model.NewUpstreamUnavailableError()
	}

	cards := make([]Card, 0, len(spots))
	for i := range spots {
		cards = append(cards, NewCard(&spots[i], s.sanitizer))
	}
	return cards, nil
}

// GetDetail は駐車場の詳細を返す。
// IDがUUID形式でない場合はINVALID_ID、存在しない場合はSPOT_NOT_FOUNDのエラーを返す。
func (s *Service) GetDetail(ctx context.Context, spotID string) (*Detail, error) {
	if _, err := uuid.Parse(spotID); err != nil {
		return nil, model.NewInvalidIDError(spotID)
	}

	// 1. 駐車場を取得
	spot, err := s.spots.FindByID(ctx, spotID)
	if err != nil {
		slog.Error("failed to find parking spot",
			slog.String("spot_id", spotID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUpstreamUnavailableError()
	}
	if spot == nil {
		return nil, model.NewSpotNotFoundError(spotID)
	}

	// 2. レビューを取得
	reviews, err := s.reviews.ListBySpot(ctx, spotID)
	if err != nil {
		slog.Error("failed to list reviews",
			slog.String("spot_id", spotID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUpstreamUnavailableError()
	}

	detail := NewDetail(spot, reviews, s.sanitizer)
	return &detail, nil
}
