package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/parkspot/internal/spot"
)

// SpotServiceInterface は駐車場ハンドラーが必要とするサービスインターフェース。
type SpotServiceInterface interface {
	// ListCards は公開中の駐車場をカード表示用に返す。
	ListCards(ctx context.Context) ([]spot.Card, error)
	// GetDetail は駐車場の詳細とレビューを返す。
	GetDetail(ctx context.Context, spotID string) (*spot.Detail, error)
}

// SpotHandler は駐車場閲覧のHTTPハンドラー。
type SpotHandler struct {
	service SpotServiceInterface
}

// NewSpotHandler はSpotHandlerを生成する。
func NewSpotHandler(service SpotServiceInterface) *SpotHandler {
	return &SpotHandler{service: service}
}

// ListSpots は駐車場一覧を返す。
// GET /api/spots
func (h *SpotHandler) ListSpots(w http.ResponseWriter, r *http.Request) {
	cards, err := h.service.ListCards(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if cards == nil {
		cards = []spot.Card{}
	}
	writeJSON(w, http.StatusOK, cards)
}

// GetSpot は駐車場の詳細を返す。
// GET /api/spots/{id}
func (h *SpotHandler) GetSpot(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.GetDetail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}
