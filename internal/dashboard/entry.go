package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/parkspot/internal/model"
)

// 入場検証の結果種別。メトリクスに使用する。
const (
	EntryAdmitted = "admitted"
	EntryRejected = "rejected"
	EntryNotFound = "not_found"
)

// EntryResult は入場検証の結果。
type EntryResult struct {
	BookingID     string              `json:"booking_id"`
	ShortID       string              `json:"short_id"`
	SpotName      string              `json:"spot_name"`
	VehicleNumber string              `json:"vehicle_number"`
	Status        model.BookingStatus `json:"status"`
	Admitted      bool                `json:"admitted"`
	Reason        string              `json:"reason,omitempty"`
	ValidatedAt   time.Time           `json:"validated_at"`
}

// ValidateEntry は読み取ったコード（予約ID）で入場を検証する。
//
// 管理できる駐車場の予約で、ステータスがconfirmedまたはactive、かつ
// [開始時刻 - EntryEarlyWindow, 終了時刻] の範囲内であれば入場を許可する。
// confirmedの予約は入場時にactiveに更新する。
// 検証結果はホーム画面に表示するため利用者ごとに保持する。
func (s *Service) ValidateEntry(ctx context.Context, actor Actor, code string) (*EntryResult, error) {
	code = strings.TrimSpace(code)
	if err := validateUUID(code); err != nil {
		s.recordEntry(EntryNotFound)
		return nil, err
	}
	ctx = authContext(ctx, actor)

	// 1. 予約を取得（管理できない予約は存在しないものとして扱う）
	booking, err := s.bookings.FindByID(ctx, code)
	if err != nil {
		return nil, upstreamError("failed to find booking", actor, err)
	}
	if booking == nil || !s.canManage(actor, booking) {
		s.recordEntry(EntryNotFound)
		return nil, model.NewBookingNotFoundError(code)
	}

	now := s.now()
	result := &EntryResult{
		BookingID:     booking.ID,
		ShortID:       booking.ShortID(),
		VehicleNumber: booking.VehicleNumber,
		Status:        booking.Status,
		ValidatedAt:   now,
	}
	if booking.Spot != nil {
		result.SpotName = booking.Spot.Name
	}

	// 2. ステータスと時間帯を検証
	if reason := s.rejectReason(booking, now); reason != "" {
		result.Reason = reason
		s.rememberEntry(actor.UserID, result)
		s.recordEntry(EntryRejected)
		slog.Info("entry rejected",
			slog.String("user_id", actor.UserID),
			slog.String("booking_id", booking.ID),
			slog.String("reason", reason),
		)
		return nil, model.NewEntryRejectedError(reason)
	}

	// 3. 確定済みの予約を利用中にする
	if booking.Status == model.BookingConfirmed {
		if err := s.bookings.UpdateStatus(ctx, booking.ID, model.BookingActive); err != nil {
			return nil, upstreamError("failed to activate booking", actor, err)
		}
		result.Status = model.BookingActive
	}

	result.Admitted = true
	s.rememberEntry(actor.UserID, result)
	s.recordEntry(EntryAdmitted)
	slog.Info("entry admitted",
		slog.String("user_id", actor.UserID),
		slog.String("booking_id", booking.ID),
		slog.String("status", string(result.Status)),
	)
	return result, nil
}

// rejectReason は入場を許可できない理由を返す。許可できる場合は空文字を返す。
func (s *Service) rejectReason(b *model.Booking, now time.Time) string {
	if !b.Status.IsOngoing() {
		return fmt.Sprintf("booking is %s", b.Status)
	}
	if now.Before(b.StartTime.Add(-s.config.EntryEarlyWindow)) {
		return "booking has not started yet"
	}
	if now.After(b.EndTime) {
		return "booking has ended"
	}
	return ""
}

func (s *Service) canManage(actor Actor, b *model.Booking) bool {
	if actor.IsAdmin() {
		return true
	}
	return b.Spot != nil && b.Spot.OwnerID == actor.UserID
}

func (s *Service) rememberEntry(userID string, result *EntryResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *result
	s.lastEntries[userID] = &cp
}

// lastEntry は利用者の直近の入場検証結果を返す。ない場合はnilを返す。
func (s *Service) lastEntry(userID string) *EntryResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.lastEntries[userID]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

func (s *Service) recordEntry(result string) {
	if s.recorder != nil {
		s.recorder.RecordEntryValidation(result)
	}
}
