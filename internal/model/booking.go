package model

import "time"

// BookingStatus は予約ステータスを表す。
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingActive    BookingStatus = "active"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

// AllBookingStatuses はレポートの集計順に並べた全ステータス。
var AllBookingStatuses = []BookingStatus{
	BookingPending, BookingConfirmed, BookingActive, BookingCompleted, BookingCancelled,
}

// IsOngoing は進行中（確定済みまたは利用中）の予約かどうかを返す。
func (s BookingStatus) IsOngoing() bool {
	return s == BookingConfirmed || s == BookingActive
}

// BookingSpot は予約に埋め込まれる駐車場の要約情報（parking_spots(name, address)）。
type BookingSpot struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	OwnerID string `json:"owner_id,omitempty"`
}

// Booking は予約（bookingsテーブル）を表す。
type Booking struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	SpotID        string        `json:"spot_id"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
	TotalCost     float64       `json:"total_cost"`
	Status        BookingStatus `json:"status"`
	VehicleNumber string        `json:"vehicle_number"`
	CreatedAt     time.Time     `json:"created_at"`
	Spot          *BookingSpot  `json:"parking_spots,omitempty"`
}

// ShortID は画面表示用に予約IDの末尾6文字を返す。
func (b *Booking) ShortID() string {
	if len(b.ID) <= 6 {
		return b.ID
	}
	return b.ID[len(b.ID)-6:]
}
