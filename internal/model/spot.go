package model

// ParkingSpot は駐車場（parking_spotsテーブル）を表す。
type ParkingSpot struct {
	ID             string   `json:"id"`
	OwnerID        string   `json:"owner_id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Address        string   `json:"address"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	Price          float64  `json:"price"`
	PriceType      string   `json:"price_type"`
	TotalSlots     int      `json:"total_slots"`
	AvailableSlots int      `json:"available_slots"`
	Rating         float64  `json:"rating"`
	ReviewCount    int      `json:"review_count"`
	Amenities      []string `json:"amenities"`
	Images         []string `json:"images"`
	OpeningHours   string   `json:"opening_hours"`
	Phone          *string  `json:"phone"`
	IsActive       bool     `json:"is_active"`
}

// HasCoordinates は緯度経度が両方とも設定されているかどうかを返す。
func (s *ParkingSpot) HasCoordinates() bool {
	return s.Latitude != nil && s.Longitude != nil
}
