// Package spot は駐車場の一覧カードと詳細画面のビューモデルを提供する。
package spot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/parkspot/internal/model"
	"github.com/hitoshi/parkspot/internal/security"
)

// 空き状況の表示区分。
const (
	BadgeAvailable = "Available"
	BadgeLimited   = "Limited"
	BadgeFull      = "Full"

	ToneGreen  = "green"
	ToneYellow = "yellow"
	ToneRed    = "red"
)

// 設備アイコンの種別。
const (
	AmenityEV       = "ev"
	AmenitySecurity = "security"
	AmenityCovered  = "covered"
	AmenityDefault  = "default"
)

const (
	evChargingAmenity = "EV Charging"
	anonymousAuthor   = "Anonymous User"
	unknownAuthor     = "User"
)

// Card は検索結果一覧に表示する駐車場カード。
type Card struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Address          string  `json:"address"`
	PriceLabel       string  `json:"price_label"`
	ImageURL         string  `json:"image_url,omitempty"`
	Rating           float64 `json:"rating"`
	ReviewCount      int     `json:"review_count"`
	OpeningHours     string  `json:"opening_hours"`
	AvailabilityText string  `json:"availability_text"`
	Badge            string  `json:"badge"`
	BadgeTone        string  `json:"badge_tone"`
	HasEVCharging    bool    `json:"has_ev_charging"`
	Bookable         bool    `json:"bookable"`
	DetailPath       string  `json:"detail_path"`
	BookPath         string  `json:"book_path"`
}

// Amenity は詳細画面に表示する設備とアイコン種別。
type Amenity struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// ReviewView は詳細画面に表示するレビュー。
type ReviewView struct {
	ID         string    `json:"id"`
	AuthorName string    `json:"author_name"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment"`
	Photos     []string  `json:"photos"`
	CreatedAt  time.Time `json:"created_at"`
}

// Detail は駐車場の詳細画面。
type Detail struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Description      string       `json:"description"`
	Address          string       `json:"address"`
	PriceLabel       string       `json:"price_label"`
	Images           []string     `json:"images"`
	Rating           float64      `json:"rating"`
	ReviewCount      int          `json:"review_count"`
	OpeningHours     string       `json:"opening_hours"`
	Phone            *string      `json:"phone"`
	TotalSlots       int          `json:"total_slots"`
	AvailableSlots   int          `json:"available_slots"`
	AvailabilityText string       `json:"availability_text"`
	Bookable         bool         `json:"bookable"`
	Amenities        []Amenity    `json:"amenities"`
	Reviews          []ReviewView `json:"reviews"`
	NavigationURL    string       `json:"navigation_url,omitempty"`
	BookPath         string       `json:"book_path"`
}

// PriceLabel は"$<料金>/<単位>"形式の料金表示を返す。料金は余分な0を付けない。
func PriceLabel(price float64, priceType string) string {
	return "$" + strconv.FormatFloat(price, 'f', -1, 64) + "/" + priceType
}

// Availability は空き台数から表示区分と色を返す。
// 区分は10台超でAvailable、1台以上でLimited、0台でFull。
// 色は10台超で緑、5台超で黄、それ以外は赤。
func Availability(available int) (badge, tone string) {
	switch {
	case available > 10:
		badge = BadgeAvailable
	case available > 0:
		badge = BadgeLimited
	default:
		badge = BadgeFull
	}
	switch {
	case available > 10:
		tone = ToneGreen
	case available > 5:
		tone = ToneYellow
	default:
		tone = ToneRed
	}
	return badge, tone
}

// AmenityIcon は設備名に対応するアイコン種別を返す。大文字小文字は区別しない。
func AmenityIcon(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ev charging":
		return AmenityEV
	case "cctv security":
		return AmenitySecurity
	case "covered parking":
		return AmenityCovered
	default:
		return AmenityDefault
	}
}

// NavigationURL は経路案内URLを返す。緯度経度がない場合は空文字を返す。
func NavigationURL(s *model.ParkingSpot) string {
	if !s.HasCoordinates() {
		return ""
	}
	return fmt.Sprintf("https://www.google.com/maps/dir/?api=1&destination=%s,%s",
		strconv.FormatFloat(*s.Latitude, 'f', -1, 64),
		strconv.FormatFloat(*s.Longitude, 'f', -1, 64),
	)
}

// NewCard は駐車場からカードを組み立てる。
func NewCard(s *model.ParkingSpot, sanitizer security.ContentSanitizerService) Card {
	badge, tone := Availability(s.AvailableSlots)
	card := Card{
		ID:               s.ID,
		Name:             sanitizer.SanitizeText(s.Name),
		Address:          sanitizer.SanitizeText(s.Address),
		PriceLabel:       PriceLabel(s.Price, s.PriceType),
		Rating:           s.Rating,
		ReviewCount:      s.ReviewCount,
		OpeningHours:     sanitizer.SanitizeText(s.OpeningHours),
		AvailabilityText: availabilityText(s),
		Badge:            badge,
		BadgeTone:        tone,
		HasEVCharging:    hasAmenity(s.Amenities, evChargingAmenity),
		Bookable:         s.AvailableSlots > 0,
		DetailPath:       "/spot/" + s.ID,
		BookPath:         "/book/" + s.ID,
	}
	if len(s.Images) > 0 {
		card.ImageURL = sanitizer.SafeImageURL(s.Images[0])
	}
	return card
}

// NewDetail は駐車場とレビューから詳細画面を組み立てる。
func NewDetail(s *model.ParkingSpot, reviews []model.Review, sanitizer security.ContentSanitizerService) Detail {
	d := Detail{
		ID:               s.ID,
		Name:             sanitizer.SanitizeText(s.Name),
		Description:      sanitizer.SanitizeText(s.Description),
		Address:          sanitizer.SanitizeText(s.Address),
		PriceLabel:       PriceLabel(s.Price, s.PriceType),
		Images:           safeImages(s.Images, sanitizer),
		Rating:           s.Rating,
		ReviewCount:      s.ReviewCount,
		OpeningHours:     sanitizer.SanitizeText(s.OpeningHours),
		Phone:            s.Phone,
		TotalSlots:       s.TotalSlots,
		AvailableSlots:   s.AvailableSlots,
		AvailabilityText: availabilityText(s),
		Bookable:         s.AvailableSlots > 0,
		Amenities:        make([]Amenity, 0, len(s.Amenities)),
		Reviews:          make([]ReviewView, 0, len(reviews)),
		NavigationURL:    NavigationURL(s),
		BookPath:         "/book/" + s.ID,
	}
	for _, a := range s.Amenities {
		d.Amenities = append(d.Amenities, Amenity{Name: sanitizer.SanitizeText(a), Icon: AmenityIcon(a)})
	}
	for _, r := range reviews {
		d.Reviews = append(d.Reviews, newReviewView(r, sanitizer))
	}
	return d
}

func newReviewView(r model.Review, sanitizer security.ContentSanitizerService) ReviewView {
	return ReviewView{
		ID:         r.ID,
		AuthorName: AuthorName(r),
		Rating:     r.Rating,
		Comment:    sanitizer.SanitizeText(r.Comment),
		Photos:     safeImages(r.Photos, sanitizer),
		CreatedAt:  r.CreatedAt,
	}
}

// AuthorName はレビューの投稿者表示名を返す。匿名レビューは投稿者を表示しない。
func AuthorName(r model.Review) string {
	if r.IsAnonymous {
		return anonymousAuthor
	}
	if r.Author == nil || r.Author.Name == "" {
		return unknownAuthor
	}
	return r.Author.Name
}

func availabilityText(s *model.ParkingSpot) string {
	return fmt.Sprintf("%d / %d available", s.AvailableSlots, s.TotalSlots)
}

func hasAmenity(amenities []string, name string) bool {
	for _, a := range amenities {
		if a == name {
			return true
		}
	}
	return false
}

// safeImages はhttpsでない画像URLを除いた一覧を返す。
func safeImages(urls []string, sanitizer security.ContentSanitizerService) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if safe := sanitizer.SafeImageURL(u); safe != "" {
			out = append(out, safe)
		}
	}
	return out
}
