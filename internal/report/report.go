// Package report はオーナー向けの売上レポートの集計とPDF出力を提供する。
package report

import (
	"sort"
	"time"

	"github.com/hitoshi/parkspot/internal/model"
)

// StatusCount はステータス別の予約件数。
type StatusCount struct {
	Status model.BookingStatus `json:"status"`
	Count  int                 `json:"count"`
}

// SpotRevenue は駐車場別の売上。
type SpotRevenue struct {
	SpotID   string  `json:"spot_id"`
	Name     string  `json:"name"`
	Bookings int     `json:"bookings"`
	Revenue  float64 `json:"revenue"`
}

// Report は売上レポート。
type Report struct {
	OwnerName     string        `json:"owner_name"`
	GeneratedAt   time.Time     `json:"generated_at"`
	TotalRevenue  float64       `json:"total_revenue"`
	TotalBookings int           `json:"total_bookings"`
	TotalSpots    int           `json:"total_spots"`
	ActiveSpots   int           `json:"active_spots"`
	ByStatus      []StatusCount `json:"by_status"`
	BySpot        []SpotRevenue `json:"by_spot"`
}

// Build は駐車場と予約からレポートを集計する。
// 売上は全予約のtotal_costの合計とする。駐車場別の売上は売上の多い順に並べる。
func Build(ownerName string, spots []model.ParkingSpot, bookings []model.Booking, now time.Time) *Report {
	r := &Report{
		OwnerName:     ownerName,
		GeneratedAt:   now,
		TotalBookings: len(bookings),
		TotalSpots:    len(spots),
		ByStatus:      make([]StatusCount, 0, len(model.AllBookingStatuses)),
		BySpot:        make([]SpotRevenue, 0, len(spots)),
	}

	// 1. 駐車場ごとの集計枠を用意（予約のない駐車場も0件で含める）
	index := make(map[string]int, len(spots))
	for _, s := range spots {
		if s.IsActive {
			r.ActiveSpots++
		}
		index[s.ID] = len(r.BySpot)
		r.BySpot = append(r.BySpot, SpotRevenue{SpotID: s.ID, Name: s.Name})
	}

	// 2. 予約を集計
	counts := make(map[model.BookingStatus]int)
	for _, b := range bookings {
		r.TotalRevenue += b.TotalCost
		counts[b.Status]++

		i, ok := index[b.SpotID]
		if !ok {
			name := ""
			if b.Spot != nil {
				name = b.Spot.Name
			}
			i = len(r.BySpot)
			index[b.SpotID] = i
			r.BySpot = append(r.BySpot, SpotRevenue{SpotID: b.SpotID, Name: name})
		}
		r.BySpot[i].Bookings++
		r.BySpot[i].Revenue += b.TotalCost
	}

	for _, st := range model.AllBookingStatuses {
		r.ByStatus = append(r.ByStatus, StatusCount{Status: st, Count: counts[st]})
	}

	sort.SliceStable(r.BySpot, func(i, j int) bool {
		return r.BySpot[i].Revenue > r.BySpot[j].Revenue
	})
	return r
}
