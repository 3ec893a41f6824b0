package dashboard

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/parkspot/internal/model"
)

func assertAPIError(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError %s, got %v", code, err)
	}
	if apiErr.Code != code {
		t.Errorf("code = %s, want %s", apiErr.Code, code)
	}
}

func TestOverview(t *testing.T) {
	d := newTestDeps()
	d.spots.spots = []model.ParkingSpot{
		{ID: spotID, OwnerID: ownerID, Rating: 4.5},
		{ID: "s2", OwnerID: ownerID, Rating: 3.9},
		{ID: "s3", OwnerID: otherID, Rating: 1.0},
	}
	today := fixedNow.Add(-2 * time.Hour)
	yesterday := fixedNow.Add(-24 * time.Hour)
	d.bookings.bookings = []model.Booking{
		ownedBooking("booking-000001", model.BookingConfirmed, 10, today),
		ownedBooking("booking-000002", model.BookingActive, 20, today),
		ownedBooking("booking-000003", model.BookingCancelled, 5, today),
		ownedBooking("booking-000004", model.BookingCompleted, 7, today),
		ownedBooking("booking-000005", model.BookingActive, 100, yesterday),
	}
	svc := newTestService(d)

	ov, err := svc.Overview(context.Background(), ownerActor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantStats := Stats{
		TodayRevenue:   42,
		ActiveBookings: 3,
		TotalSpots:     2,
		AverageRating:  4.2,
	}
	if diff := cmp.Diff(wantStats, ov.Stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
	if len(ov.TodayBookings) != 3 || ov.TodayBookings[0].ShortID != "000001" {
		t.Errorf("today bookings = %+v", ov.TodayBookings)
	}
	if len(ov.RecentActivity) != 4 || ov.RecentActivity[3].ID != "booking-000004" {
		t.Errorf("recent activity = %+v", ov.RecentActivity)
	}
	if ov.LastEntry != nil {
		t.Errorf("last entry = %+v, want nil", ov.LastEntry)
	}
	if ov.TodayBookings[0].SpotName != "Central Lot" {
		t.Errorf("spot name = %q", ov.TodayBookings[0].SpotName)
	}
}

func TestOverview_NoSpotsHasZeroRating(t *testing.T) {
	svc := newTestService(newTestDeps())

	ov, err := svc.Overview(context.Background(), ownerActor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ov.Stats.AverageRating != 0 || ov.Stats.TotalSpots != 0 {
		t.Errorf("stats = %+v", ov.Stats)
	}
	if ov.TodayBookings == nil || ov.RecentActivity == nil {
		t.Error("empty lists should be non-nil for JSON")
	}
}

func TestOverview_UsesActorTokenAndScope(t *testing.T) {
	d := newTestDeps()
	svc := newTestService(d)

	if _, err := svc.Overview(context.Background(), ownerActor); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Overview(context.Background(), adminActor); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if diff := cmp.Diff([]string{ownerID}, d.spots.ownerCalls); diff != "" {
		t.Errorf("owner calls mismatch (-want +got):\n%s", diff)
	}
	if d.spots.allCalls != 1 {
		t.Errorf("admin ListAll calls = %d, want 1", d.spots.allCalls)
	}
	if diff := cmp.Diff([]string{"owner-token", "admin-token"}, d.spots.tokens); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestOverview_LoadFailure(t *testing.T) {
	d := newTestDeps()
	d.bookings.err = errors.New("connection reset")
	svc := newTestService(d)

	_, err := svc.Overview(context.Background(), ownerActor)
	assertAPIError(t, err, model.ErrCodeUpstreamUnavailable)
}

func TestOverview_TodayUsesConfiguredLocation(t *testing.T) {
	d := newTestDeps()
	// UTCでは前日23:30、UTC+9では当日08:30
	created := time.Date(2024, 4, 30, 23, 30, 0, 0, time.UTC)
	d.bookings.bookings = []model.Booking{ownedBooking("b1", model.BookingCompleted, 15, created)}
	svc := newTestService(d)
	svc.config.Location = time.FixedZone("JST", 9*60*60)

	ov, err := svc.Overview(context.Background(), ownerActor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ov.Stats.TodayRevenue != 15 {
		t.Errorf("today revenue = %v, want 15", ov.Stats.TodayRevenue)
	}
}

func TestSpots(t *testing.T) {
	d := newTestDeps()
	d.spots.spots = []model.ParkingSpot{
		{ID: spotID, OwnerID: ownerID, Name: "<i>Central</i> Lot", IsActive: true, TotalSlots: 10, AvailableSlots: 4},
	}
	svc := newTestService(d)

	rows, err := svc.Spots(context.Background(), ownerActor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []SpotRow{{ID: spotID, Name: "Central Lot", IsActive: true, TotalSlots: 10, AvailableSlots: 4}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestToggleSpot(t *testing.T) {
	d := newTestDeps()
	d.spots.spots = []model.ParkingSpot{{ID: spotID, OwnerID: ownerID, IsActive: true}}
	svc := newTestService(d)

	active, err := svc.ToggleSpot(context.Background(), ownerActor, spotID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if active {
		t.Error("expected spot to become inactive")
	}

	active, _ = svc.ToggleSpot(context.Background(), ownerActor, spotID)
	if !active {
		t.Error("expected spot to become active again")
	}
}

func TestToggleSpot_Errors(t *testing.T) {
	tests := []struct {
		name     string
		actor    Actor
		spotID   string
		wantCode string
	}{
		{"UUID形式でないID", ownerActor, "abc", model.ErrCodeInvalidID},
		{"存在しない駐車場", ownerActor, "ffffffff-ffff-4fff-8fff-ffffffffffff", model.ErrCodeSpotNotFound},
		{"他のオーナーの駐車場", Actor{UserID: otherID, Role: model.RoleOwner}, spotID, model.ErrCodeSpotNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDeps()
			d.spots.spots = []model.ParkingSpot{{ID: spotID, OwnerID: ownerID, IsActive: true}}
			svc := newTestService(d)

			_, err := svc.ToggleSpot(context.Background(), tt.actor, tt.spotID)
			assertAPIError(t, err, tt.wantCode)
			if !d.spots.spots[0].IsActive {
				t.Error("spot should not be changed")
			}
		})
	}
}

func TestToggleSpot_AdminCanToggleAnySpot(t *testing.T) {
	d := newTestDeps()
	d.spots.spots = []model.ParkingSpot{{ID: spotID, OwnerID: ownerID, IsActive: false}}
	svc := newTestService(d)

	active, err := svc.ToggleSpot(context.Background(), adminActor, spotID)
	if err != nil || !active {
		t.Errorf("active = %v, err = %v", active, err)
	}
}

func TestBookings(t *testing.T) {
	d := newTestDeps()
	d.bookings.bookings = []model.Booking{
		ownedBooking("7d1e2f3a-0000-4000-8000-00000000abcdef", model.BookingPending, 12.5, fixedNow),
		{ID: "other", Spot: &model.BookingSpot{OwnerID: otherID}},
	}
	svc := newTestService(d)

	rows, err := svc.Bookings(context.Background(), ownerActor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].ShortID != "abcdef" || rows[0].SpotName != "Central Lot" || rows[0].TotalCost != 12.5 {
		t.Errorf("row = %+v", rows[0])
	}
}

func TestReviews(t *testing.T) {
	d := newTestDeps()
	created := fixedNow.Add(-time.Hour)
	d.reviews.reviews = []model.Review{
		{ID: "r1", SpotID: spotID, Rating: 5, Comment: "<b>Great</b>", Author: &model.ReviewAuthor{Name: "Vic"}, CreatedAt: created},
		{ID: "r2", SpotID: spotID, Rating: 4, IsAnonymous: true, Author: &model.ReviewAuthor{Name: "Hidden"}, CreatedAt: created},
		{ID: "r3", SpotID: spotID, Rating: 4, CreatedAt: created},
	}
	svc := newTestService(d)

	view, err := svc.Reviews(context.Background(), ownerActor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := &ReviewsView{
		AverageRating: 4.3,
		TotalReviews:  3,
		Reviews: []ReviewRow{
			{ID: "r1", SpotID: spotID, AuthorName: "Vic", Rating: 5, Comment: "Great", CreatedAt: created},
			{ID: "r2", SpotID: spotID, AuthorName: "Anonymous User", Rating: 4, CreatedAt: created},
			{ID: "r3", SpotID: spotID, AuthorName: "User", Rating: 4, CreatedAt: created},
		},
	}
	if diff := cmp.Diff(want, view); diff != "" {
		t.Errorf("reviews mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{ownerID}, d.reviews.ownerCalls); diff != "" {
		t.Errorf("owner calls mismatch (-want +got):\n%s", diff)
	}
}

func TestReviews_AdminSeesAll(t *testing.T) {
	d := newTestDeps()
	svc := newTestService(d)

	view, err := svc.Reviews(context.Background(), adminActor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.reviews.allCalls != 1 || view.AverageRating != 0 || view.Reviews == nil {
		t.Errorf("allCalls = %d, view = %+v", d.reviews.allCalls, view)
	}
}

func TestReport(t *testing.T) {
	d := newTestDeps()
	d.spots.spots = []model.ParkingSpot{{ID: spotID, OwnerID: ownerID, Name: "Central Lot", IsActive: true}}
	d.bookings.bookings = []model.Booking{
		ownedBooking("b1", model.BookingCompleted, 30, fixedNow),
		ownedBooking("b2", model.BookingCancelled, 10, fixedNow),
	}
	svc := newTestService(d)

	r, err := svc.Report(context.Background(), ownerActor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.TotalRevenue != 40 || r.TotalBookings != 2 || r.OwnerName != "Owner One" || !r.GeneratedAt.Equal(fixedNow) {
		t.Errorf("report = %+v", r)
	}
}

func TestReportPDF(t *testing.T) {
	d := newTestDeps()
	d.spots.spots = []model.ParkingSpot{{ID: spotID, OwnerID: ownerID, Name: "Central Lot"}}
	svc := newTestService(d)

	var buf bytes.Buffer
	if err := svc.ReportPDF(context.Background(), ownerActor, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "%PDF-") {
		t.Error("output is not a PDF")
	}
}

func TestReportPDF_LoadFailureWritesNothing(t *testing.T) {
	d := newTestDeps()
	d.spots.err = errors.New("down")
	svc := newTestService(d)

	var buf bytes.Buffer
	err := svc.ReportPDF(context.Background(), ownerActor, &buf)
	assertAPIError(t, err, model.ErrCodeUpstreamUnavailable)
	if buf.Len() != 0 {
		t.Error("nothing should be written on failure")
	}
}
