package dashboard

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/hitoshi/parkspot/internal/model"
	"github.com/hitoshi/parkspot/internal/repository"
	"github.com/hitoshi/parkspot/internal/security"
	"github.com/hitoshi/parkspot/internal/supabase"
)

// --- モック定義 ---

type mockSpotRepo struct {
	mu          sync.Mutex
	spots       []model.ParkingSpot
	err         error
	ownerCalls  []string
	allCalls    int
	setActiveFn func(ctx context.Context, id string, active bool) error
	tokens      []string
}

func (m *mockSpotRepo) track(ctx context.Context) {
	m.tokens = append(m.tokens, supabase.AccessTokenFromContext(ctx))
}

func (m *mockSpotRepo) ListActive(context.Context) ([]model.ParkingSpot, error) { return nil, nil }

func (m *mockSpotRepo) FindByID(ctx context.Context, id string) (*model.ParkingSpot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.track(ctx)
	if m.err != nil {
		return nil, m.err
	}
	for _, s := range m.spots {
		if s.ID == id {
			cp := s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockSpotRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.ParkingSpot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.track(ctx)
	m.ownerCalls = append(m.ownerCalls, ownerID)
	if m.err != nil {
		return nil, m.err
	}
	var out []model.ParkingSpot
	for _, s := range m.spots {
		if s.OwnerID == ownerID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockSpotRepo) ListAll(ctx context.Context) ([]model.ParkingSpot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.track(ctx)
	m.allCalls++
	if m.err != nil {
		return nil, m.err
	}
	return append([]model.ParkingSpot(nil), m.spots...), nil
}

func (m *mockSpotRepo) SetActive(ctx context.Context, id string, active bool) error {
	if m.setActiveFn != nil {
		return m.setActiveFn(ctx, id, active)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.spots {
		if m.spots[i].ID == id {
			m.spots[i].IsActive = active
		}
	}
	return nil
}

type mockBookingRepo struct {
	mu       sync.Mutex
	bookings []model.Booking
	err      error
	updates  map[string]model.BookingStatus
}

func (m *mockBookingRepo) ListByOwner(_ context.Context, ownerID string) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []model.Booking
	for _, b := range m.bookings {
		if b.Spot != nil && b.Spot.OwnerID == ownerID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *mockBookingRepo) ListAll(context.Context) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]model.Booking(nil), m.bookings...), nil
}

func (m *mockBookingRepo) FindByID(_ context.Context, id string) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, b := range m.bookings {
		if b.ID == id {
			cp := b
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockBookingRepo) UpdateStatus(_ context.Context, id string, status model.BookingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updates == nil {
		m.updates = make(map[string]model.BookingStatus)
	}
	m.updates[id] = status
	return nil
}

type mockReviewRepo struct {
	reviews    []model.Review
	err        error
	ownerCalls []string
	allCalls   int
}

func (m *mockReviewRepo) ListBySpot(context.Context, string) ([]model.Review, error) { return nil, nil }

func (m *mockReviewRepo) ListByOwner(_ context.Context, ownerID string) ([]model.Review, error) {
	m.ownerCalls = append(m.ownerCalls, ownerID)
	return m.reviews, m.err
}

func (m *mockReviewRepo) ListAll(context.Context) ([]model.Review, error) {
	m.allCalls++
	return m.reviews, m.err
}

type mockPaymentRepo struct {
	methods      map[string]model.PaymentMethod
	saved        []model.PaymentMethod
	clearCalls   []string
	saveErr      error
	listByOwnErr error
}

func newMockPaymentRepo() *mockPaymentRepo {
	return &mockPaymentRepo{methods: make(map[string]model.PaymentMethod)}
}

func (m *mockPaymentRepo) ListByOwner(_ context.Context, ownerID string) ([]model.PaymentMethod, error) {
	if m.listByOwnErr != nil {
		return nil, m.listByOwnErr
	}
	var out []model.PaymentMethod
	for _, pm := range m.methods {
		if pm.OwnerID == ownerID {
			out = append(out, pm)
		}
	}
	return out, nil
}

func (m *mockPaymentRepo) FindByID(_ context.Context, id string) (*model.PaymentMethod, error) {
	pm, ok := m.methods[id]
	if !ok {
		return nil, nil
	}
	return &pm, nil
}

func (m *mockPaymentRepo) Save(_ context.Context, method *model.PaymentMethod) (*model.PaymentMethod, error) {
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	cp := *method
	if cp.ID == "" {
		cp.ID = "new-method"
	}
	m.saved = append(m.saved, cp)
	m.methods[cp.ID] = cp
	return &cp, nil
}

func (m *mockPaymentRepo) ClearDefault(_ context.Context, ownerID string) error {
	m.clearCalls = append(m.clearCalls, ownerID)
	return nil
}

type uploadCall struct {
	bucket, path, contentType string
	data                      []byte
	token                     string
}

type mockStorage struct {
	uploads []uploadCall
	err     error
}

func (m *mockStorage) Upload(ctx context.Context, bucket, path, contentType string, data io.Reader, _ bool) error {
	if m.err != nil {
		return m.err
	}
	b, _ := io.ReadAll(data)
	m.uploads = append(m.uploads, uploadCall{
		bucket:      bucket,
		path:        path,
		contentType: contentType,
		data:        b,
		token:       supabase.AccessTokenFromContext(ctx),
	})
	return nil
}

func (m *mockStorage) PublicURL(bucket, path string) string {
	return "https://project.supabase.co/storage/v1/object/public/" + bucket + "/" + path
}

type mockFetcher struct {
	fetchFn func(ctx context.Context, rawURL string) (*security.RemoteImage, error)
}

func (m *mockFetcher) Fetch(ctx context.Context, rawURL string) (*security.RemoteImage, error) {
	return m.fetchFn(ctx, rawURL)
}

type mockRecorder struct {
	mu      sync.Mutex
	results []string
}

func (m *mockRecorder) RecordEntryValidation(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
}

// --- compile-time interface checks ---
var (
	_ repository.SpotRepository          = (*mockSpotRepo)(nil)
	_ repository.BookingRepository       = (*mockBookingRepo)(nil)
	_ repository.ReviewRepository        = (*mockReviewRepo)(nil)
	_ repository.PaymentMethodRepository = (*mockPaymentRepo)(nil)
	_ Storage                            = (*mockStorage)(nil)
	_ ImageFetcher                       = (*mockFetcher)(nil)
	_ Recorder                           = (*mockRecorder)(nil)
)

// --- ヘルパー ---

// fixedNow はテストの現在時刻（UTC）。
var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

const (
	ownerID  = "owner-1"
	otherID  = "owner-2"
	spotID   = "0b8f6c3e-1d2a-4e5f-9a6b-7c8d9e0f1a2b"
	bookingA = "9a1b2c3d-4e5f-4a6b-8c7d-0e1f2a3b4c5d"
	bookingB = "1f2e3d4c-5b6a-4978-8a9b-0c1d2e3f4a5b"
)

var ownerActor = Actor{UserID: ownerID, Name: "Owner One", Role: model.RoleOwner, AccessToken: "owner-token"}
var adminActor = Actor{UserID: "admin-1", Role: model.RoleAdmin, AccessToken: "admin-token"}

type testDeps struct {
	spots    *mockSpotRepo
	bookings *mockBookingRepo
	reviews  *mockReviewRepo
	payments *mockPaymentRepo
	storage  *mockStorage
	fetcher  *mockFetcher
	recorder *mockRecorder
}

func newTestDeps() *testDeps {
	return &testDeps{
		spots:    &mockSpotRepo{},
		bookings: &mockBookingRepo{},
		reviews:  &mockReviewRepo{},
		payments: newMockPaymentRepo(),
		storage:  &mockStorage{},
		fetcher:  &mockFetcher{},
		recorder: &mockRecorder{},
	}
}

func newTestService(d *testDeps) *Service {
	svc := NewService(Deps{
		Spots:          d.spots,
		Bookings:       d.bookings,
		Reviews:        d.reviews,
		PaymentMethods: d.payments,
		Storage:        d.storage,
		Fetcher:        d.fetcher,
		Sanitizer:      security.NewContentSanitizer(),
		Recorder:       d.recorder,
	}, Config{
		StorageBucket:    "payment-qr",
		MaxImageSize:     1024,
		EntryEarlyWindow: 15 * time.Minute,
		Location:         time.UTC,
	})
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func ownedBooking(id string, status model.BookingStatus, cost float64, created time.Time) model.Booking {
	return model.Booking{
		ID:        id,
		SpotID:    spotID,
		TotalCost: cost,
		Status:    status,
		StartTime: fixedNow.Add(-time.Hour),
		EndTime:   fixedNow.Add(time.Hour),
		CreatedAt: created,
		Spot:      &model.BookingSpot{Name: "Central Lot", OwnerID: ownerID},
	}
}

func strPtr(s string) *string { return &s }
