// Package dashboard はオーナー・管理者向けダッシュボードの各セクションを提供する。
//
// オーナーは自分の駐車場に関するデータのみを、管理者は全データを参照する。
// データはSupabaseのRLSで保護されるため、呼び出しには利用者のアクセストークンを付与する。
package dashboard

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/parkspot/internal/model"
	"github.com/hitoshi/parkspot/internal/repository"
	"github.com/hitoshi/parkspot/internal/security"
	"github.com/hitoshi/parkspot/internal/spot"
	"github.com/hitoshi/parkspot/internal/supabase"
)

// ホーム画面に表示する件数。
const (
	todayBookingsLimit  = 3
	recentActivityLimit = 4
)

// Actor はダッシュボードの利用者。
type Actor struct {
	UserID      string
	Name        string
	Role        model.Role
	AccessToken string
}

// IsAdmin は管理者かどうかを返す。
func (a Actor) IsAdmin() bool {
	return a.Role == model.RoleAdmin
}

// Storage はQRコード画像の保存先。supabase.Clientが実装する。
type Storage interface {
	Upload(ctx context.Context, bucket, path, contentType string, data io.Reader, upsert bool) error
	PublicURL(bucket, path string) string
}

// ImageFetcher はURLから画像を取り込む。security.ImageFetcherが実装する。
type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*security.RemoteImage, error)
}

// Recorder は入場検証の結果を記録するインターフェース。
type Recorder interface {
	RecordEntryValidation(result string)
}

// Config はダッシュボードの設定。
type Config struct {
	StorageBucket    string         // QRコード画像を保存するバケット
	MaxImageSize     int64          // アップロード画像の最大サイズ（バイト）
	EntryEarlyWindow time.Duration  // 予約開始前に入場を許可する時間
	Location         *time.Location // 「今日」を判定するタイムゾーン
}

// Deps はServiceの依存。
type Deps struct {
	Spots          repository.SpotRepository
	Bookings       repository.BookingRepository
	Reviews        repository.ReviewRepository
	PaymentMethods repository.PaymentMethodRepository
	Storage        Storage
	Fetcher        ImageFetcher
	Sanitizer      security.ContentSanitizerService
	Recorder       Recorder // nilの場合は記録しない
}

// Service はダッシュボードの各セクションを提供する。
type Service struct {
	spots     repository.SpotRepository
	bookings  repository.BookingRepository
	reviews   repository.ReviewRepository
	payments  repository.PaymentMethodRepository
	storage   Storage
	fetcher   ImageFetcher
	sanitizer security.ContentSanitizerService
	recorder  Recorder
	config    Config
	now       func() time.Time

	mu          sync.Mutex
	lastEntries map[string]*EntryResult // 利用者ごとの直近の入場検証結果
}

// NewService はServiceを生成する。
func NewService(deps Deps, config Config) *Service {
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.MaxImageSize <= 0 {
		config.MaxImageSize = 2 << 20
	}
	return &Service{
		spots:       deps.Spots,
		bookings:    deps.Bookings,
		reviews:     deps.Reviews,
		payments:    deps.PaymentMethods,
		storage:     deps.Storage,
		fetcher:     deps.Fetcher,
		sanitizer:   deps.Sanitizer,
		recorder:    deps.Recorder,
		config:      config,
		now:         time.Now,
		lastEntries: make(map[string]*EntryResult),
	}
}

// Stats はホーム画面の集計値。
type Stats struct {
	TodayRevenue   float64 `json:"today_revenue"`
	ActiveBookings int     `json:"active_bookings"`
	TotalSpots     int     `json:"total_spots"`
	AverageRating  float64 `json:"average_rating"`
}

// BookingRow は予約一覧の1行。
type BookingRow struct {
	ID            string              `json:"id"`
	ShortID       string              `json:"short_id"`
	SpotID        string              `json:"spot_id"`
	SpotName      string              `json:"spot_name"`
	VehicleNumber string              `json:"vehicle_number"`
	StartTime     time.Time           `json:"start_time"`
	EndTime       time.Time           `json:"end_time"`
	TotalCost     float64             `json:"total_cost"`
	Status        model.BookingStatus `json:"status"`
	CreatedAt     time.Time           `json:"created_at"`
}

// Overview はダッシュボードのホーム画面。
type Overview struct {
	Stats          Stats        `json:"stats"`
	TodayBookings  []BookingRow `json:"today_bookings"`
	RecentActivity []BookingRow `json:"recent_activity"`
	LastEntry      *EntryResult `json:"last_entry"`
}

// SpotRow は駐車場管理画面の1行。
type SpotRow struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Address        string  `json:"address"`
	Price          float64 `json:"price"`
	PriceType      string  `json:"price_type"`
	TotalSlots     int     `json:"total_slots"`
	AvailableSlots int     `json:"available_slots"`
	Rating         float64 `json:"rating"`
	ReviewCount    int     `json:"review_count"`
	IsActive       bool    `json:"is_active"`
}

// ReviewRow はレビュー管理画面の1行。
type ReviewRow struct {
	ID         string    `json:"id"`
	SpotID     string    `json:"spot_id"`
	AuthorName string    `json:"author_name"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReviewsView はレビュー管理画面。
type ReviewsView struct {
	AverageRating float64     `json:"average_rating"`
	TotalReviews  int         `json:"total_reviews"`
	Reviews       []ReviewRow `json:"reviews"`
}

// authContext は利用者のアクセストークンを付与したコンテキストを返す。
func authContext(ctx context.Context, actor Actor) context.Context {
	return supabase.ContextWithAccessToken(ctx, actor.AccessToken)
}

// listSpots は利用者が管理できる駐車場を取得する。
func (s *Service) listSpots(ctx context.Context, actor Actor) ([]model.ParkingSpot, error) {
	if actor.IsAdmin() {
		return s.spots.ListAll(ctx)
	}
	return s.spots.ListByOwner(ctx, actor.UserID)
}

// listBookings は利用者が管理できる駐車場の予約を新しい順に取得する。
func (s *Service) listBookings(ctx context.Context, actor Actor) ([]model.Booking, error) {
	if actor.IsAdmin() {
		return s.bookings.ListAll(ctx)
	}
	return s.bookings.ListByOwner(ctx, actor.UserID)
}

// load は駐車場と予約を並行して取得する。
func (s *Service) load(ctx context.Context, actor Actor) ([]model.ParkingSpot, []model.Booking, error) {
	ctx = authContext(ctx, actor)

	var spots []model.ParkingSpot
	var bookings []model.Booking
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		spots, err = s.listSpots(gctx, actor)
		return err
	})
	g.Go(func() error {
		var err error
		bookings, err = s.listBookings(gctx, actor)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, upstreamError("failed to load dashboard data", actor, err)
	}
	return spots, bookings, nil
}

// Overview はホーム画面を返す。
func (s *Service) Overview(ctx context.Context, actor Actor) (*Overview, error) {
	spots, bookings, err := s.load(ctx, actor)
	if err != nil {
		return nil, err
	}

	now := s.now()
	ov := &Overview{
		Stats: Stats{
			TotalSpots:    len(spots),
			AverageRating: averageSpotRating(spots),
		},
		TodayBookings:  make([]BookingRow, 0, todayBookingsLimit),
		RecentActivity: make([]BookingRow, 0, recentActivityLimit),
		LastEntry:      s.lastEntry(actor.UserID),
	}

	for _, b := range bookings {
		if b.Status.IsOngoing() {
			ov.Stats.ActiveBookings++
		}
		if s.sameDay(b.CreatedAt, now) {
			ov.Stats.TodayRevenue += b.TotalCost
			if len(ov.TodayBookings) < todayBookingsLimit {
				ov.TodayBookings = append(ov.TodayBookings, newBookingRow(b))
			}
		}
		if len(ov.RecentActivity) < recentActivityLimit {
			ov.RecentActivity = append(ov.RecentActivity, newBookingRow(b))
		}
	}
	return ov, nil
}

// Spots は管理できる駐車場の一覧を返す。
func (s *Service) Spots(ctx context.Context, actor Actor) ([]SpotRow, error) {
	spots, err := s.listSpots(authContext(ctx, actor), actor)
	if err != nil {
		return nil, upstreamError("failed to list dashboard spots", actor, err)
	}

	rows := make([]SpotRow, 0, len(spots))
	for _, sp := range spots {
		rows = append(rows, SpotRow{
			ID:             sp.ID,
			Name:           s.sanitizer.SanitizeText(sp.Name),
			Address:        s.sanitizer.SanitizeText(sp.Address),
			Price:          sp.Price,
			PriceType:      sp.PriceType,
			TotalSlots:     sp.TotalSlots,
			AvailableSlots: sp.AvailableSlots,
			Rating:         sp.Rating,
			ReviewCount:    sp.ReviewCount,
			IsActive:       sp.IsActive,
		})
	}
	return rows, nil
}

// ToggleSpot は駐車場の公開状態を反転し、反転後の状態を返す。
// 管理できない駐車場はSPOT_NOT_FOUNDとして扱う。
func (s *Service) ToggleSpot(ctx context.Context, actor Actor, spotID string) (bool, error) {
	if err := validateUUID(spotID); err != nil {
		return false, err
	}
	ctx = authContext(ctx, actor)

	// 1. 所有者を確認
	target, err := s.spots.FindByID(ctx, spotID)
	if err != nil {
		return false, upstreamError("failed to find spot", actor, err)
	}
	if target == nil || (!actor.IsAdmin() && target.OwnerID != actor.UserID) {
		return false, model.NewSpotNotFoundError(spotID)
	}

	// 2. 公開状態を反転
	active := !target.IsActive
	if err := s.spots.SetActive(ctx, spotID, active); err != nil {
		return false, upstreamError("failed to toggle spot", actor, err)
	}

	slog.Info("spot visibility toggled",
		slog.String("user_id", actor.UserID),
		slog.String("spot_id", spotID),
		slog.Bool("is_active", active),
	)
	return active, nil
}

// Bookings は管理できる駐車場の予約一覧を返す。
func (s *Service) Bookings(ctx context.Context, actor Actor) ([]BookingRow, error) {
	bookings, err := s.listBookings(authContext(ctx, actor), actor)
	if err != nil {
		return nil, upstreamError("failed to list dashboard bookings", actor, err)
	}

	rows := make([]BookingRow, 0, len(bookings))
	for _, b := range bookings {
		rows = append(rows, newBookingRow(b))
	}
	return rows, nil
}

// Reviews は管理できる駐車場のレビュー一覧を返す。
func (s *Service) Reviews(ctx context.Context, actor Actor) (*ReviewsView, error) {
	ctx = authContext(ctx, actor)

	var reviews []model.Review
	var err error
	if actor.IsAdmin() {
		reviews, err = s.reviews.ListAll(ctx)
	} else {
		reviews, err = s.reviews.ListByOwner(ctx, actor.UserID)
	}
	if err != nil {
		return nil, upstreamError("failed to list dashboard reviews", actor, err)
	}

	view := &ReviewsView{
		TotalReviews: len(reviews),
		Reviews:      make([]ReviewRow, 0, len(reviews)),
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
		view.Reviews = append(view.Reviews, ReviewRow{
			ID:         r.ID,
			SpotID:     r.SpotID,
			AuthorName: spot.AuthorName(r),
			Rating:     r.Rating,
			Comment:    s.sanitizer.SanitizeText(r.Comment),
			CreatedAt:  r.CreatedAt,
		})
	}
	if len(reviews) > 0 {
		view.AverageRating = roundRating(float64(sum) / float64(len(reviews)))
	}
	return view, nil
}

// sameDay は2つの時刻が設定されたタイムゾーンで同じ日付かどうかを返す。
func (s *Service) sameDay(a, b time.Time) bool {
	ay, am, ad := a.In(s.config.Location).Date()
	by, bm, bd := b.In(s.config.Location).Date()
	return ay == by && am == bm && ad == bd
}

func newBookingRow(b model.Booking) BookingRow {
	row := BookingRow{
		ID:            b.ID,
		ShortID:       b.ShortID(),
		SpotID:        b.SpotID,
		VehicleNumber: b.VehicleNumber,
		StartTime:     b.StartTime,
		EndTime:       b.EndTime,
		TotalCost:     b.TotalCost,
		Status:        b.Status,
		CreatedAt:     b.CreatedAt,
	}
	if b.Spot != nil {
		row.SpotName = b.Spot.Name
	}
	return row
}

// averageSpotRating は駐車場の評価の平均を返す。駐車場がない場合は0。
func averageSpotRating(spots []model.ParkingSpot) float64 {
	if len(spots) == 0 {
		return 0
	}
	sum := 0.0
	for _, sp := range spots {
		sum += sp.Rating
	}
	return roundRating(sum / float64(len(spots)))
}

// roundRating は評価を小数第1位に丸める。
func roundRating(v float64) float64 {
	return math.Round(v*10) / 10
}

// upstreamError はSupabase呼び出しの失敗を記録し、再試行を促すエラーに変換する。
func upstreamError(msg string, actor Actor, err error) error {
	slog.Error(msg,
		slog.String("user_id", actor.UserID),
		slog.String("error", err.Error()),
	)
	return model.NewUpstreamUnavailableError()
}
