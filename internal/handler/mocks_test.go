package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/hitoshi/parkspot/internal/auth"
	"github.com/hitoshi/parkspot/internal/dashboard"
	"github.com/hitoshi/parkspot/internal/middleware"
	"github.com/hitoshi/parkspot/internal/model"
	"github.com/hitoshi/parkspot/internal/report"
	"github.com/hitoshi/parkspot/internal/spot"
	"github.com/hitoshi/parkspot/internal/supabase"
)

// --- 認証 ---

// mockAuthSession はAuthSessionのモック実装。
type mockAuthSession struct {
	snapshot auth.Snapshot

	signInFn          func(ctx context.Context, email, password string) error
	rememberFn        func(ctx context.Context, email string, remember bool) error
	rememberedEmailFn func(ctx context.Context) (string, error)
	signUpFn          func(ctx context.Context, email, password string, data auth.SignUpData) (*auth.SignUpResult, error)
	updateProfileFn   func(ctx context.Context, update model.ProfileUpdate) error
	resendFn          func(ctx context.Context, email string) error

	signOutCalls int
}

func (m *mockAuthSession) Snapshot() auth.Snapshot {
	return m.snapshot
}

func (m *mockAuthSession) SignIn(ctx context.Context, email, password string) error {
	if m.signInFn != nil {
		return m.signInFn(ctx, email, password)
	}
	return nil
}

func (m *mockAuthSession) RememberCredentials(ctx context.Context, email string, remember bool) error {
	if m.rememberFn != nil {
		return m.rememberFn(ctx, email, remember)
	}
	return nil
}

func (m *mockAuthSession) RememberedEmail(ctx context.Context) (string, error) {
	if m.rememberedEmailFn != nil {
		return m.rememberedEmailFn(ctx)
	}
	return "", nil
}

func (m *mockAuthSession) SignUp(ctx context.Context, email, password string, data auth.SignUpData) (*auth.SignUpResult, error) {
	if m.signUpFn != nil {
		return m.signUpFn(ctx, email, password, data)
	}
	return &auth.SignUpResult{}, nil
}

func (m *mockAuthSession) SignOut(ctx context.Context) {
	m.signOutCalls++
	m.snapshot = auth.Snapshot{}
}

func (m *mockAuthSession) UpdateProfile(ctx context.Context, update model.ProfileUpdate) error {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, update)
	}
	return nil
}

func (m *mockAuthSession) ResendConfirmation(ctx context.Context, email string) error {
	if m.resendFn != nil {
		return m.resendFn(ctx, email)
	}
	return nil
}

// mockAuthProvider はAuthSessionProviderのモック実装。
// 要求されたセッションIDを記録し、常に同じAuthSessionを返す。
type mockAuthProvider struct {
	session     *mockAuthSession
	requestedID string
	released    []string
}

func (m *mockAuthProvider) Session(ctx context.Context, sessionID string) AuthSession {
	m.requestedID = sessionID
	return m.session
}

func (m *mockAuthProvider) Release(sessionID string) {
	m.released = append(m.released, sessionID)
}

// mockSessionDestroyer はBrowserSessionDestroyerのモック実装。
type mockSessionDestroyer struct {
	destroyed []string
	err       error
}

func (m *mockSessionDestroyer) DestroySession(ctx context.Context, sessionID string) error {
	if m.err != nil {
		return m.err
	}
	m.destroyed = append(m.destroyed, sessionID)
	return nil
}

// signedIn はログイン済みの認証状態を生成する。
func signedIn(userID string, role model.Role) auth.Snapshot {
	return auth.Snapshot{
		Session: &supabase.Session{
			AccessToken: "token-" + userID,
			User:        &supabase.User{ID: userID, Email: userID + "@example.com"},
		},
		Profile: &model.Profile{ID: userID, Name: "Name " + userID, Role: role},
	}
}

// withSession はセッションIDと認証状態を注入したリクエストを返す。
func withSession(req *http.Request, sessionID string, snapshot auth.Snapshot) *http.Request {
	ctx := middleware.ContextWithSessionID(req.Context(), sessionID)
	return req.WithContext(middleware.ContextWithSnapshot(ctx, snapshot))
}

// --- 駐車場 ---

// mockSpotService はSpotServiceInterfaceのモック実装。
type mockSpotService struct {
	listCardsFn func(ctx context.Context) ([]spot.Card, error)
	getDetailFn func(ctx context.Context, spotID string) (*spot.Detail, error)
}

func (m *mockSpotService) ListCards(ctx context.Context) ([]spot.Card, error) {
	if m.listCardsFn != nil {
		return m.listCardsFn(ctx)
	}
	return nil, nil
}

func (m *mockSpotService) GetDetail(ctx context.Context, spotID string) (*spot.Detail, error) {
	if m.getDetailFn != nil {
		return m.getDetailFn(ctx, spotID)
	}
	return &spot.Detail{ID: spotID}, nil
}

// --- ダッシュボード ---

// mockDashboardService はDashboardServiceInterfaceのモック実装。
type mockDashboardService struct {
	overviewFn       func(ctx context.Context, actor dashboard.Actor) (*dashboard.Overview, error)
	spotsFn          func(ctx context.Context, actor dashboard.Actor) ([]dashboard.SpotRow, error)
	toggleSpotFn     func(ctx context.Context, actor dashboard.Actor, spotID string) (bool, error)
	bookingsFn       func(ctx context.Context, actor dashboard.Actor) ([]dashboard.BookingRow, error)
	reviewsFn        func(ctx context.Context, actor dashboard.Actor) (*dashboard.ReviewsView, error)
	reportFn         func(ctx context.Context, actor dashboard.Actor) (*report.Report, error)
	reportPDFFn      func(ctx context.Context, actor dashboard.Actor, w io.Writer) error
	paymentMethodsFn func(ctx context.Context, actor dashboard.Actor) ([]model.PaymentMethod, error)
	saveFn           func(ctx context.Context, actor dashboard.Actor, method model.PaymentMethod) (*model.PaymentMethod, error)
	uploadQRFn       func(ctx context.Context, actor dashboard.Actor, data []byte) (string, error)
	importQRFn       func(ctx context.Context, actor dashboard.Actor, rawURL string) (string, error)
	validateEntryFn  func(ctx context.Context, actor dashboard.Actor, code string) (*dashboard.EntryResult, error)
}

func (m *mockDashboardService) Overview(ctx context.Context, actor dashboard.Actor) (*dashboard.Overview, error) {
	if m.overviewFn != nil {
		return m.overviewFn(ctx, actor)
	}
	return &dashboard.Overview{}, nil
}

func (m *mockDashboardService) Spots(ctx context.Context, actor dashboard.Actor) ([]dashboard.SpotRow, error) {
	if m.spotsFn != nil {
		return m.spotsFn(ctx, actor)
	}
	return nil, nil
}

func (m *mockDashboardService) ToggleSpot(ctx context.Context, actor dashboard.Actor, spotID string) (bool, error) {
	if m.toggleSpotFn != nil {
		return m.toggleSpotFn(ctx, actor, spotID)
	}
	return false, nil
}

func (m *mockDashboardService) Bookings(ctx context.Context, actor dashboard.Actor) ([]dashboard.BookingRow, error) {
	if m.bookingsFn != nil {
		return m.bookingsFn(ctx, actor)
	}
	return nil, nil
}

func (m *mockDashboardService) Reviews(ctx context.Context, actor dashboard.Actor) (*dashboard.ReviewsView, error) {
	if m.reviewsFn != nil {
		return m.reviewsFn(ctx, actor)
	}
	return &dashboard.ReviewsView{}, nil
}

func (m *mockDashboardService) Report(ctx context.Context, actor dashboard.Actor) (*report.Report, error) {
	if m.reportFn != nil {
		return m.reportFn(ctx, actor)
	}
	return &report.Report{}, nil
}

func (m *mockDashboardService) ReportPDF(ctx context.Context, actor dashboard.Actor, w io.Writer) error {
	if m.reportPDFFn != nil {
		return m.reportPDFFn(ctx, actor, w)
	}
	return nil
}

func (m *mockDashboardService) PaymentMethods(ctx context.Context, actor dashboard.Actor) ([]model.PaymentMethod, error) {
	if m.paymentMethodsFn != nil {
		return m.paymentMethodsFn(ctx, actor)
	}
	return []model.PaymentMethod{}, nil
}

func (m *mockDashboardService) SavePaymentMethod(ctx context.Context, actor dashboard.Actor, method model.PaymentMethod) (*model.PaymentMethod, error) {
	if m.saveFn != nil {
		return m.saveFn(ctx, actor, method)
	}
	return &method, nil
}

func (m *mockDashboardService) UploadQR(ctx context.Context, actor dashboard.Actor, data []byte) (string, error) {
	if m.uploadQRFn != nil {
		return m.uploadQRFn(ctx, actor, data)
	}
	return "", nil
}

func (m *mockDashboardService) ImportQR(ctx context.Context, actor dashboard.Actor, rawURL string) (string, error) {
	if m.importQRFn != nil {
		return m.importQRFn(ctx, actor, rawURL)
	}
	return "", nil
}

func (m *mockDashboardService) ValidateEntry(ctx context.Context, actor dashboard.Actor, code string) (*dashboard.EntryResult, error) {
	if m.validateEntryFn != nil {
		return m.validateEntryFn(ctx, actor, code)
	}
	return &dashboard.EntryResult{}, nil
}

// コンパイル時にモックがインターフェースを満たすことを検証する
var (
	_ AuthSession               = (*mockAuthSession)(nil)
	_ AuthSessionProvider       = (*mockAuthProvider)(nil)
	_ BrowserSessionDestroyer   = (*mockSessionDestroyer)(nil)
	_ SpotServiceInterface      = (*mockSpotService)(nil)
	_ DashboardServiceInterface = (*mockDashboardService)(nil)
	_ SpotServiceInterface      = (*spot.Service)(nil)
	_ DashboardServiceInterface = (*dashboard.Service)(nil)
)

// wrapErr はサービス層でのエラーラップを再現する。
func wrapErr(err error) error {
	return fmt.Errorf("failed to do something: %w", err)
}
