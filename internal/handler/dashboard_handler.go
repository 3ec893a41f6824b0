package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/parkspot/internal/dashboard"
	"github.com/hitoshi/parkspot/internal/middleware"
	"github.com/hitoshi/parkspot/internal/model"
	"github.com/hitoshi/parkspot/internal/report"
)

// reportPDFFilename はPDFレポートのダウンロード時のファイル名。
const reportPDFFilename = "parkspot-report.pdf"

// DashboardServiceInterface はオーナー/管理者ダッシュボードのサービスインターフェース。
type DashboardServiceInterface interface {
	Overview(ctx context.Context, actor dashboard.Actor) (*dashboard.Overview, error)
	Spots(ctx context.Context, actor dashboard.Actor) ([]dashboard.SpotRow, error)
	ToggleSpot(ctx context.Context, actor dashboard.Actor, spotID string) (bool, error)
	Bookings(ctx context.Context, actor dashboard.Actor) ([]dashboard.BookingRow, error)
	Reviews(ctx context.Context, actor dashboard.Actor) (*dashboard.ReviewsView, error)
	Report(ctx context.Context, actor dashboard.Actor) (*report.Report, error)
	ReportPDF(ctx context.Context, actor dashboard.Actor, w io.Writer) error
	PaymentMethods(ctx context.Context, actor dashboard.Actor) ([]model.PaymentMethod, error)
	SavePaymentMethod(ctx context.Context, actor dashboard.Actor, method model.PaymentMethod) (*model.PaymentMethod, error)
	UploadQR(ctx context.Context, actor dashboard.Actor, data []byte) (string, error)
	ImportQR(ctx context.Context, actor dashboard.Actor, rawURL string) (string, error)
	ValidateEntry(ctx context.Context, actor dashboard.Actor, code string) (*dashboard.EntryResult, error)
}

// DashboardHandler はオーナー/管理者向けダッシュボードのHTTPハンドラー。
// RequireRole(owner, admin) の内側に配置する。
type DashboardHandler struct {
	service      DashboardServiceInterface
	maxImageSize int64
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(service DashboardServiceInterface, maxImageSize int64) *DashboardHandler {
	return &DashboardHandler{service: service, maxImageSize: maxImageSize}
}

// toggleResponse は公開状態切り替えのレスポンス。
type toggleResponse struct {
	ID       string `json:"id"`
	IsActive bool   `json:"is_active"`
}

// qrImportRequest はURLからのQRコード取り込みリクエストのボディ。
type qrImportRequest struct {
	URL string `json:"url"`
}

// qrResponse はQRコード画像の保存先URLのレスポンス。
type qrResponse struct {
	URL string `json:"url"`
}

// entryRequest は入場検証リクエストのボディ。
type entryRequest struct {
	Code string `json:"code"`
}

// Overview はホーム画面の集計を返す。
// GET /api/admin/dashboard
func (h *DashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.Overview(r.Context(), actorFromRequest(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// Spots は管理対象の駐車場一覧を返す。
// GET /api/admin/spots
func (h *DashboardHandler) Spots(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Spots(r.Context(), actorFromRequest(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if rows == nil {
		rows = []dashboard.SpotRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// ToggleSpot は駐車場の公開状態を切り替える。
// POST /api/admin/spots/{id}/toggle
func (h *DashboardHandler) ToggleSpot(w http.ResponseWriter, r *http.Request) {
	spotID := chi.URLParam(r, "id")
	active, err := h.service.ToggleSpot(r.Context(), actorFromRequest(r), spotID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{ID: spotID, IsActive: active})
}

// Bookings は管理対象の予約一覧を返す。
// GET /api/admin/bookings
func (h *DashboardHandler) Bookings(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Bookings(r.Context(), actorFromRequest(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if rows == nil {
		rows = []dashboard.BookingRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// Reviews はレビュー一覧と平均評価を返す。
// GET /api/admin/reviews
func (h *DashboardHandler) Reviews(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Reviews(r.Context(), actorFromRequest(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Report は売上レポートを返す。
// GET /api/admin/reports
func (h *DashboardHandler) Report(w http.ResponseWriter, r *http.Request) {
	rep, err := h.service.Report(r.Context(), actorFromRequest(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// ReportPDF は売上レポートをPDFで返す。
// GET /api/admin/reports.pdf
func (h *DashboardHandler) ReportPDF(w http.ResponseWriter, r *http.Request) {
	// 生成に失敗した場合にJSONエラーを返せるよう、一度バッファに書き出す
	var buf bytes.Buffer
	if err := h.service.ReportPDF(r.Context(), actorFromRequest(r), &buf); err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": reportPDFFilename}))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("failed to write report pdf", slog.String("error", err.Error()))
	}
}

// PaymentMethods は支払い方法の一覧を返す。
// GET /api/admin/payment-methods
func (h *DashboardHandler) PaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.service.PaymentMethods(r.Context(), actorFromRequest(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, methods)
}

// SavePaymentMethod は支払い方法を作成または更新する。IDがあれば更新、なければ作成する。
// PUT /api/admin/payment-methods
func (h *DashboardHandler) SavePaymentMethod(w http.ResponseWriter, r *http.Request) {
	var method model.PaymentMethod
	if !decodeJSON(w, r, &method) {
		return
	}

	saved, err := h.service.SavePaymentMethod(r.Context(), actorFromRequest(r), method)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// UploadQR はQRコード画像を保存し、公開URLを返す。
// multipart/form-data の file フィールドでアップロードするか、JSONの url で取り込み元を指定する。
// POST /api/admin/payment-methods/qr
func (h *DashboardHandler) UploadQR(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req qrImportRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.URL == "" {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
			return
		}
		url, err := h.service.ImportQR(r.Context(), actor, req.URL)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, qrResponse{URL: url})
		return
	}

	// 1. サイズ上限付きでファイルを読み込む（multipartのヘッダー分の余裕を持たせる）
	r.Body = http.MaxBytesReader(w, r.Body, h.maxImageSize+(1<<20))
	file, _, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidImageError("画像サイズが上限を超えています"))
			return
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidImageError("ファイルを指定してください"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxImageSize+1))
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidImageError("ファイルの読み込みに失敗しました"))
		return
	}

	// 2. 保存（形式・サイズの検証はサービス層で行う）
	url, err := h.service.UploadQR(r.Context(), actor, data)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, qrResponse{URL: url})
}

// ValidateEntry は予約コードで入場を検証する。
// POST /api/admin/entry/validate
func (h *DashboardHandler) ValidateEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.ValidateEntry(r.Context(), actorFromRequest(r), req.Code)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// actorFromRequest はコンテキストの認証状態からダッシュボードの利用者を組み立てる。
func actorFromRequest(r *http.Request) dashboard.Actor {
	snapshot, _ := middleware.SnapshotFromContext(r.Context())
	actor := dashboard.Actor{
		UserID: snapshot.UserID(),
		Role:   snapshot.Role(),
	}
	if snapshot.Session != nil {
		actor.AccessToken = snapshot.Session.AccessToken
	}
	if p := snapshot.Profile; p != nil {
		actor.Name = p.Name
		if p.BusinessName != nil && *p.BusinessName != "" {
			actor.Name = *p.BusinessName
		}
	}
	return actor
}
