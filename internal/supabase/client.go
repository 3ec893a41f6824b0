// Package supabase はSupabase（GoTrue認証、PostgREST、Storage）のHTTPクライアントを提供する。
// ブラウザの代わりにサーバー側から外部サービスを呼び出すために使用する。
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout = 10 * time.Second

	// maxResponseSize はレスポンスボディの読み込み上限（10MB）。
	maxResponseSize = 10 * 1024 * 1024
)

// Config はSupabaseクライアントの設定。
type Config struct {
	URL     string        // プロジェクトURL（例: https://xxxx.supabase.co）
	AnonKey string        // anonキー
	Timeout time.Duration // HTTPリクエストのタイムアウト

	// テスト用にオーバーライド可能なHTTPクライアント
	HTTPClient *http.Client
}

// Observer は外部サービス呼び出しの結果を受け取るインターフェース。
// metrics.Collectorが実装する。
type Observer interface {
	ObserveUpstreamRequest(operation string, status int, duration time.Duration)
}

// Client はSupabaseのREST APIクライアント。
// 複数のブラウザセッションから共有される。ユーザーごとの状態は持たない。
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	observer   Observer
}

// NewClient はClientを生成する。
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		anonKey:    cfg.AnonKey,
		httpClient: httpClient,
	}
}

// SetObserver は呼び出し結果の通知先を設定する。
func (c *Client) SetObserver(o Observer) {
	c.observer = o
}

// Error はSupabaseが返したエラーレスポンスを表す。
// GoTrue、PostgREST、Storageのエラー形式を同一の構造に正規化する。
type Error struct {
	Status  int    // HTTPステータスコード
	Code    string // エラーコード（例: PGRST301, email_not_confirmed）
	Message string // エラーメッセージ
	Details string
	Hint    string
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase: status %d code %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase: status %d: %s", e.Status, e.Message)
}

// IsAuthInvalid はアクセストークンが失効または不正であることを示すエラーかどうかを判定する。
// コードがPGRST301、またはメッセージに"jwt"を含む（大文字小文字を区別しない）場合にtrueを返す。
func IsAuthInvalid(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == "PGRST301" {
			return true
		}
		return strings.Contains(strings.ToLower(apiErr.Message), "jwt")
	}
	return strings.Contains(strings.ToLower(err.Error()), "jwt")
}

// IsEmailNotConfirmed はメールアドレス未確認によるサインイン失敗かどうかを判定する。
func IsEmailNotConfirmed(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == "email_not_confirmed" ||
		strings.Contains(apiErr.Message, "Email not confirmed")
}

// IsClientError はリクエスト内容に起因するエラー（4xx）かどうかを判定する。
func IsClientError(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status >= 400 && apiErr.Status < 500
}

// errorBody はエラーレスポンスの共通デコード先。
// GoTrueのcodeは数値、PostgRESTのcodeは文字列のためRawMessageで受ける。
type errorBody struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Message          string          `json:"message"`
	Msg              string          `json:"msg"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
	Details          json.RawMessage `json:"details"`
	Hint             json.RawMessage `json:"hint"`
}

// parseError はエラーレスポンスボディをErrorに変換する。
func parseError(status int, body []byte) *Error {
	apiErr := &Error{Status: status}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(status)
		}
		return apiErr
	}

	apiErr.Code = eb.ErrorCode
	if apiErr.Code == "" {
		apiErr.Code = rawString(eb.Code)
	}
	for _, m := range []string{eb.Message, eb.Msg, eb.ErrorDescription, eb.Error} {
		if m != "" {
			apiErr.Message = m
			break
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	apiErr.Details = rawString(eb.Details)
	apiErr.Hint = rawString(eb.Hint)
	return apiErr
}

// rawString はJSON文字列であれば中身を返す。数値やnullの場合は空文字を返す。
func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// request はSupabaseへの1回分のリクエスト内容。
type request struct {
	operation string // メトリクス用の操作名
	method    string
	path      string
	query     url.Values
	token     string // 明示的に指定されたアクセストークン
	body      any    // JSONとして送信する
	headers   map[string]string
}

// do はリクエストを送信し、レスポンスボディを返す。
// 4xx/5xxの場合は*Errorを返す。
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	// 1. リクエストボディの構築
	var body io.Reader
	if r.body != nil {
		buf, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	endpoint := c.baseURL + r.path
	if len(r.query) > 0 {
		endpoint += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// 2. ヘッダーの設定（apikeyは常にanonキー、Bearerは明示指定 > コンテキスト > anonキー）
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+c.bearer(ctx, r.token))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	// 3. 送信
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(r.operation, 0, time.Since(start))
		return nil, fmt.Errorf("%s request failed: %w", r.operation, err)
	}
	defer resp.Body.Close()
	c.observe(r.operation, resp.StatusCode, time.Since(start))

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", r.operation, err)
	}

	// 4. エラーレスポンスの正規化
	if resp.StatusCode >= 400 {
		return nil, parseError(resp.StatusCode, respBody)
	}

	return respBody, nil
}

// bearer はAuthorizationヘッダーに使用するトークンを決定する。
func (c *Client) bearer(ctx context.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if token := AccessTokenFromContext(ctx); token != "" {
		return token
	}
	return c.anonKey
}

func (c *Client) observe(operation string, status int, d time.Duration) {
	if c.observer != nil {
		c.observer.ObserveUpstreamRequest(operation, status, d)
	}
}

type accessTokenKey struct{}

// ContextWithAccessToken はユーザーのアクセストークンをコンテキストに格納する。
// 行レベルセキュリティをユーザー権限で評価させるために使用する。
func ContextWithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// AccessTokenFromContext はコンテキストからアクセストークンを取得する。
func AccessTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(accessTokenKey{}).(string)
	return token
}
