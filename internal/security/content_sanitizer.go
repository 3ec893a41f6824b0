// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService は口コミや駐車場情報などユーザーが入力したテキストを
// 画面に返す前に無害化する。bluemondayのStrictPolicyで全てのタグを除去し、
// 画像URLはhttpsのみを通過させる。
package security

import (
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はユーザー入力の無害化機能のインターフェースを定義する。
type ContentSanitizerService interface {
	// SanitizeText は全てのHTMLタグを除去したプレーンテキストを返す。
	// script, styleタグは内容ごと除去する。前後の空白は取り除く。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(raw string) string

	// SafeImageURL はhttpsスキームの絶対URLであればそのまま返し、それ以外は空文字を返す。
	SafeImageURL(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText は全てのHTMLタグを除去したプレーンテキストを返す。
// StrictPolicyはエンティティをエスケープするため、JSONで返すプレーンテキストとして戻す。
func (s *contentSanitizer) SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}

// SafeImageURL はhttpsスキームの絶対URLのみを許可する。
func (s *contentSanitizer) SafeImageURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	if !strings.EqualFold(u.Scheme, "https") || u.Host == "" {
		return ""
	}
	return u.String()
}
