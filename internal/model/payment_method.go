package model

import (
	"strings"
	"time"
)

// PaymentType は支払い方法の種別を表す。
type PaymentType string

const (
	PaymentUPI  PaymentType = "upi"
	PaymentBank PaymentType = "bank"
	PaymentQR   PaymentType = "qr"
	PaymentCash PaymentType = "cash"
)

// Valid は定義済みの種別かどうかを返す。
func (t PaymentType) Valid() bool {
	switch t {
	case PaymentUPI, PaymentBank, PaymentQR, PaymentCash:
		return true
	}
	return false
}

// PaymentMethod はオーナーが受け付ける支払い方法（payment_methodsテーブル）を表す。
type PaymentMethod struct {
	ID         string      `json:"id,omitempty"`
	OwnerID    string      `json:"owner_id"`
	Type       PaymentType `json:"type"`
	Label      string      `json:"label"`
	Details    string      `json:"details"`
	QRImageURL *string     `json:"qr_image_url"`
	IsDefault  bool        `json:"is_default"`
	CreatedAt  *time.Time  `json:"created_at,omitempty"`
}

// Validate は支払い方法の設定内容を検証する。
func (m *PaymentMethod) Validate() error {
	if !m.Type.Valid() {
		return NewInvalidPaymentMethodError("種別はupi, bank, qr, cashのいずれかを指定してください")
	}
	if strings.TrimSpace(m.Label) == "" {
		return NewInvalidPaymentMethodError("表示名を入力してください")
	}
	switch m.Type {
	case PaymentUPI, PaymentBank:
		if strings.TrimSpace(m.Details) == "" {
			return NewInvalidPaymentMethodError("口座情報またはUPI IDを入力してください")
		}
	case PaymentQR:
		if m.QRImageURL == nil || *m.QRImageURL == "" {
			return NewInvalidPaymentMethodError("QRコード画像を登録してください")
		}
	}
	return nil
}
