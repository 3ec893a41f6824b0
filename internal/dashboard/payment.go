package dashboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hitoshi/parkspot/internal/model"
	"github.com/hitoshi/parkspot/internal/security"
)

// PaymentMethods はオーナーの支払い方法一覧を返す。
func (s *Service) PaymentMethods(ctx context.Context, actor Actor) ([]model.PaymentMethod, error) {
	methods, err := s.payments.ListByOwner(authContext(ctx, actor), actor.UserID)
	if err != nil {
		return nil, upstreamError("failed to list payment methods", actor, err)
	}
	if methods == nil {
		methods = []model.PaymentMethod{}
	}
	return methods, nil
}

// SavePaymentMethod は支払い方法を作成または更新する。
// IDが指定された場合は自分の支払い方法のみ更新できる。
// 既定に設定した場合は他の支払い方法の既定を解除する。
func (s *Service) SavePaymentMethod(ctx context.Context, actor Actor, method model.PaymentMethod) (*model.PaymentMethod, error) {
	method.OwnerID = actor.UserID
	method.CreatedAt = nil
	if err := method.Validate(); err != nil {
		return nil, err
	}
	ctx = authContext(ctx, actor)

	// 1. 更新の場合は所有者を確認
	if method.ID != "" {
		if err := validateUUID(method.ID); err != nil {
			return nil, err
		}
		existing, err := s.payments.FindByID(ctx, method.ID)
		if err != nil {
			return nil, upstreamError("failed to find payment method", actor, err)
		}
		if existing == nil || existing.OwnerID != actor.UserID {
			return nil, model.NewPaymentMethodNotFoundError(method.ID)
		}
	}

	// 2. 既定は1件のみ
	if method.IsDefault {
		if err := s.payments.ClearDefault(ctx, actor.UserID); err != nil {
			return nil, upstreamError("failed to clear default payment method", actor, err)
		}
	}

	// 3. 保存
	saved, err := s.payments.Save(ctx, &method)
	if err != nil {
		return nil, upstreamError("failed to save payment method", actor, err)
	}

	slog.Info("payment method saved",
		slog.String("user_id", actor.UserID),
		slog.String("payment_method_id", saved.ID),
		slog.String("type", string(saved.Type)),
	)
	return saved, nil
}

// UploadQR はアップロードされたQRコード画像を保存し、公開URLを返す。
func (s *Service) UploadQR(ctx context.Context, actor Actor, data []byte) (string, error) {
	if len(data) == 0 {
		return "", model.NewInvalidImageError("画像が空です")
	}
	if int64(len(data)) > s.config.MaxImageSize {
		return "", model.NewInvalidImageError("画像サイズが上限を超えています")
	}
	contentType, ext, ok := security.DetectImageType(data)
	if !ok {
		return "", model.NewInvalidImageError(fmt.Sprintf("未対応の形式です: %s", contentType))
	}
	return s.storeQR(ctx, actor, data, contentType, ext)
}

// ImportQR はURLのQRコード画像を取り込んで保存し、公開URLを返す。
// 内部ネットワークへのURLはIMAGE_IMPORT_BLOCKEDとして拒否する。
func (s *Service) ImportQR(ctx context.Context, actor Actor, rawURL string) (string, error) {
	img, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		switch {
		case errors.Is(err, security.ErrBlockedURL):
			slog.Warn("qr import blocked",
				slog.String("user_id", actor.UserID),
				slog.String("error", err.Error()),
			)
			return "", model.NewImageImportBlockedError()
		case errors.Is(err, security.ErrUnsupportedImage):
			return "", model.NewInvalidImageError("PNGまたはJPEG形式の画像ではないか、サイズが上限を超えています")
		default:
			slog.Warn("qr import failed",
				slog.String("user_id", actor.UserID),
				slog.String("error", err.Error()),
			)
			return "", model.NewInvalidImageError("画像を取得できませんでした")
		}
	}
	return s.storeQR(ctx, actor, img.Data, img.ContentType, img.Extension)
}

// storeQR は画像をオーナーごとのパスに保存する。ファイル名は毎回新しいUUIDとする。
func (s *Service) storeQR(ctx context.Context, actor Actor, data []byte, contentType, ext string) (string, error) {
	path := fmt.Sprintf("%s/%s.%s", actor.UserID, uuid.NewString(), ext)
	if err := s.storage.Upload(authContext(ctx, actor), s.config.StorageBucket, path, contentType, bytes.NewReader(data), false); err != nil {
		return "", upstreamError("failed to upload qr image", actor, err)
	}

	slog.Info("qr image stored",
		slog.String("user_id", actor.UserID),
		slog.String("path", path),
		slog.Int("size", len(data)),
	)
	return s.storage.PublicURL(s.config.StorageBucket, path), nil
}

// validateUUID はIDがUUID形式かどうかを検証する。
func validateUUID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return model.NewInvalidIDError(id)
	}
	return nil
}
