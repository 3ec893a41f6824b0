package supabase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	storage_go "github.com/supabase-community/storage-go"
)

const (
	storagePath         = "/storage/v1"
	storageCacheControl = "3600"
)

// storageClient はStorage APIのクライアントを生成する。
// storage-goのクライアントは認証ヘッダーをクライアント単位で保持するため、呼び出しごとに生成する。
func (c *Client) storageClient(token string) *storage_go.Client {
	return storage_go.NewClient(c.baseURL+storagePath, token, map[string]string{
		"apikey": c.anonKey,
	})
}

// uploadResult はstorage-goの呼び出し結果。
type uploadResult struct {
	err error
}

// Upload はStorageのバケットにオブジェクトをアップロードする。
// upsertがtrueの場合、同じパスのオブジェクトを上書きする。
// storage-goはcontextを受け取らないため、ctxの終了時は応答を待たずに戻る。
func (c *Client) Upload(ctx context.Context, bucket, path, contentType string, data io.Reader, upsert bool) error {
	const operation = "storage.upload"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s request failed: %w", operation, err)
	}

	client := c.storageClient(c.bearer(ctx, ""))
	cacheControl := storageCacheControl
	opts := storage_go.FileOptions{
		CacheControl: &cacheControl,
		ContentType:  &contentType,
		Upsert:       &upsert,
	}

	start := time.Now()
	done := make(chan uploadResult, 1)
	go func() {
		_, err := client.UploadFile(bucket, strings.TrimLeft(path, "/"), data, opts)
		done <- uploadResult{err: err}
	}()

	select {
	case <-ctx.Done():
		c.observe(operation, 0, time.Since(start))
		return fmt.Errorf("%s request failed: %w", operation, ctx.Err())
	case res := <-done:
		if res.err == nil {
			c.observe(operation, http.StatusOK, time.Since(start))
			return nil
		}
		var storageErr *storage_go.StorageError
		if errors.As(res.err, &storageErr) {
			apiErr := fromStorageError(storageErr)
			c.observe(operation, apiErr.Status, time.Since(start))
			return apiErr
		}
		c.observe(operation, 0, time.Since(start))
		return fmt.Errorf("%s request failed: %w", operation, res.err)
	}
}

// PublicURL は公開バケットのオブジェクトURLを返す。ネットワークアクセスは行わない。
func (c *Client) PublicURL(bucket, path string) string {
	return c.storageClient(c.anonKey).GetPublicUrl(bucket, strings.TrimLeft(path, "/")).SignedURL
}

// fromStorageError はstorage-goのエラーをErrorに変換する。
// Storageはステータスを本文に含めない場合があり、その場合のStatusは0になる。
func fromStorageError(e *storage_go.StorageError) *Error {
	apiErr := &Error{Status: e.Status, Message: e.Message}
	if apiErr.Message == "" {
		apiErr.Message = "storage request failed"
	}
	return apiErr
}
