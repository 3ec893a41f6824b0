// Package database はブラウザセッションを保存するPostgreSQLへの接続とマイグレーションを提供する。
// マーケットプレイスのデータ（駐車場、予約、プロフィール）はSupabase側にあり、ここではsessionsテーブルのみを扱う。
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// セッションストアの接続プール設定。
// 1リクエストあたりのクエリはセッションの取得と更新程度のため、接続数は小さく抑える。
const (
	maxOpenConns    = 10
	maxIdleConns    = 5
	connMaxIdleTime = 5 * time.Minute
)

// Open はセッションストアのPostgreSQL接続プールを開く。
// databaseURLはPostgreSQLの接続URLを指定する（例: "postgres://parkspot:parkspot@db:5432/parkspot?sslmode=disable"）。
// sql.Openは接続を試行しないため、実際の接続確認にはdb.Ping()を使用すること。
func Open(databaseURL string) (*sql.DB, error) {
	if databaseURL == "" {
		return nil, errors.New("failed to open session store: database URL is empty")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	return db, nil
}
