package model

import "time"

// ReviewAuthor はレビューに埋め込まれる投稿者情報（profiles:user_id(name)）。
type ReviewAuthor struct {
	Name string `json:"name"`
}

// Review はレビュー（reviewsテーブル）を表す。
type Review struct {
	ID          string        `json:"id"`
	SpotID      string        `json:"spot_id"`
	UserID      string        `json:"user_id"`
	Rating      int           `json:"rating"`
	Comment     string        `json:"comment"`
	Photos      []string      `json:"photos"`
	IsAnonymous bool          `json:"is_anonymous"`
	CreatedAt   time.Time     `json:"created_at"`
	Author      *ReviewAuthor `json:"profiles,omitempty"`
}
