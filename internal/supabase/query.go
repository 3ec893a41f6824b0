package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Query はPostgRESTのテーブルに対するクエリビルダー。
// From で生成し、フィルタを連結してから Get / MaybeSingle / Insert / Update のいずれかで実行する。
type Query struct {
	client *Client
	table  string
	token  string
	params url.Values
}

// From は指定テーブルに対するクエリを生成する。
func (c *Client) From(table string) *Query {
	return &Query{
		client: c,
		table:  table,
		params: url.Values{},
	}
}

// WithToken はこのクエリで使用するアクセストークンを明示的に指定する。
func (q *Query) WithToken(token string) *Query {
	q.token = token
	return q
}

// Select は取得するカラムを指定する（例: "*,profiles:user_id(name)"）。
func (q *Query) Select(columns string) *Query {
	q.params.Set("select", columns)
	return q
}

// Eq はカラムが値と等しい行に絞り込む。埋め込みリソースのカラム（parking_spots.owner_id）も指定できる。
func (q *Query) Eq(column, value string) *Query {
	q.params.Add(column, "eq."+value)
	return q
}

// In はカラムが値のいずれかと等しい行に絞り込む。
func (q *Query) In(column string, values []string) *Query {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	q.params.Add(column, "in.("+strings.Join(quoted, ",")+")")
	return q
}

// Order は並び順を指定する。
func (q *Query) Order(column string, ascending bool) *Query {
	dir := "desc"
	if ascending {
		dir = "asc"
	}
	q.params.Add("order", column+"."+dir)
	return q
}

// Limit は取得件数の上限を指定する。
func (q *Query) Limit(n int) *Query {
	q.params.Set("limit", strconv.Itoa(n))
	return q
}

// Get はクエリを実行し、結果の配列をdestにデコードする。
func (q *Query) Get(ctx context.Context, dest any) error {
	body, err := q.client.do(ctx, request{
		operation: "rest." + q.table,
		method:    http.MethodGet,
		path:      "/rest/v1/" + q.table,
		query:     q.params,
		token:     q.token,
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("failed to parse %s rows: %w", q.table, err)
	}
	return nil
}

// MaybeSingle はクエリを実行し、0件または1件の結果をdestにデコードする。
// 0件の場合はfalseを返し、destは変更しない。2件以上の場合はエラーを返す。
func (q *Query) MaybeSingle(ctx context.Context, dest any) (bool, error) {
	var rows []json.RawMessage
	if err := q.Get(ctx, &rows); err != nil {
		return false, err
	}
	switch len(rows) {
	case 0:
		return false, nil
	case 1:
		if err := json.Unmarshal(rows[0], dest); err != nil {
			return false, fmt.Errorf("failed to parse %s row: %w", q.table, err)
		}
		return true, nil
	default:
		return false, fmt.Errorf("expected at most one %s row, got %d", q.table, len(rows))
	}
}

// Insert は行を挿入する。destがnilでなければ挿入された行をdestにデコードする。
func (q *Query) Insert(ctx context.Context, row any, dest any) error {
	return q.write(ctx, http.MethodPost, "return=representation", row, dest)
}

// Update はフィルタに一致する行を部分更新する。destがnilでなければ更新後の1行をdestにデコードする。
func (q *Query) Update(ctx context.Context, patch any, dest any) error {
	return q.write(ctx, http.MethodPatch, "return=representation", patch, dest)
}

// write は書き込み系リクエストを実行し、結果の1行をdestにデコードする。
func (q *Query) write(ctx context.Context, method, prefer string, payload any, dest any) error {
	if dest == nil {
		prefer = strings.Replace(prefer, "return=representation", "return=minimal", 1)
	}
	body, err := q.client.do(ctx, request{
		operation: "rest." + q.table,
		method:    method,
		path:      "/rest/v1/" + q.table,
		query:     q.params,
		token:     q.token,
		body:      payload,
		headers:   map[string]string{"Prefer": prefer},
	})
	if err != nil {
		return err
	}
	if dest == nil {
		return nil
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return fmt.Errorf("failed to parse %s rows: %w", q.table, err)
	}
	if len(rows) != 1 {
		return fmt.Errorf("expected one %s row, got %d", q.table, len(rows))
	}
	if err := json.Unmarshal(rows[0], dest); err != nil {
		return fmt.Errorf("failed to parse %s row: %w", q.table, err)
	}
	return nil
}
