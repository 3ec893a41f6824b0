package auth

import (
	"context"
	"errors"
	"time"
)

// errTimedOut は操作がタイムアウトに負けたことを示す。
var errTimedOut = errors.New("operation timed out")

// raceTimeout はopとタイマーを競争させ、先に完了した方の結果を返す。
// タイムアウトした場合、opはキャンセル済みのコンテキストで実行を続け、その結果は破棄される。
func raceTimeout[T any](ctx context.Context, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	// バッファ付きのため、負けたopの送信はブロックしない
	ch := make(chan result, 1)
	go func() {
		v, err := op(opCtx)
		ch <- result{value: v, err: err}
	}()

	select {
	case res := <-ch:
		return res.value, res.err
	case <-opCtx.Done():
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, errTimedOut
	}
}
