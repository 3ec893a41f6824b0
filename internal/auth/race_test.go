package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRaceTimeout_OpWins(t *testing.T) {
	got, err := raceTimeout(context.Background(), time.Second, func(context.Context) (string, error) {
		return "done", nil
	})
	if err != nil || got != "done" {
		t.Errorf("raceTimeout() = %q, %v", got, err)
	}
}

func TestRaceTimeout_OpErrorIsReturned(t *testing.T) {
	want := errors.New("boom")
	_, err := raceTimeout(context.Background(), time.Second, func(context.Context) (int, error) {
		return 0, want
	})
	if !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}

func TestRaceTimeout_TimerWins(t *testing.T) {
	release := neverResolves(t)
	got, err := raceTimeout(context.Background(), 10*time.Millisecond, func(context.Context) (*int, error) {
		<-release
		v := 1
		return &v, nil
	})
	if !errors.Is(err, errTimedOut) {
		t.Errorf("err = %v, want errTimedOut", err)
	}
	if got != nil {
		t.Errorf("got = %v, want zero value", got)
	}
}

func TestRaceTimeout_OpSeesCancelledContextAfterTimeout(t *testing.T) {
	cancelled := make(chan struct{})
	_, err := raceTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		close(cancelled)
		return 0, ctx.Err()
	})
	if !errors.Is(err, errTimedOut) && !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v", err)
	}
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Error("op context was not cancelled")
	}
}

func TestRaceTimeout_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	release := neverResolves(t)
	_, err := raceTimeout(ctx, time.Second, func(context.Context) (int, error) {
		<-release
		return 0, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
