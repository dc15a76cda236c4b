package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRequestTableResolveByID(t *testing.T) {
	tbl := NewRequestTable()
	resultCh := make(chan any, 1)
	errCh := make(chan error, 1)

	go func() {
		v, err := tbl.Await(context.Background(), 1, KindAdminConfig, 0x100)
		resultCh <- v
		errCh <- err
	}()

	deadline := time.Now().Add(time.Second)
	for {
		if tbl.Resolve(1, "answer") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Resolve never found the registered awaiter")
		}
		time.Sleep(time.Millisecond)
	}

	if v := <-resultCh; v != "answer" {
		t.Errorf("Await result = %v, want %q", v, "answer")
	}
	if err := <-errCh; err != nil {
		t.Errorf("Await error = %v, want nil", err)
	}
}

func TestRequestTableResolveUnknownIDReturnsFalse(t *testing.T) {
	tbl := NewRequestTable()
	if tbl.Resolve(999, "x") {
		t.Error("Resolve on an unregistered requestId should return false")
	}
}

func TestRequestTableTimeout(t *testing.T) {
	tbl := NewRequestTable()
	// KindAck carries a real 60s timeout; exercise the short path via a
	// context deadline instead of waiting out the per-kind timer.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := tbl.Await(ctx, 5, KindAck, 0x200)
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("Await() error = %v, want ErrCancelled", err)
	}
}

func TestRequestTableResolveByKindAndNodePicksNewest(t *testing.T) {
	tbl := NewRequestTable()

	oldDone := make(chan struct{})
	newDone := make(chan struct{})
	var oldResult, newResult any

	go func() {
		v, _ := tbl.Await(context.Background(), 1, KindTraceroute, 0x42)
		oldResult = v
		close(oldDone)
	}()
	time.Sleep(5 * time.Millisecond) // ensure createdAt ordering between the two awaiters
	go func() {
		v, _ := tbl.Await(context.Background(), 2, KindTraceroute, 0x42)
		newResult = v
		close(newDone)
	}()
	time.Sleep(5 * time.Millisecond)

	if !tbl.ResolveByKindAndNode(KindTraceroute, 0x42, "route") {
		t.Fatal("expected a match for (KindTraceroute, 0x42)")
	}

	select {
	case <-newDone:
	case <-time.After(time.Second):
		t.Fatal("newest awaiter was never resolved")
	}
	if newResult != "route" {
		t.Errorf("newest awaiter result = %v, want %q", newResult, "route")
	}

	select {
	case <-oldDone:
		t.Fatal("older awaiter should still be pending")
	default:
	}
	_ = oldResult
}

func TestRequestTableCancelAll(t *testing.T) {
	tbl := NewRequestTable()
	errCh := make(chan error, 1)
	go func() {
		_, err := tbl.Await(context.Background(), 7, KindAdminConfig, 0x1)
		errCh <- err
	}()
	time.Sleep(5 * time.Millisecond)

	tbl.CancelAll()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrCancelled) {
			t.Errorf("error after CancelAll = %v, want ErrCancelled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("awaiter was never cancelled")
	}
}

func TestKindTimeouts(t *testing.T) {
	cases := []struct {
		kind Kind
		want time.Duration
	}{
		{KindAdminConfig, 15 * time.Second},
		{KindSessionPasskey, 45 * time.Second},
		{KindTraceroute, 120 * time.Second},
		{KindAck, 60 * time.Second},
	}
	for _, c := range cases {
		if got := c.kind.Timeout(); got != c.want {
			t.Errorf("Kind(%d).Timeout() = %v, want %v", c.kind, got, c.want)
		}
	}
}
