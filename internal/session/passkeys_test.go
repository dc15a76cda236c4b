package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iamruinous/meshtastic-mesh-gateway/internal/store"
)

func TestPasskeyCacheFetchesOnMiss(t *testing.T) {
	var calls int32
	fetch := func(ctx context.Context, node uint32) (store.SessionPasskey, error) {
		atomic.AddInt32(&calls, 1)
		return store.SessionPasskey{RemoteNodeNum: node, Bytes: []byte{1, 2, 3}, ExpiresAt: time.Now().Add(time.Hour).Unix()}, nil
	}
	c := NewPasskeyCache(nil, fetch)

	p, err := c.Get(context.Background(), 0x42, time.Now())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(p.Bytes) != "\x01\x02\x03" {
		t.Errorf("passkey bytes = %v, want [1 2 3]", p.Bytes)
	}
	if calls != 1 {
		t.Errorf("fetch called %d times, want 1", calls)
	}

	if _, err := c.Get(context.Background(), 0x42, time.Now()); err != nil {
		t.Fatalf("Get (cached): %v", err)
	}
	if calls != 1 {
		t.Errorf("fetch called %d times after cache hit, want still 1", calls)
	}
}

// TestPasskeyCacheCoalescesConcurrentFetches is spec.md's testable
// property #6: concurrent callers for the same node during a cache miss
// share one fetch rather than issuing N duplicate GetSessionKey requests.
func TestPasskeyCacheCoalescesConcurrentFetches(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	fetch := func(ctx context.Context, node uint32) (store.SessionPasskey, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return store.SessionPasskey{RemoteNodeNum: node, Bytes: []byte("key"), ExpiresAt: time.Now().Add(time.Hour).Unix()}, nil
	}
	c := NewPasskeyCache(nil, fetch)

	const n = 10
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := c.Get(context.Background(), 0x99, time.Now()); err != nil {
				t.Errorf("Get: %v", err)
			}
		}()
	}

	time.Sleep(20 * time.Millisecond) // let every goroutine reach the fetch call
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Errorf("fetch called %d times for %d concurrent callers, want 1", calls, n)
	}
}

func TestPasskeyCacheRefetchesAfterExpiry(t *testing.T) {
	var calls int32
	fetch := func(ctx context.Context, node uint32) (store.SessionPasskey, error) {
		n := atomic.AddInt32(&calls, 1)
		return store.SessionPasskey{RemoteNodeNum: node, Bytes: []byte(fmt.Sprintf("key%d", n)), ExpiresAt: time.Now().Add(time.Hour).Unix()}, nil
	}
	c := NewPasskeyCache(nil, fetch)

	now := time.Now()
	first, err := c.Get(context.Background(), 0x7, now)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	later := now.Add(2 * time.Hour) // past the cached ExpiresAt
	second, err := c.Get(context.Background(), 0x7, later)
	if err != nil {
		t.Fatalf("Get (after expiry): %v", err)
	}

	if string(first.Bytes) == string(second.Bytes) {
		t.Error("expected a fresh passkey after expiry, got the same cached bytes")
	}
	if calls != 2 {
		t.Errorf("fetch called %d times, want 2", calls)
	}
}
