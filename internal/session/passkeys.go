package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/iamruinous/meshtastic-mesh-gateway/internal/store"
)

// PasskeyFetcher requests a fresh session passkey from a remote node over
// the radio link (an admin GetSessionKey exchange). Supplied by Session
// so PasskeyCache stays free of send/ACK concerns.
type PasskeyFetcher func(ctx context.Context, remoteNodeNum uint32) (store.SessionPasskey, error)

// PasskeyCache implements §4.2.3: passkeys are cached per remote node and
// reused until they expire, and concurrent callers asking for the same
// node's passkey while a fetch is already in flight share its result
// rather than issuing duplicate GetSessionKey admin requests.
type PasskeyCache struct {
	mu     sync.Mutex
	cached map[uint32]store.SessionPasskey

	group  singleflight.Group
	fetch  PasskeyFetcher
	st     store.Store
}

// NewPasskeyCache constructs a cache backed by persistent storage (so a
// passkey survives a process restart within its expiry) and fetch as the
// miss path.
func NewPasskeyCache(st store.Store, fetch PasskeyFetcher) *PasskeyCache {
	return &PasskeyCache{
		cached: make(map[uint32]store.SessionPasskey),
		fetch:  fetch,
		st:     st,
	}
}

// Get returns a valid passkey for remoteNodeNum, fetching (and coalescing
// concurrent fetches) on a cache miss or expiry.
func (c *PasskeyCache) Get(ctx context.Context, remoteNodeNum uint32, now time.Time) (store.SessionPasskey, error) {
	if p, ok := c.lookup(remoteNodeNum, now); ok {
		return p, nil
	}

	key := fmt.Sprintf("%d", remoteNodeNum)
	v, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check under the singleflight key: another caller may have
		// populated the cache between our lookup above and Do acquiring
		// the group's internal lock.
		if p, ok := c.lookup(remoteNodeNum, now); ok {
			return p, nil
		}

		p, err := c.fetch(ctx, remoteNodeNum)
		if err != nil {
			return store.SessionPasskey{}, err
		}

		c.mu.Lock()
		c.cached[remoteNodeNum] = p
		c.mu.Unlock()

		if c.st != nil {
			_ = c.st.SetSessionPasskey(ctx, p)
		}
		return p, nil
	})
	if err != nil {
		return store.SessionPasskey{}, err
	}
	return v.(store.SessionPasskey), nil
}

// Invalidate drops a cached passkey, forcing the next Get to re-fetch.
// Nothing in the session calls it: an admin request that comes back
// rejected leaves the cached passkey in place and is not retried.
func (c *PasskeyCache) Invalidate(remoteNodeNum uint32) {
	c.mu.Lock()
	delete(c.cached, remoteNodeNum)
	c.mu.Unlock()
}

func (c *PasskeyCache) lookup(remoteNodeNum uint32, now time.Time) (store.SessionPasskey, bool) {
	c.mu.Lock()
	p, ok := c.cached[remoteNodeNum]
	c.mu.Unlock()
	if ok && !p.Expired(now) {
		return p, true
	}

	if c.st != nil {
		if stored, err := c.st.GetSessionPasskey(context.Background(), remoteNodeNum); err == nil && stored != nil && !stored.Expired(now) {
			c.mu.Lock()
			c.cached[remoteNodeNum] = *stored
			c.mu.Unlock()
			return *stored, true
		}
	}
	return store.SessionPasskey{}, false
}
