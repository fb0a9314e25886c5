package identity

import (
	"context"
	"sync"
	"time"
)

// domainStamp records the last request to one host with a TTL.
type domainStamp struct {
	last      time.Time
	expiresAt time.Time
}

// DomainClock spaces out requests per host. Hosts that have not been touched
// for the TTL are forgotten by a background cleanup loop.
type DomainClock struct {
	store    sync.Map // host (string) -> *domainStamp
	interval time.Duration
	ttl      time.Duration
	done     chan struct{}
	stopOnce sync.Once
}

// NewDomainClock creates a DomainClock enforcing the given minimum interval
// between requests to one host, and starts the pruning goroutine.
func NewDomainClock(interval time.Duration) *DomainClock {
	dc := &DomainClock{
		interval: interval,
		ttl:      time.Hour,
		done:     make(chan struct{}),
	}
	go dc.cleanupLoop()
	return dc
}

// Wait blocks until the host's minimum interval has elapsed, then stamps the
// host. The first request to a host never waits.
func (dc *DomainClock) Wait(ctx context.Context, host string) error {
	if dc.interval <= 0 || host == "" {
		return nil
	}

	var pause time.Duration
	if val, ok := dc.store.Load(host); ok {
		stamp := val.(*domainStamp)
		if elapsed := time.Since(stamp.last); elapsed < dc.interval {
			pause = dc.interval - elapsed
		}
	}
	if pause > 0 {
		if err := sleep(ctx, pause); err != nil {
			return err
		}
	}

	now := time.Now()
	dc.store.Store(host, &domainStamp{last: now, expiresAt: now.Add(dc.ttl)})
	return nil
}

// Forget drops the memory for a host.
func (dc *DomainClock) Forget(host string) {
	dc.store.Delete(host)
}

// Stop terminates the background cleanup goroutine. Idempotent.
func (dc *DomainClock) Stop() {
	dc.stopOnce.Do(func() { close(dc.done) })
}

// cleanupLoop prunes hosts whose stamps have expired.
func (dc *DomainClock) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-dc.done:
			return
		case <-ticker.C:
			now := time.Now()
			dc.store.Range(func(key, value any) bool {
				stamp := value.(*domainStamp)
				if now.After(stamp.expiresAt) {
					dc.store.Delete(key)
				}
				return true
			})
		}
	}
}
