package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// ICMPProber sends echo requests directly through pro-bing
type ICMPProber struct {
	mu         sync.Mutex
	privileged bool
}

// NewICMPProber creates a new ICMP prober
func NewICMPProber() *ICMPProber {
	return &ICMPProber{
		privileged: true, // Try privileged mode first
	}
}

// Probe sends a single echo request and returns its round trip time
func (p *ICMPProber) Probe(ctx context.Context, address string, timeout time.Duration) (float64, error) {
	pinger, err := probing.NewPinger(address)
	if err != nil {
		return 0, fmt.Errorf("failed to create pinger: %w", err)
	}

	pinger.Count = 1
	pinger.Timeout = timeout

	p.mu.Lock()
	privileged := p.privileged
	p.mu.Unlock()
	pinger.SetPrivileged(privileged)

	err = pinger.RunWithContext(ctx)
	if privileged && needsUnprivileged(ctx, err) {
		// Raw sockets unavailable, fall back to unprivileged datagram mode
		p.mu.Lock()
		p.privileged = false
		p.mu.Unlock()
		pinger.SetPrivileged(false)
		err = pinger.RunWithContext(ctx)
	}
	if err != nil {
		return 0, fmt.Errorf("ping failed: %w", err)
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, fmt.Errorf("request timed out after %s", timeout)
	}

	return durationToMs(stats.MinRtt), nil
}

// needsUnprivileged reports whether err means raw ICMP sockets are not
// available to this process. Cancellation and network errors do not count.
func needsUnprivileged(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "listen"
}
