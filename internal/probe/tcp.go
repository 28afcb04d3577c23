package probe

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// TCPProber measures TCP connection setup time
type TCPProber struct {
	Port int
}

// NewTCPProber creates a new TCP prober for the given port
func NewTCPProber(port int) *TCPProber {
	return &TCPProber{Port: port}
}

// Probe opens and immediately closes a connection to address:Port
func (p *TCPProber) Probe(ctx context.Context, address string, timeout time.Duration) (float64, error) {
	dialer := &net.Dialer{Timeout: timeout}

	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(address, strconv.Itoa(p.Port)))
	latency := time.Since(start)
	if err != nil {
		return 0, fmt.Errorf("connect failed: %w", err)
	}
	conn.Close()

	return durationToMs(latency), nil
}
