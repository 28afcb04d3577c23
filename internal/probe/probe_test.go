package probe

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wellsgz/pingmon/internal/config"
)

func TestParseLatency(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    float64
		wantErr bool
	}{
		{
			name:   "macos",
			output: "64 bytes from 1.1.1.1: icmp_seq=0 ttl=57 time=12.345 ms",
			want:   12.345,
		},
		{
			name:   "windows",
			output: "Reply from 1.1.1.1: bytes=32 time=15ms TTL=57",
			want:   15.0,
		},
		{
			name:   "windows sub-millisecond",
			output: "Reply from 192.168.1.1: bytes=32 time<1ms TTL=64",
			want:   1.0,
		},
		{
			name: "linux with summary",
			output: "PING 1.1.1.1 (1.1.1.1) 56(84) bytes of data.\n" +
				"64 bytes from 1.1.1.1: icmp_seq=1 ttl=57 time=8.92 ms\n\n" +
				"--- 1.1.1.1 ping statistics ---\n" +
				"1 packets transmitted, 1 received, 0% packet loss, time 0ms\n",
			want: 8.92,
		},
		{
			name:   "space separated",
			output: "reply time 4.2 ms",
			want:   4.2,
		},
		{
			name:    "no latency",
			output:  "Request timed out.",
			wantErr: true,
		},
		{
			name:    "empty",
			output:  "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLatency(tt.output)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLatency() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseLatency() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPingArgs(t *testing.T) {
	tests := []struct {
		goos    string
		timeout time.Duration
		want    []string
	}{
		{"linux", 5 * time.Second, []string{"-c", "1", "-W", "5", "1.1.1.1"}},
		{"linux", 300 * time.Millisecond, []string{"-c", "1", "-W", "1", "1.1.1.1"}},
		{"darwin", 2 * time.Second, []string{"-c", "1", "-t", "2", "1.1.1.1"}},
		{"windows", 1500 * time.Millisecond, []string{"-n", "1", "-w", "1500", "1.1.1.1"}},
		{"plan9", time.Second, []string{"-c", "1", "1.1.1.1"}},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			assert.Equal(t, tt.want, pingArgs(tt.goos, "1.1.1.1", tt.timeout))
		})
	}
}

func TestRun(t *testing.T) {
	target := config.Target{ID: "x", Address: "1.1.1.1", Label: "A", Enabled: true}

	t.Run("success", func(t *testing.T) {
		p := ProberFunc(func(ctx context.Context, address string, timeout time.Duration) (float64, error) {
			assert.Equal(t, "1.1.1.1", address)
			assert.Equal(t, time.Second, timeout)
			return 12.5, nil
		})

		o := Run(context.Background(), p, target, time.Second, 7)
		assert.True(t, o.Success)
		require.NotNil(t, o.LatencyMs)
		assert.Equal(t, 12.5, *o.LatencyMs)
		assert.Nil(t, o.Error)
		assert.Equal(t, uint32(7), o.Sequence)
		assert.Equal(t, "A", o.TargetLabel)
		assert.Equal(t, 12.5, o.Latency())
	})

	t.Run("failure", func(t *testing.T) {
		p := ProberFunc(func(context.Context, string, time.Duration) (float64, error) {
			return 0, errors.New("unreachable")
		})

		o := Run(context.Background(), p, target, time.Second, 1)
		assert.False(t, o.Success)
		assert.Nil(t, o.LatencyMs)
		assert.Equal(t, "unreachable", o.Reason())
		assert.Equal(t, -1.0, o.Latency())
	})

	t.Run("negative latency clamped", func(t *testing.T) {
		p := ProberFunc(func(context.Context, string, time.Duration) (float64, error) {
			return -3, nil
		})

		o := Run(context.Background(), p, target, time.Second, 1)
		assert.Equal(t, 0.0, o.Latency())
	})
}

func TestTCPProber(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port

	latency, err := NewTCPProber(port).Probe(context.Background(), "127.0.0.1", time.Second)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, latency, 0.0)
}

func TestNew(t *testing.T) {
	for _, kind := range []string{"", "exec", "icmp", "tcp"} {
		p, err := New(kind, 443)
		require.NoError(t, err, kind)
		assert.NotNil(t, p)
	}

	_, err := New("carrier-pigeon", 0)
	assert.Error(t, err)
}

func TestNeedsUnprivileged(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	listenErr := &net.OpError{Op: "listen", Net: "ip4:icmp", Err: os.NewSyscallError("socket", syscall.EPERM)}

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want bool
	}{
		{"no error", context.Background(), nil, false},
		{"permission denied", context.Background(), os.ErrPermission, true},
		{"socket not permitted", context.Background(), listenErr, true},
		{"listen failure", context.Background(), &net.OpError{Op: "listen", Err: errors.New("protocol not supported")}, true},
		{"write failure", context.Background(), &net.OpError{Op: "write", Err: errors.New("network is unreachable")}, false},
		{"resolve failure", context.Background(), errors.New("no such host"), false},
		{"cancelled", cancelled, context.Canceled, false},
		{"cancelled with socket error", cancelled, listenErr, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, needsUnprivileged(tt.ctx, tt.err))
		})
	}
}

func TestICMPProberKeepsModeOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewICMPProber()
	_, err := p.Probe(ctx, "127.0.0.1", time.Second)
	assert.Error(t, err)
	assert.True(t, p.privileged, "a cancelled probe does not drop privileged mode")
}
