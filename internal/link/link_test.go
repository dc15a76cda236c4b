package link

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iamruinous/meshtastic-mesh-gateway/pkg/meshtastic"
)

func TestNextBackoffLadder(t *testing.T) {
	min := 1 * time.Second
	max := 30 * time.Second

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{6, 30 * time.Second},
		{100, 30 * time.Second},
	}
	for _, c := range cases {
		got := nextBackoff(c.attempt, min, max)
		if got != c.want {
			t.Errorf("nextBackoff(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

// pipeDialer hands out one end of an in-memory net.Pipe per Dial call,
// optionally failing the first N attempts to exercise reconnect.
type pipeDialer struct {
	mu        sync.Mutex
	failFirst int
	dialCount int
	peer      net.Conn // the other end, kept by the test to drive traffic
}

func (d *pipeDialer) Name() string { return "pipe" }

func (d *pipeDialer) Dial(_ context.Context) (io.ReadWriteCloser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialCount++
	if d.dialCount <= d.failFirst {
		return nil, errors.New("simulated dial failure")
	}
	client, server := net.Pipe()
	d.peer = server
	return client, nil
}

func TestLinkDeliversFrames(t *testing.T) {
	dialer := &pipeDialer{}
	l := New(dialer, Config{MinBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var done int32
	go func() {
		l.Run(ctx)
		atomic.StoreInt32(&done, 1)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for dialer.peer == nil {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for dial")
		}
		time.Sleep(time.Millisecond)
	}

	serverFramer := meshtastic.NewStreamFramer(dialer.peer, dialer.peer)
	payload := []byte{0x01, 0x02, 0x03}
	if err := serverFramer.WritePacket(payload); err != nil {
		t.Fatalf("write packet: %v", err)
	}

	select {
	case frame := <-l.Frames():
		if len(frame) != len(payload) {
			t.Fatalf("frame length = %d, want %d", len(frame), len(payload))
		}
		for i := range payload {
			if frame[i] != payload[i] {
				t.Fatalf("frame[%d] = %x, want %x", i, frame[i], payload[i])
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}

	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if atomic.LoadInt32(&done) != 1 {
		t.Error("expected Run to return after Close")
	}
}

func TestLinkSkipsNoiseBytesWithoutReconnecting(t *testing.T) {
	dialer := &pipeDialer{}
	l := New(dialer, Config{MinBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go l.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for dialer.peer == nil {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for dial")
		}
		time.Sleep(time.Millisecond)
	}

	// Stray non-magic bytes ahead of a well-framed packet must be dropped
	// and decoding must continue, per §4.1, rather than tearing the link
	// down and forcing a reconnect.
	if _, err := dialer.peer.Write([]byte{0xFF, 0xFF, 0xFF}); err != nil {
		t.Fatalf("write noise: %v", err)
	}

	serverFramer := meshtastic.NewStreamFramer(dialer.peer, dialer.peer)
	payload := []byte{0x0a, 0x0b, 0x0c}
	if err := serverFramer.WritePacket(payload); err != nil {
		t.Fatalf("write packet: %v", err)
	}

	select {
	case frame := <-l.Frames():
		if len(frame) != len(payload) {
			t.Fatalf("frame length = %d, want %d", len(frame), len(payload))
		}
		for i := range payload {
			if frame[i] != payload[i] {
				t.Fatalf("frame[%d] = %x, want %x", i, frame[i], payload[i])
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame after noise bytes")
	}

	dialer.mu.Lock()
	attempts := dialer.dialCount
	dialer.mu.Unlock()
	if attempts != 1 {
		t.Errorf("dial count = %d, want 1 (noise must not trigger a reconnect)", attempts)
	}

	_ = l.Close()
}

func TestLinkReconnectsAfterDialFailure(t *testing.T) {
	dialer := &pipeDialer{failFirst: 2}
	l := New(dialer, Config{MinBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go l.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for dialer.peer == nil {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for dial to eventually succeed")
		}
		time.Sleep(time.Millisecond)
	}

	dialer.mu.Lock()
	attempts := dialer.dialCount
	dialer.mu.Unlock()
	if attempts < 3 {
		t.Errorf("expected at least 3 dial attempts (2 failures + 1 success), got %d", attempts)
	}

	_ = l.Close()
}

func TestLinkSendFailsWhenNotConnected(t *testing.T) {
	dialer := &pipeDialer{failFirst: 1000}
	l := New(dialer, Config{MinBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	err := l.Send(context.Background(), []byte{0x01})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() error = %v, want ErrNotConnected", err)
	}

	cancel()
}
