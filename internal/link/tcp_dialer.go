package link

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"
)

// TCPDialer dials the radio's TCP API port (default 4403 per §6.2).
type TCPDialer struct {
	Host string
	Port int
}

func (d TCPDialer) Name() string {
	return fmt.Sprintf("tcp:%s:%d", d.Host, d.Port)
}

func (d TCPDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	addr := fmt.Sprintf("%s:%d", d.Host, d.Port)
	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}
