package link

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// SerialDialer opens a local serial port speaking the §4.1 frame codec.
type SerialDialer struct {
	Port string
	Baud int
}

func (d SerialDialer) Name() string {
	return fmt.Sprintf("serial:%s", d.Port)
}

func (d SerialDialer) Dial(_ context.Context) (io.ReadWriteCloser, error) {
	baud := d.Baud
	if baud == 0 {
		baud = 115200
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(d.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", d.Port, err)
	}
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return port, nil
}
