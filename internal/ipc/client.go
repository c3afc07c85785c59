package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Exchange sends req to the server on path, half-closes the write side so the
// server sees end of input, and collects every response frame until EOF.
func Exchange(ctx context.Context, path string, req Request, timeout time.Duration) ([]Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return ExchangeRaw(ctx, path, payload, timeout)
}

// ExchangeRaw is Exchange with a caller-supplied request payload.
func ExchangeRaw(ctx context.Context, path string, payload []byte, timeout time.Duration) ([]Response, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return nil, fmt.Errorf("set deadline: %w", err)
		}
	}

	if _, err := conn.Write(payload); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		if err := uc.CloseWrite(); err != nil {
			return nil, fmt.Errorf("close write: %w", err)
		}
	}

	frames, err := ReadFrames(conn)
	if err != nil {
		return frames, fmt.Errorf("read response: %w", err)
	}
	return frames, nil
}

// Terminal returns the last frame when it carries a terminal status.
func Terminal(frames []Response) (Response, bool) {
	if len(frames) == 0 {
		return Response{}, false
	}
	last := frames[len(frames)-1]
	return last, last.Status.Terminal()
}
