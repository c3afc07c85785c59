package ipc

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// FrameTerminator follows every encoded response on the wire. JSON encoding
// escapes control characters, so it never occurs inside a payload.
const FrameTerminator byte = 0

// WriteFrame encodes resp and writes it followed by one terminator byte.
func WriteFrame(w io.Writer, resp Response) error {
	payload, err := resp.Encode()
	if err != nil {
		return err
	}
	frame := append(payload, FrameTerminator)
	if _, err := w.Write(frame); err != nil {
		return newError(KindWrite, fmt.Sprintf("write %s frame", resp.Status), err)
	}
	return nil
}

// ReadRequest reads until the peer half-closes and returns the raw payload.
// A zero limit disables the size bound.
func ReadRequest(r io.Reader, limit int64) ([]byte, error) {
	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, newError(KindRead, "read request", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, newError(KindRead, "read request", fmt.Errorf("request exceeds %d bytes", limit))
	}
	return data, nil
}

// ScanFrames is a bufio.SplitFunc yielding terminator-delimited frame payloads.
// A trailing partial frame at EOF is returned as a final token.
func ScanFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, FrameTerminator); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// ReadFrames decodes every frame on r until EOF.
func ReadFrames(r io.Reader) ([]Response, error) {
	scanner := bufio.NewScanner(r)
	scanner.Split(ScanFrames)

	var out []Response
	for scanner.Scan() {
		resp, err := DecodeResponse(scanner.Bytes())
		if err != nil {
			return out, err
		}
		out = append(out, resp)
	}
	if err := scanner.Err(); err != nil {
		return out, newError(KindRead, "read frames", err)
	}
	return out, nil
}
