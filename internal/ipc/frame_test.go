package ipc

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteFrameAppendsSingleTerminator(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, NewResponse("response", StatusOk, "Roger that")))

	data := buf.Bytes()
	require.Equal(t, byte(0), data[len(data)-1])
	require.Equal(t, 1, bytes.Count(data, []byte{0}))
	require.JSONEq(t, `{"id":"response","status":"Ok","message":"Roger that"}`, string(data[:len(data)-1]))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWriteFrameClassifiesWriteFailure(t *testing.T) {
	err := WriteFrame(failingWriter{}, InterimResponse())
	require.ErrorIs(t, err, ErrWrite)
	require.Contains(t, err.Error(), "broken pipe")
}

func TestScanFramesSplitsOnTerminator(t *testing.T) {
	var stream bytes.Buffer
	require.NoError(t, WriteFrame(&stream, InterimResponse()))
	require.NoError(t, WriteFrame(&stream, InterimResponse()))
	require.NoError(t, WriteFrame(&stream, NewResponse("what", StatusError, "Sorry what?")))

	scanner := bufio.NewScanner(bytes.NewReader(stream.Bytes()))
	scanner.Split(ScanFrames)

	var tokens []string
	for scanner.Scan() {
		tokens = append(tokens, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	require.Len(t, tokens, 3)
	for _, tok := range tokens {
		require.NotContains(t, tok, "\x00")
	}
}

func TestScanFramesReturnsTrailingPartialFrame(t *testing.T) {
	scanner := bufio.NewScanner(strings.NewReader("a\x00b"))
	scanner.Split(ScanFrames)

	var tokens []string
	for scanner.Scan() {
		tokens = append(tokens, scanner.Text())
	}
	require.Equal(t, []string{"a", "b"}, tokens)
}

func TestReadFramesDecodesEveryFrame(t *testing.T) {
	var stream bytes.Buffer
	require.NoError(t, WriteFrame(&stream, InterimResponse()))
	require.NoError(t, WriteFrame(&stream, NewResponse("response", StatusOk, "Roger that")))

	frames, err := ReadFrames(&stream)
	require.NoError(t, err)
	require.Equal(t, []Response{InterimResponse(), NewResponse("response", StatusOk, "Roger that")}, frames)
}

func TestReadRequestReadsToEOF(t *testing.T) {
	data, err := ReadRequest(strings.NewReader(`{"id":"request"}`), 0)
	require.NoError(t, err)
	require.Equal(t, `{"id":"request"}`, string(data))
}

func TestReadRequestEnforcesLimit(t *testing.T) {
	_, err := ReadRequest(strings.NewReader(strings.Repeat("x", 17)), 16)
	require.ErrorIs(t, err, ErrRead)
	require.Contains(t, err.Error(), "exceeds 16 bytes")

	data, err := ReadRequest(strings.NewReader(strings.Repeat("x", 16)), 16)
	require.NoError(t, err)
	require.Len(t, data, 16)
}
