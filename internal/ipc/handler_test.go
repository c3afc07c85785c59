package ipc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/rstd/internal/fsm"
)

type scriptedConn struct {
	in          io.Reader
	out         bytes.Buffer
	failWriteAt int
	writes      int
}

func (c *scriptedConn) Read(p []byte) (int, error) { return c.in.Read(p) }

func (c *scriptedConn) Write(p []byte) (int, error) {
	c.writes++
	if c.failWriteAt > 0 && c.writes == c.failWriteAt {
		return 0, errors.New("connection reset by peer")
	}
	return c.out.Write(p)
}

func newTestProtocol(sleeps *[]time.Duration) *Protocol {
	p := NewProtocol(nil)
	p.sleep = func(d time.Duration) { *sleeps = append(*sleeps, d) }
	return p
}

func TestServeConnAcknowledgesRequest(t *testing.T) {
	var sleeps []time.Duration
	p := newTestProtocol(&sleeps)
	conn := &scriptedConn{in: strings.NewReader(`{"id":"request"}`)}

	out, err := p.ServeConn(context.Background(), conn, Peer{ID: "t"})
	require.NoError(t, err)
	require.Equal(t, 3, out.Frames)
	require.Equal(t, []time.Duration{time.Second, time.Second}, sleeps)

	frames, err := ReadFrames(&conn.out)
	require.NoError(t, err)
	require.Equal(t, []Response{
		InterimResponse(),
		InterimResponse(),
		NewResponse("response", StatusOk, "Roger that"),
	}, frames)
	require.Equal(t, 3, bytes.Count(conn.out.Bytes(), []byte{0}))

	require.Equal(t, []fsm.State{
		fsm.StateAwaitingRequest,
		fsm.StateDecoding,
		fsm.StateEmittingInterim,
		fsm.StateEmittingInterim,
		fsm.StateEmittingInterim,
		fsm.StateDispatching,
		fsm.StateEmittingFinal,
		fsm.StateClosed,
	}, out.Trail)
}

func TestServeConnRejectsOtherIDs(t *testing.T) {
	for _, input := range []string{
		`{"id":""}`,
		`{"id":"Request"}`,
		`{"id":"request "}`,
		`{"id":"hello","extra":true}`,
	} {
		t.Run(input, func(t *testing.T) {
			var sleeps []time.Duration
			p := newTestProtocol(&sleeps)
			conn := &scriptedConn{in: strings.NewReader(input)}

			out, err := p.ServeConn(context.Background(), conn, Peer{})
			require.NoError(t, err)
			require.Equal(t, NewResponse("what", StatusError, "Sorry what?"), out.Response)

			frames, err := ReadFrames(&conn.out)
			require.NoError(t, err)
			require.Len(t, frames, 3)
			require.Equal(t, StatusProcessing, frames[0].Status)
			require.Equal(t, StatusProcessing, frames[1].Status)
			require.Equal(t, NewResponse("what", StatusError, "Sorry what?"), frames[2])
		})
	}
}

func TestServeConnMalformedRequestIsDecodeError(t *testing.T) {
	for _, input := range []string{"not-json", `{"name":"request"}`, `{"id":1}`} {
		var sleeps []time.Duration
		p := newTestProtocol(&sleeps)
		conn := &scriptedConn{in: strings.NewReader(input)}

		out, err := p.ServeConn(context.Background(), conn, Peer{})
		require.ErrorIs(t, err, ErrDecode, input)
		require.Zero(t, conn.out.Len(), "no frames before a request decodes")
		require.Empty(t, sleeps)
		require.Equal(t, fsm.StateFailed, out.Trail[len(out.Trail)-1])
	}
}

func TestServeConnEmptyRequestIsDecodeError(t *testing.T) {
	for _, input := range []string{"", " \n\t"} {
		var sleeps []time.Duration
		p := newTestProtocol(&sleeps)
		conn := &scriptedConn{in: strings.NewReader(input)}

		out, err := p.ServeConn(context.Background(), conn, Peer{})
		require.ErrorIs(t, err, ErrDecode)
		require.Zero(t, out.Frames)
		require.Zero(t, conn.out.Len())
		require.Empty(t, sleeps)
		require.Equal(t, []fsm.State{fsm.StateAwaitingRequest, fsm.StateDecoding, fsm.StateFailed}, out.Trail)
	}
}

func TestServeConnInvalidUTF8IsDecodeError(t *testing.T) {
	var sleeps []time.Duration
	p := newTestProtocol(&sleeps)
	conn := &scriptedConn{in: strings.NewReader("{\"id\":\"request\",\"x\":\"\xff\"}")}

	_, err := p.ServeConn(context.Background(), conn, Peer{})
	require.ErrorIs(t, err, ErrDecode)
	require.Zero(t, conn.out.Len())
}

func TestServeConnWriteFailureStopsExchange(t *testing.T) {
	var sleeps []time.Duration
	p := newTestProtocol(&sleeps)
	conn := &scriptedConn{in: strings.NewReader(`{"id":"request"}`), failWriteAt: 2}

	out, err := p.ServeConn(context.Background(), conn, Peer{})
	require.ErrorIs(t, err, ErrWrite)
	require.Equal(t, 1, out.Frames)
	require.Len(t, sleeps, 1)
}

func TestServeConnReadFailure(t *testing.T) {
	p := NewProtocol(nil)
	conn := &scriptedConn{in: io.MultiReader(strings.NewReader(`{"id"`), iotestErrReader{})}

	_, err := p.ServeConn(context.Background(), conn, Peer{})
	require.ErrorIs(t, err, ErrRead)
}

type iotestErrReader struct{}

func (iotestErrReader) Read([]byte) (int, error) { return 0, errors.New("read timeout") }

func TestServeConnCustomHandlerAndFrameCount(t *testing.T) {
	var sleeps []time.Duration
	p := newTestProtocol(&sleeps)
	p.InterimFrames = 0
	p.Handler = HandlerFunc(func(_ context.Context, req Request) Response {
		return NewResponse("echo", StatusOk, req.ID)
	})
	conn := &scriptedConn{in: strings.NewReader(`{"id":"ping"}`)}

	out, err := p.ServeConn(context.Background(), conn, Peer{})
	require.NoError(t, err)
	require.Equal(t, 1, out.Frames)
	require.Empty(t, sleeps)
	require.Equal(t, NewResponse("echo", StatusOk, "ping"), out.Response)
}

func TestServeConnRejectsNonTerminalHandlerResponse(t *testing.T) {
	var sleeps []time.Duration
	p := newTestProtocol(&sleeps)
	p.Handler = HandlerFunc(func(context.Context, Request) Response {
		return InterimResponse()
	})
	conn := &scriptedConn{in: strings.NewReader(`{"id":"request"}`)}

	out, err := p.ServeConn(context.Background(), conn, Peer{})
	require.ErrorIs(t, err, ErrNonTerminalResponse)
	require.Empty(t, KindOf(err))
	require.False(t, ConnectionScoped(err))
	require.Contains(t, err.Error(), "status Processing")
	require.Equal(t, 2, out.Frames, "only the interim frames were written")
	require.Equal(t, fsm.StateFailed, out.Trail[len(out.Trail)-1])
}

func TestDispatchTable(t *testing.T) {
	require.Equal(t, NewResponse("response", StatusOk, "Roger that"), Dispatch(context.Background(), Request{ID: "request"}))
	require.Equal(t, NewResponse("what", StatusError, "Sorry what?"), Dispatch(context.Background(), Request{ID: "other"}))
	require.Equal(t, NewResponse("what", StatusError, "Sorry what?"), Dispatch(context.Background(), Request{}))
}
