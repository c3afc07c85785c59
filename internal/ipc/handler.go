package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/rs/zerolog"

	"github.com/rbright/rstd/internal/fsm"
)

// Handler turns one decoded request into the terminal response.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Dispatch is the fixed command table: "request" is acknowledged, anything
// else is rejected.
func Dispatch(_ context.Context, req Request) Response {
	if req.ID == "request" {
		return NewResponse("response", StatusOk, "Roger that")
	}
	return NewResponse("what", StatusError, "Sorry what?")
}

// DefaultHandler routes through Dispatch.
var DefaultHandler Handler = HandlerFunc(Dispatch)

// ErrNonTerminalResponse reports a Handler that answered with an interim
// status. It is a fault in the handler, not in the connection, so the accept
// loop stops on it under every policy.
var ErrNonTerminalResponse = errors.New("handler returned a non-terminal response")

// InterimResponse is the frame sent while a request is being worked on.
func InterimResponse() Response {
	return NewResponse("processing", StatusProcessing, "still processing...")
}

const (
	DefaultInterimFrames   = 2
	DefaultInterimDelay    = time.Second
	DefaultMaxRequestBytes = 1 << 20
)

// Protocol runs one request/response exchange per stream.
type Protocol struct {
	Handler         Handler
	InterimFrames   int
	InterimDelay    time.Duration
	MaxRequestBytes int64
	Logger          *slog.Logger
	Console         zerolog.Logger

	// sleep paces interim frames; replaced in tests.
	sleep func(time.Duration)
}

// NewProtocol returns a Protocol with the default pacing and dispatch table.
func NewProtocol(logger *slog.Logger) *Protocol {
	return &Protocol{
		Handler:         DefaultHandler,
		InterimFrames:   DefaultInterimFrames,
		InterimDelay:    DefaultInterimDelay,
		MaxRequestBytes: DefaultMaxRequestBytes,
		Logger:          logger,
		Console:         zerolog.Nop(),
	}
}

// Outcome summarizes one finished exchange.
type Outcome struct {
	Request  Request
	Response Response
	Frames   int
	Trail    []fsm.State
}

// ServeConn reads one request from rw, emits the interim frames and the
// terminal frame. It never closes rw. The interim delay is unconditional and
// does not observe ctx.
func (p *Protocol) ServeConn(ctx context.Context, rw io.ReadWriter, peer Peer) (Outcome, error) {
	m := fsm.New()
	out := Outcome{}
	fail := func(err error) (Outcome, error) {
		_ = m.Fire(fsm.EventFail)
		out.Trail = m.Trail()
		p.logger().Warn("exchange failed",
			"conn", peer.ID,
			"kind", string(KindOf(err)),
			"frames", out.Frames,
			"error", err.Error(),
		)
		return out, err
	}

	payload, err := ReadRequest(rw, p.MaxRequestBytes)
	if err != nil {
		return fail(err)
	}
	p.mustFire(m, fsm.EventReceived)
	p.Console.Info().Str("conn", peer.ID).Msg(string(payload))

	req, err := DecodeRequest(payload)
	if err != nil {
		return fail(err)
	}
	out.Request = req
	p.mustFire(m, fsm.EventDecoded)
	p.Console.Info().Str("conn", peer.ID).Str("id", req.ID).Int("extra_fields", len(req.Fields)).Msg("parsed request")

	for i := 0; i < p.InterimFrames; i++ {
		p.Console.Info().Str("conn", peer.ID).Int("frame", i+1).Msg("sending processing response")
		if err := WriteFrame(rw, InterimResponse()); err != nil {
			return fail(err)
		}
		out.Frames++
		p.mustFire(m, fsm.EventInterim)
		p.pause()
	}
	p.mustFire(m, fsm.EventInterimEnd)

	handler := p.Handler
	if handler == nil {
		handler = DefaultHandler
	}
	resp := handler.Handle(ctx, req)
	if !resp.Status.Terminal() {
		return fail(fmt.Errorf("dispatch %q: %w: status %s", req.ID, ErrNonTerminalResponse, resp.Status))
	}
	out.Response = resp
	p.mustFire(m, fsm.EventDispatched)

	if err := WriteFrame(rw, resp); err != nil {
		return fail(err)
	}
	out.Frames++
	p.mustFire(m, fsm.EventFinalSent)
	out.Trail = m.Trail()

	p.logger().Info("exchange complete",
		"conn", peer.ID,
		"request_id", req.ID,
		"status", resp.Status.String(),
		"frames", out.Frames,
	)
	return out, nil
}

func (p *Protocol) pause() {
	if p.InterimDelay <= 0 {
		return
	}
	if p.sleep != nil {
		p.sleep(p.InterimDelay)
		return
	}
	time.Sleep(p.InterimDelay)
}

func (p *Protocol) mustFire(m *fsm.Machine, event fsm.Event) {
	if err := m.Fire(event); err != nil {
		panic(err)
	}
}

func (p *Protocol) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.Logger
}
