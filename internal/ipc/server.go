package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/rs/zerolog"
)

// ErrorPolicy decides whether a failed exchange stops the accept loop.
type ErrorPolicy string

const (
	// PolicyFatal stops serving on the first failed exchange.
	PolicyFatal ErrorPolicy = "fatal"
	// PolicyIsolate reports a failed exchange and keeps accepting.
	PolicyIsolate ErrorPolicy = "isolate"
)

// ParseErrorPolicy validates a configured policy name.
func ParseErrorPolicy(raw string) (ErrorPolicy, error) {
	switch p := ErrorPolicy(raw); p {
	case PolicyFatal, PolicyIsolate:
		return p, nil
	case "":
		return PolicyFatal, nil
	default:
		return "", fmt.Errorf("unknown error policy %q (want %q or %q)", raw, PolicyFatal, PolicyIsolate)
	}
}

const DefaultPollInterval = 50 * time.Millisecond

// ServeOptions tunes the accept loop.
type ServeOptions struct {
	Policy       ErrorPolicy
	PollInterval time.Duration
	Logger       *slog.Logger
	Console      zerolog.Logger

	// OnExchange observes every finished exchange, successful or not.
	OnExchange func(Peer, Outcome, error)
}

// Serve accepts clients one at a time and runs each exchange to completion
// before accepting the next. It returns nil once ctx is cancelled and the
// endpoint has been closed, or the first fatal error.
func Serve(ctx context.Context, ep *Endpoint, proto *Protocol, opts ServeOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	policy, err := ParseErrorPolicy(string(opts.Policy))
	if err != nil {
		return err
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	stop := context.AfterFunc(ctx, func() {
		_ = ep.Close()
	})
	defer stop()

	for {
		conn, peer, err := ep.Accept()
		if err != nil {
			if errors.Is(err, ErrWouldBlock) {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(poll):
					continue
				}
			}
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			logger.Error("accept failed", "socket", ep.Path(), "error", err.Error())
			return err
		}

		opts.Console.Info().Str("peer", peer.String()).Msg("accepted connection")
		logger.Info("connection accepted",
			"conn", peer.ID,
			"addr", peer.Addr,
			"pid", peer.PID,
			"uid", peer.UID,
		)

		outcome, exchangeErr := proto.ServeConn(ctx, conn, peer)
		_ = conn.Close()
		if opts.OnExchange != nil {
			opts.OnExchange(peer, outcome, exchangeErr)
		}
		if exchangeErr == nil {
			continue
		}

		if policy == PolicyIsolate && ConnectionScoped(exchangeErr) {
			opts.Console.Warn().Str("conn", peer.ID).Err(exchangeErr).Msg("connection failed, continuing")
			continue
		}
		return fmt.Errorf("connection %s: %w", peer.ID, exchangeErr)
	}
}
