package session

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/xid"
	sglog "github.com/sourcegraph/log"
	"golang.org/x/net/trace"

	"github.com/sourcegraph/zfind/rpc"
)

type inbound struct {
	m   *rpc.Message
	err error
}

// Serve dispatches the messages read from r until the input ends or ctx is
// done. Every session is terminated on return.
// Failures that concern no session are written to w.
func Serve(ctx context.Context, logger sglog.Logger, r *rpc.Reader, w *rpc.Writer, mg *Manager) error {
	if logger == nil {
		logger = sglog.NoOp()
	}
	logger = logger.Scoped("serve", "message dispatch")
	defer mg.TerminateAll()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := trace.NewEventLog("zfind.Serve", "stdio")
	defer events.Finish()

	msgs := make(chan inbound)
	go func() {
		defer close(msgs)
		for {
			m, err := r.Next()
			select {
			case msgs <- inbound{m: m, err: err}:
			case <-ctx.Done():
				return
			}
			var de *rpc.DecodeError
			if err != nil && !errors.As(err, &de) {
				return
			}
		}
	}()

	for {
		var in inbound
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in, ok = <-msgs:
			if !ok {
				return nil
			}
		}

		if in.err != nil {
			var de *rpc.DecodeError
			if errors.As(in.err, &de) {
				logger.Warn("skipping malformed message", sglog.Error(in.err))
				events.Errorf("malformed: %v", in.err)
				continue
			}
			if in.err == io.EOF {
				logger.Debug("input closed")
				return nil
			}
			return fmt.Errorf("read message: %w", in.err)
		}

		m := in.m
		reqID := xid.New().String()
		events.Printf("%s %s session=%d id=%d", reqID, m.Method, m.SessionID, m.ID)

		switch m.Method {
		case rpc.MethodNewSession:
			if _, err := mg.NewSession(m.SessionID, m); err != nil {
				logger.Warn("failed to start session", sglog.Int("session", int(m.SessionID)), sglog.Error(err))
				events.Errorf("%s: %v", reqID, err)
				writeError(logger, w, m, reqID, err, "setup")
			}

		case rpc.MethodExit, rpc.MethodTerminate:
			// The editor sends exit whenever a finder window closes.
			if !mg.Terminate(m.SessionID) {
				logger.Debug("terminate of unknown session", sglog.Int("session", int(m.SessionID)))
			}

		default:
			if !mg.Send(m.SessionID, m, reqID) && !m.IsNotification() {
				writeError(logger, w, m, reqID, fmt.Errorf("unknown session %d", m.SessionID), "request")
			}
		}
	}
}

func writeError(logger sglog.Logger, w *rpc.Writer, m *rpc.Message, reqID string, err error, kind string) {
	resp := &rpc.Response{
		ID:        m.ID,
		SessionID: m.SessionID,
		Error:     &rpc.Error{Message: err.Error(), Kind: kind, RequestID: reqID},
	}
	if werr := w.Write(resp); werr != nil {
		logger.Warn("failed to write response", sglog.Error(werr))
	}
}
