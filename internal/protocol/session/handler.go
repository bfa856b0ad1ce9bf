package session

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/auctionctl/internal/observability"
	"github.com/danmuck/auctionctl/internal/protocol"
	"github.com/danmuck/auctionctl/internal/protocol/frame"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrHandlerClosed = errors.New("session: handler closed")
	ErrSendQueueFull = errors.New("session: send queue full")
)

// Dispatcher computes the reply for one inbound message. Returning
// protocol.Waiting() means no reply is due.
type Dispatcher interface {
	Dispatch(ctx context.Context, h *Handler, msg protocol.Message) protocol.Message
}

type DispatchFunc func(ctx context.Context, h *Handler, msg protocol.Message) protocol.Message

func (f DispatchFunc) Dispatch(ctx context.Context, h *Handler, msg protocol.Message) protocol.Message {
	return f(ctx, h, msg)
}

type outbound struct {
	msg   protocol.Message
	flags uint32
}

// Handler owns one connection: a receive loop driven by Run and a single
// writer goroutine draining the send queue.
type Handler struct {
	id     string
	role   string
	conn   net.Conn
	reader *bufio.Reader
	cfg    Config

	nextMessageID atomic.Uint64
	stopped       atomic.Bool

	sendMu sync.Mutex
	closed bool
	queue  chan outbound

	writerDone chan struct{}
}

// NewHandler wraps conn and starts its writer. role labels logs and metrics
// ("bank", "house", "agent").
func NewHandler(conn net.Conn, role string, cfg Config) *Handler {
	cfg = cfg.WithDefaults()
	h := &Handler{
		id:         uuid.NewString(),
		role:       role,
		conn:       conn,
		reader:     bufio.NewReader(conn),
		cfg:        cfg,
		queue:      make(chan outbound, cfg.SendQueueDepth),
		writerDone: make(chan struct{}),
	}
	h.nextMessageID.Store(uint64(time.Now().UnixNano()))
	observability.ConnectionOpened(role)
	go h.writeLoop()
	return h
}

func (h *Handler) ID() string {
	return h.id
}

func (h *Handler) Role() string {
	return h.role
}

func (h *Handler) RemoteAddr() string {
	return h.conn.RemoteAddr().String()
}

// Send queues msg for writing. It never blocks on the network; a peer that
// lets its queue fill up is disconnected.
func (h *Handler) Send(msg protocol.Message) error {
	return h.enqueue(msg, 0)
}

// Stop asks the receive loop to exit after the message it is handling.
func (h *Handler) Stop() {
	h.stopped.Store(true)
}

func (h *Handler) Stopped() bool {
	return h.stopped.Load()
}

// Close flushes queued messages and closes the connection. Safe to call
// more than once and from any goroutine.
func (h *Handler) Close() error {
	h.sendMu.Lock()
	h.closeQueueLocked()
	h.sendMu.Unlock()

	timer := time.NewTimer(h.cfg.WriteTimeout)
	defer timer.Stop()
	select {
	case <-h.writerDone:
	case <-timer.C:
		_ = h.conn.Close()
		<-h.writerDone
	}
	return nil
}

// Done is closed once the connection is torn down.
func (h *Handler) Done() <-chan struct{} {
	return h.writerDone
}

// Run is the receive loop: read one message, dispatch it, reply unless the
// dispatcher returned Waiting. EOF and closed streams end the loop with a nil
// error; undecodable frames end it with the decode error.
func (h *Handler) Run(ctx context.Context, d Dispatcher) error {
	defer h.Close()
	stopWatch := context.AfterFunc(ctx, func() {
		_ = h.Close()
	})
	defer stopWatch()

	for !h.stopped.Load() {
		if h.cfg.ReadIdleTimeout > 0 {
			_ = h.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadIdleTimeout))
		}
		msg, err := protocol.ReadMessage(h.reader, h.cfg.Limits)
		if err != nil {
			if isDecodeError(err) {
				log.Debug().Err(err).Str("conn", h.id).Str("role", h.role).Msg("session.Run decode failed")
				return err
			}
			log.Debug().Err(err).Str("conn", h.id).Str("role", h.role).Msg("session.Run stream closed")
			return nil
		}
		observability.RecordMessage(h.role, "in", msg.Type.String())

		if err := protocol.Validate(msg); err != nil {
			log.Debug().Err(err).Str("conn", h.id).Msg("session.Run ignoring malformed payload")
			continue
		}

		start := time.Now()
		resp := d.Dispatch(ctx, h, msg)
		observability.ObserveDispatch(h.role, msg.Type.String(), time.Since(start))
		if resp.IsWaiting() {
			continue
		}
		if err := h.enqueue(resp, frame.FlagIsResponse); err != nil {
			return nil
		}
	}
	return nil
}

func (h *Handler) enqueue(msg protocol.Message, flags uint32) error {
	if msg.IsWaiting() {
		return nil
	}
	h.sendMu.Lock()
	defer h.sendMu.Unlock()
	if h.closed {
		return ErrHandlerClosed
	}
	msg.ID = h.nextMessageID.Add(1)
	select {
	case h.queue <- outbound{msg: msg, flags: flags}:
		return nil
	default:
	}
	log.Warn().Str("conn", h.id).Str("remote", h.RemoteAddr()).Msg("session.Send queue full, dropping peer")
	h.closeQueueLocked()
	return ErrSendQueueFull
}

func (h *Handler) closeQueueLocked() {
	if h.closed {
		return
	}
	h.closed = true
	close(h.queue)
}

func (h *Handler) writeLoop() {
	defer close(h.writerDone)
	defer observability.ConnectionClosed(h.role)
	defer h.conn.Close()

	failed := false
	for out := range h.queue {
		if failed {
			continue
		}
		_ = h.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
		if err := protocol.WriteMessage(h.conn, out.msg, out.flags, h.cfg.Limits); err != nil {
			log.Debug().Err(err).Str("conn", h.id).Str("type", out.msg.Type.String()).Msg("session.writeLoop write failed")
			failed = true
			// Unblock the reader and refuse further sends; the queue drains below.
			_ = h.conn.Close()
			h.sendMu.Lock()
			h.closeQueueLocked()
			h.sendMu.Unlock()
			continue
		}
		observability.RecordMessage(h.role, "out", out.msg.Type.String())
	}
}

func isDecodeError(err error) bool {
	return errors.Is(err, protocol.ErrMalformedPayload) ||
		errors.Is(err, protocol.ErrUnknownMessageType) ||
		errors.Is(err, frame.ErrBadMagic) ||
		errors.Is(err, frame.ErrUnsupportedVersion) ||
		errors.Is(err, frame.ErrHeaderLenTooSmall) ||
		errors.Is(err, frame.ErrPayloadTooLarge)
}
