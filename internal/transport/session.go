// Package transport correlates requests and responses over one websocket
// connection to a conductor.
//
// A Session allocates a fresh id for every call, registers a pending slot
// under that id before the request frame is written, and resolves the slot
// when the matching Response frame arrives. Responses are matched strictly
// by id, so they may arrive in any order.
//
// When the connection drops, every pending call fails with a connection
// error and later calls fail fast. With keepalive pings enabled, a peer
// that stops answering them is treated as dropped. Timed-out and canceled calls remove
// their slot; a response that arrives afterwards is logged and dropped.
package transport

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/roach88/holoclient/internal/clienterr"
	"github.com/roach88/holoclient/internal/wire"
)

type result struct {
	data []byte
	err  error
}

// Session is one websocket connection to one conductor endpoint.
// It is safe for concurrent use.
type Session struct {
	id       string
	endpoint string
	cfg      Config
	log      zerolog.Logger
	header   http.Header
	dialer   *websocket.Dialer
	limiter  *rate.Limiter
	metrics  *Metrics
	onSignal SignalHandler

	conn    *websocket.Conn
	writeMu sync.Mutex

	// nextID is the last allocated request id. Ids start at 1.
	nextID atomic.Uint64

	mu       sync.Mutex
	pending  map[uint64]chan result
	closeErr *clienterr.Error

	group  *errgroup.Group
	cancel context.CancelFunc
	done   chan struct{}
}

// Dial connects to endpoint, retrying with backoff up to
// Config.ConnectAttempts times.
func Dial(ctx context.Context, endpoint string, opts ...Option) (*Session, error) {
	s := &Session{
		id:       uuid.NewString(),
		endpoint: endpoint,
		cfg:      DefaultConfig(),
		log:      log.Logger,
		pending:  make(map[uint64]chan result),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().
		Str("component", "transport").
		Str("session_id", s.id).
		Str("endpoint", endpoint).
		Logger()
	if s.dialer == nil {
		s.dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: s.cfg.ConnectTimeout,
		}
	}

	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	s.conn = conn
	s.start()
	return s, nil
}

func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	attempts := s.cfg.ConnectAttempts
	if attempts < 1 {
		attempts = 1
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, _, err := s.dialer.DialContext(ctx, s.endpoint, s.header)
		if err == nil {
			s.log.Debug().Int("attempt", attempt).Msg("connected")
			return conn, nil
		}
		lastErr = err
		s.log.Warn().Err(err).Int("attempt", attempt).Msg("dial failed")
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(NextBackoffDelay(s.cfg.Backoff, attempt, rng))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, clienterr.Connection(clienterr.CodeDialFailed, ctx.Err())
		case <-timer.C:
		}
	}
	return nil, clienterr.Connection(clienterr.CodeDialFailed,
		errors.Wrapf(lastErr, "dial %s after %d attempts", s.endpoint, attempts))
}

func (s *Session) start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	s.group = g

	s.conn.SetPongHandler(func(string) error {
		s.log.Trace().Msg("pong")
		s.extendReadDeadline()
		return nil
	})
	s.extendReadDeadline()

	g.Go(s.readLoop)
	if s.cfg.PingInterval > 0 {
		g.Go(func() error {
			return s.pingLoop(gctx)
		})
	}
}

// ID returns the session's unique id, used for log correlation.
func (s *Session) ID() string {
	return s.id
}

// Endpoint returns the websocket URL the session is connected to.
func (s *Session) Endpoint() string {
	return s.endpoint
}

// Done is closed once the session has shut down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns why the session shut down, or nil while it is open.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeErr == nil {
		return nil
	}
	return s.closeErr
}

// Pending returns the number of calls awaiting a response.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Call sends payload as a Request frame and waits for the Response with
// the same id. The wait ends at the earlier of the context deadline and
// Config.RequestTimeout.
func (s *Session) Call(ctx context.Context, payload []byte) ([]byte, error) {
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, contextError(ctx, err)
		}
	}

	id := s.nextID.Add(1)
	frame, err := wire.EncodeRequestFrame(id, payload)
	if err != nil {
		return nil, errors.Wrap(err, "encode request frame")
	}

	ch := make(chan result, 1)
	s.mu.Lock()
	if s.closeErr != nil {
		closeErr := s.closeErr
		s.mu.Unlock()
		return nil, closeErr
	}
	s.pending[id] = ch
	s.mu.Unlock()

	started := time.Now()
	s.metrics.callStarted()
	data, err := s.await(ctx, id, ch, frame)
	s.metrics.callFinished(outcome(err), time.Since(started))
	return data, err
}

func (s *Session) await(ctx context.Context, id uint64, ch chan result, frame []byte) ([]byte, error) {
	if err := s.write(frame); err != nil {
		s.remove(id)
		lost := clienterr.Connection(clienterr.CodeConnectionLost, err)
		s.shutdown(lost)
		return nil, lost
	}
	s.log.Trace().Uint64("request_id", id).Msg("request sent")

	select {
	case r := <-ch:
		return r.data, r.err
	case <-ctx.Done():
		if !s.remove(id) {
			// The receive loop claimed the slot first.
			r := <-ch
			return r.data, r.err
		}
		s.log.Debug().Uint64("request_id", id).Err(ctx.Err()).Msg("call abandoned")
		return nil, contextError(ctx, ctx.Err())
	}
}

func (s *Session) write(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(s.writeDeadline())
	return s.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// writeDeadline returns the deadline for one write. The zero time means
// no deadline.
func (s *Session) writeDeadline() time.Time {
	if s.cfg.WriteTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(s.cfg.WriteTimeout)
}

// extendReadDeadline pushes the read deadline two ping intervals out.
// Without pings reads never time out.
func (s *Session) extendReadDeadline() {
	if s.cfg.PingInterval <= 0 {
		return
	}
	_ = s.conn.SetReadDeadline(time.Now().Add(2 * s.cfg.PingInterval))
}

// remove deletes the pending slot for id and reports whether it was
// still registered.
func (s *Session) remove(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	delete(s.pending, id)
	return ok
}

func (s *Session) readLoop() error {
	for {
		mt, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.shutdown(clienterr.Connection(clienterr.CodeConnectionLost, err))
			return nil
		}
		s.extendReadDeadline()
		if mt != websocket.BinaryMessage {
			s.log.Warn().Int("message_type", mt).Msg("dropping non-binary message")
			continue
		}
		s.dispatch(raw)
	}
}

func (s *Session) dispatch(raw []byte) {
	frame, err := wire.DecodeFrame(raw)
	if err != nil {
		s.log.Warn().Err(err).Msg("dropping undecodable frame")
		return
	}

	switch frame.Type {
	case wire.FrameResponse:
		s.mu.Lock()
		ch, ok := s.pending[frame.ID]
		delete(s.pending, frame.ID)
		s.mu.Unlock()
		if !ok {
			s.log.Warn().Uint64("request_id", frame.ID).Msg("dropping response for unknown request id")
			return
		}
		ch <- result{data: frame.Data}
	case wire.FrameSignal:
		if s.onSignal != nil {
			s.onSignal(frame.Data)
		}
	default:
		s.log.Warn().Str("frame_type", string(frame.Type)).Msg("dropping unexpected frame")
	}
}

func (s *Session) pingLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, s.writeDeadline()); err != nil {
				s.shutdown(clienterr.Connection(clienterr.CodeConnectionLost, err))
				return nil
			}
		}
	}
}

// shutdown fails every pending call with cause and tears the connection
// down. Only the first cause is kept.
func (s *Session) shutdown(cause *clienterr.Error) {
	s.mu.Lock()
	if s.closeErr != nil {
		s.mu.Unlock()
		return
	}
	s.closeErr = cause
	pending := s.pending
	s.pending = make(map[uint64]chan result)
	s.mu.Unlock()

	for _, ch := range pending {
		ch <- result{err: cause}
	}
	if len(pending) > 0 {
		s.log.Warn().Int("pending", len(pending)).Str("reason", cause.Code).Msg("failed pending calls")
	}

	s.cancel()
	_ = s.conn.Close()
	close(s.done)
}

// Close closes the connection and fails pending calls with a connection
// error. It is idempotent.
func (s *Session) Close() error {
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()

	s.shutdown(clienterr.Connection(clienterr.CodeClosed, errors.New("session closed")))
	return s.group.Wait()
}

func contextError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return clienterr.Canceled("", err)
	}
	return clienterr.Timeout("", err)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if k := clienterr.KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}
