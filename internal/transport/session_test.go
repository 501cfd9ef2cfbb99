package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/holoclient/internal/clienterr"
	"github.com/roach88/holoclient/internal/wire"
)

// newServer starts a websocket server running handler on each connection
// and returns its ws:// URL.
func newServer(t *testing.T, handler func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readRequest(t *testing.T, conn *websocket.Conn) (wire.Frame, bool) {
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return wire.Frame{}, false
	}
	f, err := wire.DecodeFrame(raw)
	require.NoError(t, err)
	require.Equal(t, wire.FrameRequest, f.Type)
	return f, true
}

func respond(t *testing.T, conn *websocket.Conn, id uint64, data []byte) {
	raw, err := wire.EncodeResponseFrame(id, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, raw))
}

// echo answers every request with its own payload.
func echo(t *testing.T) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		for {
			f, ok := readRequest(t, conn)
			if !ok {
				return
			}
			respond(t, conn, f.ID, f.Data)
		}
	}
}

func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ConnectAttempts = 1
	cfg.RequestTimeout = 5 * time.Second
	cfg.PingInterval = 0
	return cfg
}

func dial(t *testing.T, url string, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithConfig(testConfig()), WithLogger(zerolog.Nop())}, opts...)
	s, err := Dial(context.Background(), url, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCall_Echo(t *testing.T) {
	s := dial(t, newServer(t, echo(t)))

	got, err := s.Call(context.Background(), []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
	assert.Zero(t, s.Pending())
	assert.NotEmpty(t, s.ID())
}

func TestCall_OutOfOrderResponses(t *testing.T) {
	const n = 5
	url := newServer(t, func(conn *websocket.Conn) {
		var frames []wire.Frame
		for len(frames) < n {
			f, ok := readRequest(t, conn)
			if !ok {
				return
			}
			frames = append(frames, f)
		}
		for i := len(frames) - 1; i >= 0; i-- {
			respond(t, conn, frames[i].ID, frames[i].Data)
		}
		drain(conn)
	})
	s := dial(t, url)

	var wg sync.WaitGroup
	results := make([][]byte, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.Call(context.Background(), []byte(fmt.Sprintf("payload-%d", i)))
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, fmt.Sprintf("payload-%d", i), string(results[i]))
	}
	assert.Zero(t, s.Pending())
}

func TestCall_ConnectionDropFailsAllPending(t *testing.T) {
	const n = 4
	url := newServer(t, func(conn *websocket.Conn) {
		for i := 0; i < n; i++ {
			if _, ok := readRequest(t, conn); !ok {
				return
			}
		}
		// Returning closes the connection with every request unanswered.
	})
	s := dial(t, url)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Call(context.Background(), []byte{byte(i)})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.True(t, clienterr.IsConnection(err), "got %v", err)
	}
	assert.Zero(t, s.Pending())

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not shut down")
	}
	_, err := s.Call(context.Background(), []byte{9})
	assert.True(t, clienterr.IsConnection(err))
}

func TestCall_TimeoutThenLateResponseDropped(t *testing.T) {
	release := make(chan struct{})
	url := newServer(t, func(conn *websocket.Conn) {
		first, ok := readRequest(t, conn)
		if !ok {
			return
		}
		<-release
		respond(t, conn, first.ID, []byte("late"))
		echo(t)(conn)
	})
	s := dial(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.Call(ctx, []byte("slow"))
	assert.True(t, clienterr.IsTimeout(err), "got %v", err)
	assert.Zero(t, s.Pending())

	close(release)
	got, err := s.Call(context.Background(), []byte("next"))
	require.NoError(t, err)
	assert.Equal(t, []byte("next"), got)
}

func TestCall_SessionRequestTimeout(t *testing.T) {
	url := newServer(t, drain)
	cfg := testConfig()
	cfg.RequestTimeout = 30 * time.Millisecond
	s := dial(t, url, WithConfig(cfg))

	_, err := s.Call(context.Background(), []byte("x"))
	assert.True(t, clienterr.IsTimeout(err), "got %v", err)
	assert.Zero(t, s.Pending())
}

func TestCall_Canceled(t *testing.T) {
	url := newServer(t, drain)
	s := dial(t, url)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := s.Call(ctx, []byte("x"))
	assert.True(t, clienterr.IsCanceled(err), "got %v", err)
	assert.Zero(t, s.Pending())
}

func TestDispatch_UnknownIDAndGarbageDropped(t *testing.T) {
	url := newServer(t, func(conn *websocket.Conn) {
		for {
			f, ok := readRequest(t, conn)
			if !ok {
				return
			}
			respond(t, conn, f.ID+1000, []byte("stray"))
			require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0xc1}))
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("text")))
			respond(t, conn, f.ID, f.Data)
		}
	})
	s := dial(t, url)

	got, err := s.Call(context.Background(), []byte("ok"))
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), got)
	assert.Nil(t, s.Err())
}

func TestSignalHandler(t *testing.T) {
	url := newServer(t, func(conn *websocket.Conn) {
		raw, err := wire.EncodeSignalFrame([]byte("sig"))
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, raw))
		echo(t)(conn)
	})
	signals := make(chan []byte, 1)
	dial(t, url, WithSignalHandler(func(data []byte) { signals <- data }))

	select {
	case got := <-signals:
		assert.Equal(t, []byte("sig"), got)
	case <-time.After(2 * time.Second):
		t.Fatal("signal not delivered")
	}
}

func TestPing_KeepsSessionAlive(t *testing.T) {
	var pings atomic.Int32
	url := newServer(t, func(conn *websocket.Conn) {
		conn.SetPingHandler(func(data string) error {
			pings.Add(1)
			return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		})
		echo(t)(conn)
	})
	cfg := testConfig()
	cfg.PingInterval = 20 * time.Millisecond
	cfg.WriteTimeout = 0
	s := dial(t, url, WithConfig(cfg))

	// Idle well past the two-interval read deadline; pongs keep it open.
	assert.Eventually(t, func() bool { return pings.Load() >= 5 }, 2*time.Second, 10*time.Millisecond)
	assert.Nil(t, s.Err())

	got, err := s.Call(context.Background(), []byte("still here"))
	require.NoError(t, err)
	assert.Equal(t, []byte("still here"), got)
}

func TestPing_UnresponsivePeerFailsPending(t *testing.T) {
	release := make(chan struct{})
	url := newServer(t, func(conn *websocket.Conn) {
		if _, ok := readRequest(t, conn); !ok {
			return
		}
		// Stop reading, so pings are never answered.
		<-release
	})
	t.Cleanup(func() { close(release) })
	cfg := testConfig()
	cfg.PingInterval = 20 * time.Millisecond
	s := dial(t, url, WithConfig(cfg))

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Call(context.Background(), []byte("unanswered"))
		errCh <- err
	}()

	select {
	case err := <-errCh:
		assert.True(t, clienterr.IsConnection(err), "got %v", err)
		assert.Equal(t, clienterr.CodeConnectionLost, clienterr.CodeOf(err))
	case <-time.After(2 * time.Second):
		t.Fatal("pending call not failed")
	}
	assert.Zero(t, s.Pending())

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not shut down")
	}
	_, err := s.Call(context.Background(), []byte("after"))
	assert.True(t, clienterr.IsConnection(err))
}

func TestClose_Idempotent(t *testing.T) {
	s := dial(t, newServer(t, echo(t)))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Call(context.Background(), []byte("x"))
	assert.True(t, clienterr.IsConnection(err))
	assert.Equal(t, clienterr.CodeClosed, clienterr.CodeOf(err))
}

func TestDial_Failure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	cfg := testConfig()
	cfg.ConnectAttempts = 2
	cfg.Backoff = BackoffConfig{InitialDelay: time.Millisecond}
	_, err := Dial(context.Background(), url, WithConfig(cfg), WithLogger(zerolog.Nop()))
	assert.True(t, clienterr.IsConnection(err))
	assert.Equal(t, clienterr.CodeDialFailed, clienterr.CodeOf(err))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)
	s := dial(t, newServer(t, echo(t)), WithMetrics(m))

	_, err = s.Call(context.Background(), []byte("x"))
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[mf.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[mf.GetName()] = metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				values[mf.GetName()] = float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	assert.Equal(t, 1.0, values["holoclient_transport_calls_total"])
	assert.Equal(t, 0.0, values["holoclient_transport_calls_in_flight"])
	assert.Equal(t, 1.0, values["holoclient_transport_call_duration_seconds"])
}

func TestNextBackoffDelay(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: 300 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, NextBackoffDelay(cfg, 1, nil))
	assert.Equal(t, 200*time.Millisecond, NextBackoffDelay(cfg, 2, nil))
	assert.Equal(t, 300*time.Millisecond, NextBackoffDelay(cfg, 3, nil))

	cfg.Jitter = true
	assert.Equal(t, 100*time.Millisecond, NextBackoffDelay(cfg, 2, nil))
	assert.Zero(t, NextBackoffDelay(BackoffConfig{}, 3, nil))
}
