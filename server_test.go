package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"

	"gregoryjjb/blinker/blink"
	"gregoryjjb/blinker/gpio"
)

type testServer struct {
	config     *Config
	sink       *gpio.Simulated
	controller *blink.Controller
	history    *History
	server     *httptest.Server

	mu     sync.Mutex
	errors []error
}

func (ts *testServer) hardwareErrors() []error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]error(nil), ts.errors...)
}

func newTestServer(t *testing.T, gpioConfig gpio.Config) *testServer {
	t.Helper()

	config := newTestConfig(t, Flags{}, nil, `period = 1000`)
	ts := &testServer{config: config}

	ts.sink = gpio.NewSimulated(gpioConfig)
	require.NoError(t, ts.sink.Configure(gpio.Low))

	lo, hi := config.Bounds()
	controller, err := blink.New(ts.sink, blink.WithBounds(lo, hi), blink.WithPeriod(config.Period()))
	require.NoError(t, err)
	ts.controller = controller
	t.Cleanup(func() { controller.Close() })

	ts.history = NewHistory(historySize)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go watchEvents(controller, ts.history.Record)(ctx)

	s := NewServer(config, controller, ts.history, func(err error) {
		ts.mu.Lock()
		defer ts.mu.Unlock()
		ts.errors = append(ts.errors, err)
	})
	handler, err := s.Handler()
	require.NoError(t, err)

	ts.server = httptest.NewServer(handler)
	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) (int, string) {
	t.Helper()

	req, err := http.NewRequest(method, ts.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func decodeState(t *testing.T, body string) blink.State {
	t.Helper()
	var state blink.State
	require.NoError(t, json.Unmarshal([]byte(body), &state))
	return state
}

func TestServer_State(t *testing.T) {
	ts := newTestServer(t, gpio.Config{})

	code, body := ts.do(t, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, code)

	state := decodeState(t, body)
	assert.False(t, state.Running)
	assert.Equal(t, 1000, state.Period)
	assert.Equal(t, 100, state.MinPeriod)
	assert.Equal(t, 10000, state.MaxPeriod)
}

func TestServer_StartStop(t *testing.T) {
	ts := newTestServer(t, gpio.Config{})

	code, body := ts.do(t, http.MethodPost, "/api/start", "")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decodeState(t, body).Running)
	assert.Equal(t, gpio.High, ts.sink.Level())

	code, body = ts.do(t, http.MethodPost, "/api/stop", "")
	require.Equal(t, http.StatusOK, code)
	assert.False(t, decodeState(t, body).Running)
	assert.Equal(t, gpio.Low, ts.sink.Level())

	code, body = ts.do(t, http.MethodPost, "/api/toggle", "")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decodeState(t, body).Running)

	code, body = ts.do(t, http.MethodPost, "/api/toggle", "")
	require.Equal(t, http.StatusOK, code)
	assert.False(t, decodeState(t, body).Running)
	assert.Empty(t, ts.hardwareErrors())
}

func TestServer_Period(t *testing.T) {
	ts := newTestServer(t, gpio.Config{})

	tests := []struct {
		body     string
		wantCode int
	}{
		{body: "250", wantCode: http.StatusOK},
		{body: "50", wantCode: http.StatusBadRequest},
		{body: "10001", wantCode: http.StatusBadRequest},
		{body: "", wantCode: http.StatusBadRequest},
		{body: "soon", wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.body), func(t *testing.T) {
			code, _ := ts.do(t, http.MethodPut, "/api/period", tt.body)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, 250, ts.controller.State().Period, "rejected values leave the last valid period")
		})
	}
}

func TestServer_HardwareError(t *testing.T) {
	ts := newTestServer(t, gpio.Config{FailAfter: 1})
	require.NoError(t, ts.controller.Reset())

	code, body := ts.do(t, http.MethodPost, "/api/start", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, body, "error setting GPIO value: simulated hardware failure")
	assert.False(t, ts.controller.Running())

	errs := ts.hardwareErrors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], gpio.ErrSimulatedFailure)
}

func TestServer_Throttle(t *testing.T) {
	ts := newTestServer(t, gpio.Config{})

	s := NewServer(ts.config, ts.controller, ts.history, nil)
	s.limiter = rate.NewLimiter(rate.Every(time.Hour), 2)
	handler, err := s.Handler()
	require.NoError(t, err)

	toggle := func() int {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/toggle", nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, toggle())
	assert.Equal(t, http.StatusOK, toggle())
	assert.Equal(t, http.StatusTooManyRequests, toggle())
	assert.False(t, ts.controller.Running(), "the throttled toggle never reached the controller")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "reads are not throttled")
}

func TestServer_History(t *testing.T) {
	ts := newTestServer(t, gpio.Config{})

	ts.do(t, http.MethodPost, "/api/start", "")
	ts.do(t, http.MethodPost, "/api/stop", "")

	var events []blink.Event
	require.Eventually(t, func() bool {
		code, body := ts.do(t, http.MethodGet, "/api/history", "")
		require.Equal(t, http.StatusOK, code)
		require.NoError(t, json.Unmarshal([]byte(body), &events))
		return len(events) >= 4
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, blink.EventStarted, events[1].Type)
	assert.Equal(t, blink.EventStopped, events[len(events)-1].Type)
}

func TestServer_Index(t *testing.T) {
	ts := newTestServer(t, gpio.Config{})

	code, body := ts.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "START")
	assert.Contains(t, body, `value="1000"`)
}

func TestServer_Metrics(t *testing.T) {
	ts := newTestServer(t, gpio.Config{})

	code, body := ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "blinker_period_milliseconds")
}

func TestServer_Events(t *testing.T) {
	ts := newTestServer(t, gpio.Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.server.URL, "http") + "/api/events"
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	stopToggling := ts.keepToggling()
	defer stopToggling()

	for {
		_, data, err := c.Read(ctx)
		require.NoError(t, err)

		var e blink.Event
		require.NoError(t, json.Unmarshal(data, &e))
		if e.Type == blink.EventStarted {
			assert.True(t, e.Running)
			assert.Equal(t, 1000, e.Period)
			return
		}
	}
}

// keepToggling toggles the controller until the returned func is called.
// The websocket handler subscribes after the handshake, so tests produce
// events until one arrives.
func (ts *testServer) keepToggling() func() {
	stop := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ts.controller.Toggle()
			}
		}
	}()

	return func() {
		close(stop)
		<-exited
	}
}

func TestServer_EventsClosedWithController(t *testing.T) {
	ts := newTestServer(t, gpio.Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.server.URL, "http") + "/api/events"
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	stopToggling := ts.keepToggling()
	_, _, err = c.Read(ctx)
	stopToggling()
	require.NoError(t, err)

	require.NoError(t, ts.controller.Close())

	for {
		if _, _, err = c.Read(ctx); err != nil {
			break
		}
	}
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestServer_ListenAndServe(t *testing.T) {
	port := freePort(t)
	config := newTestConfig(t, Flags{}, map[string]string{"PORT": strconv.Itoa(port)}, ``)

	controller, err := blink.New(gpio.NewSimulated(gpio.Config{}))
	require.NoError(t, err)
	t.Cleanup(func() { controller.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- NewServer(config, controller, NewHistory(historySize), nil).ListenAndServe(ctx, func() { close(ready) })
	}()

	select {
	case <-ready:
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server never became ready")
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/api/state", config.Address()))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
