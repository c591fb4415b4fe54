package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/cointie/internal/coin"
	"github.com/lox/cointie/internal/simulator"
)

type fakeRecorder struct {
	mu      sync.Mutex
	results []*simulator.Result
}

func (f *fakeRecorder) Record(_ context.Context, r *simulator.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, r)
	return nil
}

func (f *fakeRecorder) recorded() []*simulator.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*simulator.Result(nil), f.results...)
}

func quietLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

func startTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	ts := httptest.NewServer(NewServer(cfg).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType MessageType, requestID string, data any) {
	t.Helper()
	msg, err := NewMessage(msgType, data, time.Now())
	require.NoError(t, err)
	msg.RequestID = requestID
	require.NoError(t, conn.WriteJSON(msg))
}

// readUntil reads messages until one of the wanted types arrives. Skipped
// progress messages are returned alongside it.
func readUntil(t *testing.T, conn *websocket.Conn, wanted ...MessageType) (*Message, []simulator.Progress) {
	t.Helper()
	var progress []simulator.Progress
	for {
		_ = conn.SetReadDeadline(time.Now().Add(20 * time.Second))
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		for _, w := range wanted {
			if msg.Type == w {
				return &msg, progress
			}
		}
		if msg.Type == MessageTypeProgress {
			var p simulator.Progress
			require.NoError(t, json.Unmarshal(msg.Data, &p))
			progress = append(progress, p)
			continue
		}
		t.Fatalf("unexpected message type %q: %s", msg.Type, msg.Data)
	}
}

func decodeError(t *testing.T, msg *Message) ErrorData {
	t.Helper()
	require.Equal(t, MessageTypeError, msg.Type)
	var data ErrorData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	return data
}

func seed(v int64) *int64 {
	return &v
}

func TestHealth(t *testing.T) {
	ts := startTestServer(t, Config{})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestRunStreamsProgressAndResult(t *testing.T) {
	recorder := &fakeRecorder{}
	ts := startTestServer(t, Config{Recorder: recorder})
	conn := dial(t, ts)

	send(t, conn, MessageTypeRun, "req-1", RunRequest{
		Trials:         400,
		FlipsPerPlayer: 50,
		Seed:           seed(42),
		Workers:        2,
		BatchSize:      100,
	})

	msg, progress := readUntil(t, conn, MessageTypeResult)
	assert.Equal(t, "req-1", msg.RequestID)

	var result simulator.Result
	require.NoError(t, json.Unmarshal(msg.Data, &result))
	assert.Equal(t, 400, result.Trials)
	assert.Equal(t, 50, result.FlipsPerPlayer)
	assert.Equal(t, int64(42), result.Seed)

	require.Len(t, progress, 4)
	assert.Equal(t, 400, progress[3].Completed)

	expected, err := simulator.New(simulator.Config{
		Trials:         400,
		FlipsPerPlayer: 50,
		Seed:           42,
		BatchSize:      100,
	}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, expected.Equal, result.Equal)

	recorded := recorder.recorded()
	require.Len(t, recorded, 1)
	assert.Equal(t, result.ID, recorded[0].ID)
}

func TestRunDefaultsToClassicSimulation(t *testing.T) {
	ts := startTestServer(t, Config{})
	conn := dial(t, ts)

	send(t, conn, MessageTypeRun, "", RunRequest{Seed: seed(1), Workers: 4})

	msg, _ := readUntil(t, conn, MessageTypeResult)
	var result simulator.Result
	require.NoError(t, json.Unmarshal(msg.Data, &result))
	assert.Equal(t, coin.N, result.Trials)
	assert.Equal(t, coin.N, result.FlipsPerPlayer)
}

func TestRunRejectsBadInput(t *testing.T) {
	ts := startTestServer(t, Config{})
	conn := dial(t, ts)

	t.Run("negative trials", func(t *testing.T) {
		send(t, conn, MessageTypeRun, "bad", RunRequest{Trials: -1})
		msg, _ := readUntil(t, conn, MessageTypeError)
		assert.Equal(t, "bad", msg.RequestID)
		assert.Equal(t, ErrorCodeInvalidArgument, decodeError(t, msg).Code)
	})

	limits := []struct {
		name  string
		req   RunRequest
		field string
	}{
		{"too many trials", RunRequest{Trials: MaxTrials + 1}, "trials"},
		{"too many flips", RunRequest{Trials: 1, FlipsPerPlayer: 2_000_000_000}, "flips_per_player"},
		{"batch too large", RunRequest{BatchSize: MaxBatchSize + 1}, "batch_size"},
	}
	for _, tt := range limits {
		t.Run(tt.name, func(t *testing.T) {
			send(t, conn, MessageTypeRun, "big", tt.req)
			msg, _ := readUntil(t, conn, MessageTypeError)
			data := decodeError(t, msg)
			assert.Equal(t, ErrorCodeInvalidArgument, data.Code)
			assert.Contains(t, data.Message, tt.field)
		})
	}

	t.Run("malformed data", func(t *testing.T) {
		send(t, conn, MessageTypeRun, "", "not an object")
		msg, _ := readUntil(t, conn, MessageTypeError)
		assert.Equal(t, ErrorCodeBadMessage, decodeError(t, msg).Code)
	})

	t.Run("unknown type", func(t *testing.T) {
		send(t, conn, MessageType("jump"), "", nil)
		msg, _ := readUntil(t, conn, MessageTypeError)
		data := decodeError(t, msg)
		assert.Equal(t, ErrorCodeBadMessage, data.Code)
		assert.Contains(t, data.Message, "jump")
	})

	t.Run("cancel without run", func(t *testing.T) {
		send(t, conn, MessageTypeCancel, "", nil)
		msg, _ := readUntil(t, conn, MessageTypeError)
		assert.Equal(t, ErrorCodeBadMessage, decodeError(t, msg).Code)
	})
}

func longRun() RunRequest {
	return RunRequest{
		Trials:         1_000_000,
		FlipsPerPlayer: 1000,
		Seed:           seed(3),
		BatchSize:      100,
	}
}

func TestCancelAndBusy(t *testing.T) {
	recorder := &fakeRecorder{}
	ts := startTestServer(t, Config{Recorder: recorder})
	conn := dial(t, ts)

	send(t, conn, MessageTypeRun, "long", longRun())
	readUntil(t, conn, MessageTypeProgress)

	send(t, conn, MessageTypeRun, "second", RunRequest{Trials: 10, FlipsPerPlayer: 10})
	msg, _ := readUntil(t, conn, MessageTypeError)
	assert.Equal(t, "second", msg.RequestID)
	assert.Equal(t, ErrorCodeBusy, decodeError(t, msg).Code)

	send(t, conn, MessageTypeCancel, "", nil)
	msg, _ = readUntil(t, conn, MessageTypeCancelled)
	assert.Equal(t, "long", msg.RequestID)
	assert.Empty(t, recorder.recorded())

	// The connection accepts a new run once the old one is gone
	send(t, conn, MessageTypeRun, "after", RunRequest{Trials: 10, FlipsPerPlayer: 10, Seed: seed(1)})
	msg, _ = readUntil(t, conn, MessageTypeResult)
	assert.Equal(t, "after", msg.RequestID)
}

func TestRunTimeout(t *testing.T) {
	clock := quartz.NewMock(t)
	ts := startTestServer(t, Config{Clock: clock, MaxRunTime: time.Second})
	conn := dial(t, ts)

	send(t, conn, MessageTypeRun, "slow", longRun())
	readUntil(t, conn, MessageTypeProgress)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	clock.Advance(time.Second).MustWait(ctx)

	msg, _ := readUntil(t, conn, MessageTypeError)
	assert.Equal(t, "slow", msg.RequestID)
	assert.Equal(t, ErrorCodeTimeout, decodeError(t, msg).Code)
}
