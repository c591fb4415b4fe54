package server

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lox/cointie/internal/coin"
	"github.com/lox/cointie/internal/simulator"
)

// MessageType identifies a WebSocket message
type MessageType string

const (
	// Client → Server
	MessageTypeRun    MessageType = "run"
	MessageTypeCancel MessageType = "cancel"

	// Server → Client
	MessageTypeProgress  MessageType = "progress"
	MessageTypeResult    MessageType = "result"
	MessageTypeCancelled MessageType = "cancelled"
	MessageTypeError     MessageType = "error"
)

// Error codes sent in ErrorData
const (
	ErrorCodeInvalidArgument = "invalid_argument"
	ErrorCodeBadMessage      = "bad_message"
	ErrorCodeBusy            = "busy"
	ErrorCodeTimeout         = "timeout"
	ErrorCodeInternal        = "internal"
)

// Message represents the base WebSocket message structure
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a new message stamped with the given time
func NewMessage(messageType MessageType, data any, now time.Time) (*Message, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}

	return &Message{
		Type:      messageType,
		Data:      raw,
		Timestamp: now,
	}, nil
}

// Upper bounds on a single RunRequest
const (
	MaxTrials         = 10_000_000
	MaxFlipsPerPlayer = 1_000_000
	MaxBatchSize      = 10_000
)

// RunRequest asks the server to run one simulation. Zero counts fall back to
// the classic N trials of N flips; a nil seed is taken from the clock.
type RunRequest struct {
	Trials         int    `json:"trials,omitempty"`
	FlipsPerPlayer int    `json:"flips_per_player,omitempty"`
	Seed           *int64 `json:"seed,omitempty"`
	Workers        int    `json:"workers,omitempty"`
	BatchSize      int    `json:"batch_size,omitempty"`
}

// checkLimits rejects requests larger than one run may be.
func (r RunRequest) checkLimits() error {
	switch {
	case r.Trials > MaxTrials:
		return fmt.Errorf("%w: trials may not exceed %d, got %d", coin.ErrInvalidArgument, MaxTrials, r.Trials)
	case r.FlipsPerPlayer > MaxFlipsPerPlayer:
		return fmt.Errorf("%w: flips_per_player may not exceed %d, got %d", coin.ErrInvalidArgument, MaxFlipsPerPlayer, r.FlipsPerPlayer)
	case r.BatchSize > MaxBatchSize:
		return fmt.Errorf("%w: batch_size may not exceed %d, got %d", coin.ErrInvalidArgument, MaxBatchSize, r.BatchSize)
	}
	return nil
}

// ProgressData reports a running simulation
type ProgressData = simulator.Progress

// ResultData carries a finished simulation
type ResultData = simulator.Result

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
