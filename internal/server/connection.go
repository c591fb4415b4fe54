package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/cointie/internal/coin"
	"github.com/lox/cointie/internal/randutil"
	"github.com/lox/cointie/internal/simulator"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	sendBuffer = 256
)

// Connection represents a WebSocket connection to a client. Each connection
// runs at most one simulation at a time.
type Connection struct {
	conn      *websocket.Conn
	send      chan *Message
	server    *Server
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu        sync.Mutex
	runCancel context.CancelFunc
	runs      sync.WaitGroup
}

// NewConnection creates a new connection wrapper
func NewConnection(conn *websocket.Conn, server *Server) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:   conn,
		send:   make(chan *Message, sendBuffer),
		server: server,
		logger: server.logger.WithPrefix("conn"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Serve handles the connection until the client goes away
func (c *Connection) Serve() {
	go c.writePump()
	c.readPump()

	c.cancelRun()
	c.runs.Wait()
	_ = c.Close()
}

// Close closes the connection
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

// readPump handles incoming messages from the client
func (c *Connection) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}
		c.handleMessage(&msg)
	}
}

// writePump sends queued messages and keeps the connection alive
func (c *Connection) writePump() {
	ticker := c.server.clock.NewTicker(pingPeriod, "conn", "ping")
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Debug("Write failed", "error", err)
				_ = c.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}

		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (c *Connection) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeRun:
		var req RunRequest
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				c.sendError(msg.RequestID, ErrorCodeBadMessage, "invalid run request: "+err.Error())
				return
			}
		}
		c.startRun(msg.RequestID, req)

	case MessageTypeCancel:
		if !c.cancelRun() {
			c.sendError(msg.RequestID, ErrorCodeBadMessage, "no run in progress")
		}

	default:
		c.sendError(msg.RequestID, ErrorCodeBadMessage, "unknown message type: "+string(msg.Type))
	}
}

func (c *Connection) startRun(requestID string, req RunRequest) {
	if err := req.checkLimits(); err != nil {
		c.sendError(requestID, ErrorCodeInvalidArgument, err.Error())
		return
	}

	c.mu.Lock()
	if c.runCancel != nil {
		c.mu.Unlock()
		c.sendError(requestID, ErrorCodeBusy, "a run is already in progress")
		return
	}

	lastPercent := -1
	cfg := c.server.simulationConfig(req)
	cfg.OnProgress = func(p simulator.Progress) {
		// At most one progress message per percent
		percent := int(p.Fraction() * 100)
		if percent == lastPercent {
			return
		}
		lastPercent = percent
		c.trySend(requestID, MessageTypeProgress, p)
	}

	sim := simulator.New(cfg)
	if err := sim.Validate(); err != nil {
		c.mu.Unlock()
		c.sendError(requestID, ErrorCodeInvalidArgument, err.Error())
		return
	}

	runCtx, cancel := context.WithCancel(c.ctx)
	c.runCancel = cancel
	c.mu.Unlock()

	var timedOut atomic.Bool
	timer := c.server.clock.AfterFunc(c.server.maxRunTime, func() {
		timedOut.Store(true)
		cancel()
	}, "run", "timeout")

	c.logger.Info("Run started", "requestId", requestID, "trials", cfg.Trials, "flips", cfg.FlipsPerPlayer, "seed", cfg.Seed)

	c.runs.Add(1)
	go func() {
		defer c.runs.Done()

		result, err := sim.Run(runCtx)
		timer.Stop()
		c.finishRun()

		switch {
		case err == nil:
			c.record(result)
			c.sendMessage(requestID, MessageTypeResult, result)
		case timedOut.Load():
			c.logger.Warn("Run exceeded max run time", "requestId", requestID, "limit", c.server.maxRunTime)
			c.sendError(requestID, ErrorCodeTimeout, "run exceeded max run time of "+c.server.maxRunTime.String())
		case errors.Is(err, context.Canceled):
			c.logger.Info("Run cancelled", "requestId", requestID)
			c.sendMessage(requestID, MessageTypeCancelled, nil)
		case errors.Is(err, coin.ErrInvalidArgument):
			c.sendError(requestID, ErrorCodeInvalidArgument, err.Error())
		default:
			c.logger.Error("Run failed", "requestId", requestID, "error", err)
			c.sendError(requestID, ErrorCodeInternal, err.Error())
		}
	}()
}

// cancelRun stops the active run, reporting whether there was one
func (c *Connection) cancelRun() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runCancel == nil {
		return false
	}
	c.runCancel()
	return true
}

func (c *Connection) finishRun() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runCancel != nil {
		c.runCancel()
		c.runCancel = nil
	}
}

func (c *Connection) record(result *simulator.Result) {
	if c.server.recorder == nil {
		return
	}
	if err := c.server.recorder.Record(c.ctx, result); err != nil {
		c.logger.Error("Failed to record run", "id", result.ID, "error", err)
	}
}

func (c *Connection) newMessage(requestID string, t MessageType, data any) *Message {
	msg, err := NewMessage(t, data, c.server.clock.Now())
	if err != nil {
		c.logger.Error("Failed to create message", "type", t, "error", err)
		return nil
	}
	msg.RequestID = requestID
	return msg
}

// sendMessage queues a message, waiting for room unless the connection closes
func (c *Connection) sendMessage(requestID string, t MessageType, data any) {
	msg := c.newMessage(requestID, t, data)
	if msg == nil {
		return
	}
	select {
	case c.send <- msg:
	case <-c.ctx.Done():
	}
}

// trySend queues a message only if the buffer has room
func (c *Connection) trySend(requestID string, t MessageType, data any) {
	msg := c.newMessage(requestID, t, data)
	if msg == nil {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.logger.Debug("Send buffer full, dropping message", "type", t)
	}
}

func (c *Connection) sendError(requestID, code, message string) {
	c.sendMessage(requestID, MessageTypeError, ErrorData{Code: code, Message: message})
}

func (s *Server) simulationConfig(req RunRequest) simulator.Config {
	trials := req.Trials
	if trials == 0 {
		trials = coin.N
	}
	flips := req.FlipsPerPlayer
	if flips == 0 {
		flips = coin.N
	}
	workers := req.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > s.maxWorkers {
		workers = s.maxWorkers
	}

	return simulator.Config{
		Trials:         trials,
		FlipsPerPlayer: flips,
		Seed:           randutil.Seed(req.Seed, s.clock),
		Workers:        workers,
		BatchSize:      req.BatchSize,
		Logger:         s.logger.WithPrefix("run"),
		Clock:          s.clock,
	}
}
