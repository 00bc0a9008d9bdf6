package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	sendBuffer     = 32
	writeWait      = 5 * time.Second
	maxMessageSize = 64 << 10
)

var (
	errConnClosed   = errors.New("connection closed")
	errWriteTimeout = errors.New("write timeout")
)

// conn wraps a websocket connection. All writes go through a single writer goroutine.
type conn struct {
	id     string
	ws     *websocket.Conn
	out    chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	pending  sync.WaitGroup
	inFlight atomic.Int32
}

func newConn(ws *websocket.Conn) *conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{
		id:     uuid.NewString(),
		ws:     ws,
		out:    make(chan []byte, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
	go c.writeLoop()
	return c
}

func (c *conn) writeLoop() {
	for {
		select {
		case data := <-c.out:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.close()
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("websocket write failed", "conn_id", c.id, "error", err)
				c.close()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// send queues an event for the writer.
func (c *conn) send(event string, data any) error {
	b, err := json.Marshal(outbound{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}

	select {
	case <-c.ctx.Done():
		return errConnClosed
	default:
	}

	timer := time.NewTimer(writeWait)
	defer timer.Stop()
	select {
	case c.out <- b:
		return nil
	case <-timer.C:
		return errWriteTimeout
	case <-c.ctx.Done():
		return errConnClosed
	}
}

// close stops the writer and closes the socket. It is safe to call more than once.
func (c *conn) close() {
	c.once.Do(func() {
		c.cancel()
		c.ws.Close()
	})
}

// goAsync runs fn on its own goroutine and tracks it until it returns.
func (c *conn) goAsync(fn func()) {
	c.inFlight.Add(1)
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		defer c.inFlight.Add(-1)
		fn()
	}()
}

// busy reports whether work started by goAsync is still running.
func (c *conn) busy() bool {
	return c.inFlight.Load() > 0
}

// wait blocks until all work started by goAsync has returned.
func (c *conn) wait() {
	c.pending.Wait()
}
