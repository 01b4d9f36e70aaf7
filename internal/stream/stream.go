package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024

	// Queued chunks waiting for the socket. Bounds memory during a stall;
	// chunks beyond this are dropped, never buffered unbounded.
	chunkQueueDepth = 32

	// Transcript lines waiting for the consumer.
	updateQueueDepth = 16
)

// ErrTransportClosed indicates the connection is gone or the queue is
// full; the chunk was dropped.
var ErrTransportClosed = errors.New("transport closed")

// Transport forwards encoded chunks to a remote consumer over a persistent
// duplex connection and surfaces whatever the consumer sends back.
type Transport interface {
	Send(chunk []byte) error
	Updates() <-chan string
	Done() <-chan struct{}
	Err() error
	Close() error
}

// Client is the gorilla/websocket Transport. One binary frame per chunk,
// no framing beyond the message boundary.
type Client struct {
	url  string
	log  zerolog.Logger
	conn *websocket.Conn

	chunks  chan []byte
	updates chan string

	done       chan struct{} // closed by Close
	writerDone chan struct{} // closed when the write pump exits
	dead       chan struct{} // closed when either pump fails
	deadOnce   sync.Once
	closeOnce  sync.Once
	wg         sync.WaitGroup

	errMu   sync.Mutex
	lastErr error
}

var _ Transport = (*Client)(nil)

// Dial connects to the streaming endpoint and starts the read/write pumps.
func Dial(ctx context.Context, url string, log zerolog.Logger) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrTransportClosed, url, err)
	}

	c := &Client{
		url:        url,
		log:        log.With().Str("component", "stream").Logger(),
		conn:       conn,
		chunks:     make(chan []byte, chunkQueueDepth),
		updates:    make(chan string, updateQueueDepth),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
		dead:       make(chan struct{}),
	}

	c.wg.Add(2)
	go c.readPump()
	go c.writePump()

	c.log.Info().Str("url", url).Msg("Streaming connection established")
	return c, nil
}

// Send queues one chunk for transmission. Empty chunks are skipped. The
// call never blocks: if the transport is closed or the queue is full the
// chunk is dropped and an error wrapping ErrTransportClosed is returned.
func (c *Client) Send(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	select {
	case <-c.done:
		return fmt.Errorf("%w: send after close", ErrTransportClosed)
	case <-c.dead:
		return fmt.Errorf("%w: connection lost", ErrTransportClosed)
	default:
	}

	select {
	case c.chunks <- chunk:
		return nil
	default:
		return fmt.Errorf("%w: chunk queue full, dropping chunk", ErrTransportClosed)
	}
}

// Updates delivers transcript lines sent back by the consumer. The channel
// closes when the connection ends.
func (c *Client) Updates() <-chan string {
	return c.updates
}

// Done closes when the connection dies underneath us (as opposed to a
// local Close). Streaming-only sessions treat this as fatal.
func (c *Client) Done() <-chan struct{} {
	return c.dead
}

// Err returns the failure that killed the connection, if any.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.lastErr
}

// Close flushes the chunks already queued, sends a close frame, and tears
// the connection down. Chunks still accumulating upstream are not waited
// for. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		<-c.writerDone
		c.conn.Close()
		c.wg.Wait()
		c.log.Info().Str("url", c.url).Msg("Streaming connection closed")
	})
	return nil
}

func (c *Client) fail(err error) {
	c.deadOnce.Do(func() {
		c.errMu.Lock()
		c.lastErr = err
		c.errMu.Unlock()
		close(c.dead)
	})
}

// readPump drains inbound messages and surfaces transcript lines. It owns
// the read side: deadlines and the pong handler live here.
func (c *Client) readPump() {
	defer c.wg.Done()
	defer close(c.updates)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				// Local close; not a transport failure.
			default:
				c.log.Warn().Err(err).Msg("Read failed")
				c.fail(fmt.Errorf("%w: read: %v", ErrTransportClosed, err))
			}
			return
		}

		if msgType != websocket.TextMessage {
			continue
		}

		var msg struct {
			Transcript string `json:"transcript"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Debug().Err(err).Msg("Unparseable message from consumer")
			continue
		}
		if msg.Transcript == "" {
			continue
		}

		select {
		case c.updates <- msg.Transcript:
		default:
			// Consumer lagging; drop the line.
		}
	}
}

// writePump owns all writes: queued chunks, pings, and the final drain +
// close frame. Single writer keeps gorilla happy.
func (c *Client) writePump() {
	defer c.wg.Done()
	defer close(c.writerDone)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case chunk := <-c.chunks:
			if err := c.writeChunk(chunk); err != nil {
				c.log.Warn().Err(err).Msg("Write failed")
				c.fail(fmt.Errorf("%w: write: %v", ErrTransportClosed, err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.fail(fmt.Errorf("%w: ping: %v", ErrTransportClosed, err))
				return
			}
		case <-c.done:
			c.drainAndClose()
			return
		}
	}
}

func (c *Client) writeChunk(chunk []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.BinaryMessage, chunk)
}

// drainAndClose flushes chunks already in the queue, then says goodbye.
func (c *Client) drainAndClose() {
	for {
		select {
		case chunk := <-c.chunks:
			if err := c.writeChunk(chunk); err != nil {
				c.log.Warn().Err(err).Msg("Flush failed")
				return
			}
		default:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
