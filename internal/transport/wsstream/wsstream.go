// Package wsstream carries batch streams over WebSocket, one framed line per
// text message.
package wsstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/danmuck/batchstream/internal/observability"
	"github.com/danmuck/batchstream/internal/procedures"
	"github.com/danmuck/batchstream/internal/protocol/frame"
	"github.com/danmuck/batchstream/internal/protocol/stream"
	"github.com/danmuck/batchstream/internal/transport/httpstream"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const closeGrace = time.Second

// Options configures the WebSocket handler.
type Options struct {
	Producer stream.ProducerOptions
	// AllowedOrigins lists accepted Origin headers. Empty accepts any origin.
	AllowedOrigins []string
}

// Handler upgrades the request and streams the batch named by ?procs=a,b.
// The producer is aborted when the peer goes away.
func Handler(reg *procedures.Registry, opts Options) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 32 * 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return func(c *gin.Context) {
		names := procedures.ParseNames(c.Query(httpstream.QueryProcs))
		if len(names) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": httpstream.ErrNoProcedures.Error()})
			return
		}
		args := httpstream.Args(c.Request.URL.Query())

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Msg("wsstream: upgrade failed")
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()
		go drain(conn, cancel)

		popts := opts.Producer
		if id := observability.RequestID(c); id != "" {
			popts.StreamID = id
		}
		batch := reg.Batch(ctx, names, args)
		err = stream.Produce(ctx, messageWriter{conn: conn}, batch, popts)
		if err != nil && !errors.Is(err, stream.ErrProducerAborted) {
			log.Warn().Str("stream_id", popts.StreamID).Err(err).Msg("wsstream: stream ended early")
			return
		}
		deadline := time.Now().Add(closeGrace)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	}
}

// drain reads until the peer closes so control frames are handled.
func drain(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// messageWriter sends every Write as one text message. frame.Writer writes
// each line with a single call.
type messageWriter struct {
	conn *websocket.Conn
}

func (w messageWriter) Write(b []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Dial connects to a batch stream endpoint and consumes it.
func Dial(ctx context.Context, url string, opts stream.ConsumerOptions) (*stream.Stream, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	limits := opts.Limits
	if limits.MaxLineBytes <= 0 {
		limits = frame.DefaultLimits()
	}
	src := &messageSource{conn: conn, acc: frame.NewAccumulator(limits)}
	return stream.ConsumeLines(ctx, src, conn, opts)
}

// messageSource feeds received messages through an Accumulator so that
// messages need not align with lines.
type messageSource struct {
	conn *websocket.Conn
	acc  *frame.Accumulator
	eof  bool
}

func (m *messageSource) ReadLine() ([]byte, error) {
	for {
		if line, ok := m.acc.Pop(); ok {
			return line, nil
		}
		if m.eof {
			return nil, io.EOF
		}
		_, data, err := m.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.eof = true
				m.acc.Flush()
				continue
			}
			return nil, err
		}
		if err := m.acc.Push(data); err != nil {
			return nil, err
		}
	}
}
