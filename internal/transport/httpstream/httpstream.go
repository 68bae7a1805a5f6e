// Package httpstream serves and fetches batch streams over chunked HTTP.
package httpstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/danmuck/batchstream/internal/observability"
	"github.com/danmuck/batchstream/internal/procedures"
	"github.com/danmuck/batchstream/internal/protocol/stream"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	// QueryProcs names the query parameter holding the call list.
	QueryProcs = "procs"
	maxErrBody = 4 << 10
)

var (
	ErrNoProcedures     = errors.New("httpstream: procs query parameter is required")
	ErrUnexpectedStatus = errors.New("httpstream: unexpected response status")
)

// Options configures the streaming handler.
type Options struct {
	Producer stream.ProducerOptions
	// FlushLines flushes the response after every line.
	FlushLines bool
}

// Handler streams the batch named by ?procs=a,b. Every other query
// parameter is passed to the procedures as an argument. Cancelling the
// request aborts the producer.
func Handler(reg *procedures.Registry, opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		names := procedures.ParseNames(c.Query(QueryProcs))
		if len(names) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": ErrNoProcedures.Error()})
			return
		}
		ctx := c.Request.Context()
		batch := reg.Batch(ctx, names, Args(c.Request.URL.Query()))

		popts := opts.Producer
		if id := observability.RequestID(c); id != "" {
			popts.StreamID = id
		}

		SetStreamHeaders(c.Writer.Header())
		c.Status(http.StatusOK)

		var w io.Writer = c.Writer
		if !opts.FlushLines {
			w = writerOnly{c.Writer}
		}
		n, err := stream.NewProducer(ctx, batch, popts).WriteTo(w)
		switch {
		case err == nil, errors.Is(err, stream.ErrProducerAborted):
		case !c.Writer.Written():
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		default:
			log.Warn().
				Str("stream_id", popts.StreamID).
				Strs("procs", names).
				Int64("bytes", n).
				Err(err).
				Msg("httpstream: stream ended early")
		}
		log.Debug().
			Str("stream_id", popts.StreamID).
			Int64("bytes", n).
			Msg("httpstream: stream served")
	}
}

// SetStreamHeaders applies the response headers of a batch stream.
func SetStreamHeaders(h http.Header) {
	h.Set("Content-Type", "application/json")
	h.Set("Transfer-Encoding", "chunked")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Content-Type-Options", "nosniff")
}

// Args flattens query values into procedure arguments, keeping the first
// value of each key.
func Args(q url.Values) map[string]string {
	args := make(map[string]string, len(q))
	for k, vs := range q {
		if k == QueryProcs || len(vs) == 0 {
			continue
		}
		args[k] = vs[0]
	}
	return args
}

// BatchURL appends the call list and arguments to base.
func BatchURL(base string, names []string, args map[string]string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Set(k, args[k])
	}
	if len(names) > 0 {
		q.Set(QueryProcs, strings.Join(names, ","))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetch issues a GET to rawURL and consumes the response body as a batch
// stream. The body is closed when the stream ends or ctx is cancelled.
func Fetch(ctx context.Context, client *http.Client, rawURL string, opts stream.ConsumerOptions) (*stream.Stream, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		return nil, fmt.Errorf("%w: %s: %s", ErrUnexpectedStatus, resp.Status, body)
	}
	return stream.Consume(ctx, resp.Body, opts)
}

// writerOnly hides the flusher of the wrapped writer.
type writerOnly struct {
	io.Writer
}
