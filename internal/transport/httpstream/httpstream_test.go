package httpstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/batchstream/internal/async"
	"github.com/danmuck/batchstream/internal/procedures"
	"github.com/danmuck/batchstream/internal/protocol/stream"
	"github.com/danmuck/batchstream/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, reg *procedures.Registry) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/stream", Handler(reg, Options{FlushLines: true, Producer: stream.ProducerOptions{OnError: func(error, []any) {}}}))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestHandlerSetsStreamHeaders(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/stream", Handler(procedures.NewBuiltinRegistry(), Options{}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stream?procs=echo&name=edge", nil)
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, "chunked", rec.Header().Get("Transfer-Encoding"))
	require.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	lines := strings.Split(strings.TrimSuffix(rec.Body.String(), "\n"), "\n")
	require.Equal(t, "[", lines[0])
	require.Equal(t, "]", lines[len(lines)-1])
	require.Contains(t, rec.Body.String(), `"name":"edge"`)
}

func TestHandlerRequiresProcedures(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/stream", Handler(procedures.NewBuiltinRegistry(), Options{}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFetchRoundTrip(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv := newTestServer(t, procedures.NewBuiltinRegistry())

	target, err := BatchURL(srv.URL+"/stream", []string{"echo", "clock", "missing"}, map[string]string{
		"count":    "3",
		"interval": "1ms",
	})
	require.NoError(t, err)

	s, err := Fetch(ctx, srv.Client(), target, stream.ConsumerOptions{})
	require.NoError(t, err)

	echo, err := async.Settle(ctx, s.Head()[0])
	require.NoError(t, err)
	require.Equal(t, "3", echo.(map[string]any)["count"])

	ticks, err := async.Settle(ctx, s.Head()[1])
	require.NoError(t, err)
	require.Len(t, ticks, 3)

	_, err = s.Head()[2].(async.Promise).Await(ctx)
	require.ErrorIs(t, err, stream.ErrAsync)

	<-s.Done()
	require.Equal(t, stream.StateClosed, s.State())
	require.Zero(t, s.OpenQueues())
}

func TestFetchUnexpectedStatus(t *testing.T) {
	testlog.Start(t)
	srv := newTestServer(t, procedures.NewBuiltinRegistry())

	_, err := Fetch(context.Background(), srv.Client(), srv.URL+"/stream", stream.ConsumerOptions{})
	require.ErrorIs(t, err, ErrUnexpectedStatus)
}

type hangingProc struct {
	started chan struct{}
	stopped chan error
}

func (h hangingProc) Metadata() procedures.Metadata {
	return procedures.Metadata{ID: "hang", Description: "never completes"}
}

func (h hangingProc) Call(context.Context, map[string]string) (any, error) {
	return async.Generate(func(ctx context.Context, yield func(any) error) error {
		if err := yield("first"); err != nil {
			return err
		}
		close(h.started)
		<-ctx.Done()
		h.stopped <- ctx.Err()
		return ctx.Err()
	}), nil
}

func TestClientCancelAbortsProducer(t *testing.T) {
	testlog.Start(t)
	reg := procedures.NewRegistry()
	proc := hangingProc{started: make(chan struct{}), stopped: make(chan error, 1)}
	require.NoError(t, reg.Register(proc))
	srv := newTestServer(t, reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, err := Fetch(ctx, srv.Client(), srv.URL+"/stream?procs=hang", stream.ConsumerOptions{})
	require.NoError(t, err)

	it := s.Head()[0].(async.Iterable)
	v, ok, err := it.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "first", v)

	<-proc.started
	cancel()

	select {
	case err := <-proc.stopped:
		require.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatalf("producer generator was not cancelled")
	}

	_, _, err = it.Next(context.Background())
	require.ErrorIs(t, err, stream.ErrStreamInterrupted)
}
