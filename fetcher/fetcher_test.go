// SPDX-License-Identifier: GPL-3.0-or-later

package fetcher_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/rbmk-project/censordetect/errclass"
	"github.com/rbmk-project/censordetect/fetcher"
	"github.com/rbmk-project/censordetect/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcher_Fetch(t *testing.T) {
	t.Run("successful plain fetch", func(t *testing.T) {
		plat := &fakePlatform{respond: func(ctx context.Context, header http.Header) fakeReply {
			return okReply("hello")
		}}
		fx := fetcher.New(plat, "censordetect")

		res := fx.Fetch(context.Background(), "http://example.com/", nil)
		assert.False(t, res.Error)
		assert.False(t, res.TimedOut)
		require.NotNil(t, res.Response)
		assert.Equal(t, "hello", string(res.Response.Body))
		assert.Nil(t, res.Details)
		assert.Empty(t, plat.lastHeader().Get(fetcher.CorrelationHeader))
		assert.Equal(t, []string{"censordetect"}, plat.origins)
		assert.Equal(t, 0, plat.hookCount())
	})

	t.Run("identical concurrent fetches share one send", func(t *testing.T) {
		release := make(chan struct{})
		plat := &fakePlatform{respond: func(ctx context.Context, header http.Header) fakeReply {
			<-release
			return okReply("shared")
		}}
		fx := fetcher.New(plat, "")
		opts := &fetcher.Options{Method: "HEAD", CaptureDetails: true}

		results := make([]*fetcher.Result, 2)
		var wg sync.WaitGroup
		for idx := range results {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				results[idx] = fx.Fetch(context.Background(), "http://example.com/", opts)
			}(idx)
		}
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()

		assert.Equal(t, int64(1), plat.sends.Load())
		require.NotNil(t, results[0].Response)
		require.NotNil(t, results[1].Response)

		// each caller reads its own copy
		results[0].Response.Body[0] = 'S'
		assert.Equal(t, "shared", string(results[1].Response.Body))
	})

	t.Run("different options are not shared", func(t *testing.T) {
		plat := &fakePlatform{respond: func(ctx context.Context, header http.Header) fakeReply {
			return okReply("")
		}}
		fx := fetcher.New(plat, "")
		fx.Fetch(context.Background(), "http://example.com/", &fetcher.Options{Method: "HEAD"})
		fx.Fetch(context.Background(), "http://example.com/", &fetcher.Options{Method: "GET"})
		fx.Fetch(context.Background(), "http://example.com/", &fetcher.Options{
			Method: "HEAD", Header: http.Header{"Host": {"blocked.example"}}})
		fx.Fetch(context.Background(), "http://example.com/", &fetcher.Options{Method: "HEAD"})
		assert.Equal(t, int64(3), plat.sends.Load())
	})

	t.Run("bypassing the cache sends again", func(t *testing.T) {
		plat := &fakePlatform{respond: func(ctx context.Context, header http.Header) fakeReply {
			return okReply("")
		}}
		fx := fetcher.New(plat, "")
		fx.Fetch(context.Background(), "http://example.com/", nil)
		fx.Fetch(context.Background(), "http://example.com/", &fetcher.Options{BypassCache: true})
		assert.Equal(t, int64(2), plat.sends.Load())
	})

	t.Run("headers are substituted before sending", func(t *testing.T) {
		plat := &fakePlatform{respond: func(ctx context.Context, header http.Header) fakeReply {
			return okReply("")
		}}
		fx := fetcher.New(plat, "")
		fx.NewToken = func() string { return "token-1" }

		res := fx.Fetch(context.Background(), "http://foobar.com/", &fetcher.Options{
			Method: "HEAD",
			Header: http.Header{"Host": {"blocked.example"}},
		})
		assert.False(t, res.Error)
		assert.Equal(t, "req-1", res.RequestID)

		wire := plat.lastHeader()
		assert.Empty(t, wire.Get(fetcher.CorrelationHeader))
		assert.Equal(t, "blocked.example", wire.Get("Host"))
		assert.Equal(t, 0, plat.hookCount())
	})

	t.Run("outcome details are captured", func(t *testing.T) {
		plat := &fakePlatform{respond: func(ctx context.Context, header http.Header) fakeReply {
			return fakeReply{code: "net::ERR_CONNECTION_RESET", err: syscall.ECONNRESET}
		}}
		fx := fetcher.New(plat, "")

		res := fx.Fetch(context.Background(), "http://example.com/", &fetcher.Options{CaptureDetails: true})
		assert.True(t, res.Error)
		assert.False(t, res.TimedOut)
		require.NotNil(t, res.Details)
		assert.Equal(t, "net::ERR_CONNECTION_RESET", res.Details.Error)
		assert.Equal(t, errclass.ECONNRESET, res.ErrClass())

		var terr *model.TransportError
		assert.ErrorAs(t, res.Err, &terr)
		assert.Equal(t, 0, plat.hookCount())
	})

	t.Run("timed out capture leaves no hooks", func(t *testing.T) {
		plat := &fakePlatform{respond: func(ctx context.Context, header http.Header) fakeReply {
			<-ctx.Done()
			return fakeReply{err: ctx.Err(), silent: true}
		}}
		fx := fetcher.New(plat, "")

		res := fx.Fetch(context.Background(), "http://example.com/", &fetcher.Options{
			CaptureDetails: true,
			Timeout:        20 * time.Millisecond,
		})
		assert.True(t, res.Error)
		assert.True(t, res.TimedOut)
		assert.ErrorIs(t, res.Err, model.ErrTimeout)
		assert.Nil(t, res.Details)
		assert.Equal(t, errclass.ETIMEDOUT, res.ErrClass())
		assert.Equal(t, 0, plat.completed.len()+plat.errored.len())
		assert.Equal(t, 0, plat.hookCount())
	})

	t.Run("no request identifier means no wait", func(t *testing.T) {
		plat := &fakePlatform{
			skipPreSend: true,
			respond: func(ctx context.Context, header http.Header) fakeReply {
				return okReply("")
			},
		}
		fx := fetcher.New(plat, "")

		t0 := time.Now()
		res := fx.Fetch(context.Background(), "http://example.com/", &fetcher.Options{CaptureDetails: true})
		assert.Less(t, time.Since(t0), time.Second)
		assert.False(t, res.Error)
		assert.Nil(t, res.Details)
		assert.Empty(t, res.RequestID)
		assert.Equal(t, 0, plat.hookCount())
	})

	t.Run("abandoning caller does not stop the request", func(t *testing.T) {
		release := make(chan struct{})
		plat := &fakePlatform{respond: func(ctx context.Context, header http.Header) fakeReply {
			<-release
			return okReply("late")
		}}
		fx := fetcher.New(plat, "")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res := fx.Fetch(ctx, "http://example.com/", nil)
		assert.True(t, res.Error)
		assert.ErrorIs(t, res.Err, context.Canceled)

		close(release)
		res = fx.Fetch(context.Background(), "http://example.com/", nil)
		assert.False(t, res.Error)
		assert.Equal(t, int64(1), plat.sends.Load())
	})
}

func TestFetcher_logging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	plat := &fakePlatform{respond: func(ctx context.Context, header http.Header) fakeReply {
		return fakeReply{err: errors.New("connection refused")}
	}}
	fx := fetcher.New(plat, "")
	fx.Logger = logger

	fx.Fetch(context.Background(), "http://example.com/", &fetcher.Options{Method: "HEAD"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var done map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &done))
	assert.Equal(t, "fetchDone", done["msg"])
	assert.Equal(t, "HEAD", done["httpMethod"])
	assert.Equal(t, "http://example.com/", done["httpUrl"])
	assert.Equal(t, false, done["timedOut"])
}

func TestResult_ErrClass(t *testing.T) {
	tests := []struct {
		name string
		res  *fetcher.Result
		want string
	}{
		{"success", &fetcher.Result{}, ""},
		{"platform code wins", &fetcher.Result{
			Error:   true,
			Err:     &model.TransportError{Class: errclass.EGENERIC, Err: errors.New("x")},
			Details: &model.OutcomeEvent{Error: "NS_ERROR_UNKNOWN_HOST"},
		}, errclass.EDNS_NONAME},
		{"timeout", &fetcher.Result{Error: true, TimedOut: true}, errclass.ETIMEDOUT},
		{"transport error", &fetcher.Result{
			Error: true,
			Err:   &model.TransportError{Class: errclass.ECONNREFUSED, Err: syscall.ECONNREFUSED},
		}, errclass.ECONNREFUSED},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.res.ErrClass())
		})
	}
}
