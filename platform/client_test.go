// SPDX-License-Identifier: GPL-3.0-or-later

package platform_test

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rbmk-project/censordetect/errclass"
	"github.com/rbmk-project/censordetect/model"
	"github.com/rbmk-project/censordetect/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// closedPortURL returns an URL where nobody is listening.
func closedPortURL(t *testing.T) string {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())
	return "http://" + addr + "/"
}

func TestClientSend(t *testing.T) {
	var (
		mu       sync.Mutex
		gotHost  string
		gotToken string
		gotExtra string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotHost = r.Host
		gotToken = r.Header.Get("X-Token")
		gotExtra = r.Header.Get("X-Extra")
		mu.Unlock()
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	t.Run("hooks observe and modify the request", func(t *testing.T) {
		client := &platform.Client{}
		URL := srv.URL + "/index"

		var preSendID string
		unregisterPreSend := client.OnBeforeSendHeaders([]string{URL}, func(ev *model.SendHeadersEvent) {
			preSendID = ev.RequestID
			ev.Header.Del("X-Token")
			ev.Header.Set("Host", "blocked.example")
			ev.Header.Set("X-Extra", "1")
		})
		var outcome *model.OutcomeEvent
		unregisterCompleted := client.OnCompleted([]string{URL}, func(ev *model.OutcomeEvent) {
			copied := *ev
			outcome = &copied
		})
		unregisterOther := client.OnCompleted([]string{"http://other.example/"}, func(ev *model.OutcomeEvent) {
			t.Error("hook registered for another URL was invoked")
		})
		assert.Equal(t, 3, client.HookCount())

		resp, err := client.Send(context.Background(), &model.Request{
			URL:    URL,
			Method: http.MethodGet,
			Header: http.Header{"X-Token": {"secret"}},
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, []byte("hello"), resp.Body)

		mu.Lock()
		assert.Equal(t, "blocked.example", gotHost)
		assert.Equal(t, "", gotToken)
		assert.Equal(t, "1", gotExtra)
		mu.Unlock()

		require.NotNil(t, outcome)
		assert.Equal(t, preSendID, outcome.RequestID)
		assert.Equal(t, http.StatusOK, outcome.StatusCode)
		assert.Equal(t, "127.0.0.1", outcome.IP)
		assert.Empty(t, outcome.Error)

		unregisterPreSend()
		unregisterCompleted()
		unregisterOther()
		unregisterOther()
		assert.Equal(t, 0, client.HookCount())
	})

	t.Run("request identifiers are unique", func(t *testing.T) {
		client := &platform.Client{}
		var ids []string
		unregister := client.OnBeforeSendHeaders(nil, func(ev *model.SendHeadersEvent) {
			ids = append(ids, ev.RequestID)
		})
		defer unregister()
		for range 3 {
			_, err := client.Send(context.Background(), &model.Request{URL: srv.URL})
			require.NoError(t, err)
		}
		assert.Equal(t, []string{"1", "2", "3"}, ids)
	})

	t.Run("body too large", func(t *testing.T) {
		client := &platform.Client{MaxBodySize: 2}
		_, err := client.Send(context.Background(), &model.Request{URL: srv.URL})
		assert.Error(t, err)
	})

	t.Run("connection refused", func(t *testing.T) {
		var buf bytes.Buffer
		client := &platform.Client{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
		URL := closedPortURL(t)

		var outcome *model.OutcomeEvent
		unregister := client.OnErrorOccurred([]string{URL}, func(ev *model.OutcomeEvent) {
			copied := *ev
			outcome = &copied
		})
		defer unregister()

		resp, err := client.Send(context.Background(), &model.Request{URL: URL, Method: http.MethodHead})
		assert.Nil(t, resp)
		assert.Error(t, err)
		require.NotNil(t, outcome)
		assert.Equal(t, errclass.ECONNREFUSED, outcome.Error)
		assert.Equal(t, 0, outcome.StatusCode)
		assert.Contains(t, buf.String(), `"msg":"httpRoundTripDone"`)
	})
}

func TestClientOnConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	client := &platform.Client{
		TimeNow: func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
	}
	URL := closedPortURL(t)

	failures, stopFailures := client.OnConnectionFailure(
		[]model.EventKind{model.EventErrorOccurred}, nil)
	filtered, stopFiltered := client.OnConnectionFailure(
		[]model.EventKind{model.EventErrorOccurred, model.EventCompleted},
		func(URL string) bool { return URL == srv.URL })

	_, err := client.Send(context.Background(), &model.Request{URL: URL, Origin: "censordetect"})
	require.Error(t, err)
	_, err = client.Send(context.Background(), &model.Request{URL: srv.URL})
	require.NoError(t, err)

	ev := <-failures
	assert.Equal(t, model.EventErrorOccurred, ev.Kind)
	assert.Equal(t, URL, ev.URL)
	assert.Equal(t, "censordetect", ev.Origin)
	assert.Equal(t, errclass.ECONNREFUSED, ev.Error)
	assert.Equal(t, "1", ev.RequestID)

	ev = <-filtered
	assert.Equal(t, model.EventCompleted, ev.Kind)
	assert.Equal(t, srv.URL, ev.URL)

	stopFailures()
	stopFailures()
	stopFiltered()
	_, open := <-failures
	assert.False(t, open)
	_, open = <-filtered
	assert.False(t, open)
}

func TestClientOpenSecureSocket(t *testing.T) {
	t.Run("handshake failure means the socket opened", func(t *testing.T) {
		srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		defer srv.Close()
		host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
		require.NoError(t, err)

		client := &platform.Client{SecureSocketPort: port}
		err = client.OpenSecureSocket(context.Background(), host)
		require.Error(t, err)
		assert.NotEqual(t, errclass.ETIMEDOUT, errclass.New(err))
	})

	t.Run("mocked dialer timing out", func(t *testing.T) {
		client := &platform.Client{}
		client.Network = newBlockingNetwork()
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err := client.OpenSecureSocket(ctx, "10.0.0.1")
		assert.Equal(t, errclass.ETIMEDOUT, errclass.New(err))
	})
}
