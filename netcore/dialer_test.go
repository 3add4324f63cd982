// SPDX-License-Identifier: GPL-3.0-or-later

package netcore

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/rbmk-project/common/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetwork_DialContext(t *testing.T) {
	t.Run("lookup failure", func(t *testing.T) {
		expectedErr := errors.New("mocked lookup error")
		nx := &Network{
			LookupHostFunc: func(ctx context.Context, domain string) ([]string, error) {
				return nil, expectedErr
			},
		}
		conn, err := nx.DialContext(context.Background(), "tcp", "example.com:80")
		assert.ErrorIs(t, err, expectedErr)
		assert.Nil(t, conn)
	})

	t.Run("invalid endpoint", func(t *testing.T) {
		nx := &Network{}
		conn, err := nx.DialContext(context.Background(), "tcp", "example.com")
		assert.Error(t, err)
		assert.Nil(t, conn)
	})

	t.Run("dial failure", func(t *testing.T) {
		expectedErr := errors.New("mocked dial error")
		nx := &Network{
			LookupHostFunc: func(ctx context.Context, domain string) ([]string, error) {
				return []string{"1.2.3.4"}, nil
			},
			DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
				return nil, expectedErr
			},
		}
		conn, err := nx.DialContext(context.Background(), "tcp", "example.com:80")
		assert.ErrorIs(t, err, expectedErr)
		assert.Nil(t, conn)
	})

	t.Run("successful dial with literal address", func(t *testing.T) {
		mockConn := &mocks.Conn{}
		var dialed string
		nx := &Network{
			LookupHostFunc: func(ctx context.Context, domain string) ([]string, error) {
				panic("should not be called")
			},
			DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
				dialed = address
				return mockConn, nil
			},
		}
		conn, err := nx.DialContext(context.Background(), "tcp", "[2001:db8::1]:443")
		require.NoError(t, err)
		assert.Equal(t, mockConn, conn)
		assert.Equal(t, "[2001:db8::1]:443", dialed)
	})

	t.Run("dial timeout is applied", func(t *testing.T) {
		nx := &Network{
			DialContextTimeout: 10 * time.Millisecond,
			DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		}
		conn, err := nx.DialContext(context.Background(), "tcp", "10.0.0.1:80")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Nil(t, conn)
	})
}

func TestNetwork_sequentialDial(t *testing.T) {
	t.Run("empty endpoints list", func(t *testing.T) {
		nx := &Network{}
		conn, err := nx.sequentialDial(context.Background(), "tcp", nx.dialLog)
		assert.ErrorIs(t, err, errNoEndpoints)
		assert.Nil(t, conn)
	})

	t.Run("all endpoints fail", func(t *testing.T) {
		expectedErr1 := errors.New("error 1")
		expectedErr2 := errors.New("error 2")
		dialAttempts := 0
		nx := &Network{
			DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
				dialAttempts++
				if address == "1.1.1.1:80" {
					return nil, expectedErr1
				}
				return nil, expectedErr2
			},
		}
		conn, err := nx.sequentialDial(context.Background(), "tcp", nx.dialLog, "1.1.1.1:80", "2.2.2.2:80")
		assert.Nil(t, conn)
		assert.Equal(t, 2, dialAttempts)
		assert.ErrorIs(t, err, expectedErr1)
		assert.ErrorIs(t, err, expectedErr2)
	})

	t.Run("second endpoint succeeds", func(t *testing.T) {
		mockConn := &mocks.Conn{}
		var attempts []string
		nx := &Network{
			DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
				attempts = append(attempts, address)
				if address == "1.1.1.1:80" {
					return nil, errors.New("first endpoint fails")
				}
				return mockConn, nil
			},
		}
		conn, err := nx.sequentialDial(context.Background(), "tcp", nx.dialLog, "1.1.1.1:80", "2.2.2.2:80")
		require.NoError(t, err)
		assert.Equal(t, mockConn, conn)
		assert.Equal(t, []string{"1.1.1.1:80", "2.2.2.2:80"}, attempts)
	})
}

func TestNetwork_dialLog(t *testing.T) {
	buf, logger := newTestLogger()
	mockConn := &mocks.Conn{
		MockLocalAddr: func() net.Addr {
			return &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 54321}
		},
		MockRemoteAddr: func() net.Addr {
			return &net.TCPAddr{IP: net.ParseIP("1.1.1.1"), Port: 443}
		},
	}
	nx := &Network{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			return mockConn, nil
		},
		Logger:   logger,
		TimeNow:  func() time.Time { return fixedTime },
		WrapConn: WrapConn,
	}

	conn, err := nx.dialLog(context.Background(), "tcp", "1.1.1.1:443")
	require.NoError(t, err)
	assert.IsType(t, &connWrapper{}, conn)

	logs := parseLogs(t, buf)
	require.Len(t, logs, 2)
	assert.Equal(t, map[string]any{
		"level":      "INFO",
		"msg":        "connectStart",
		"protocol":   "tcp",
		"remoteAddr": "1.1.1.1:443",
		"t":          fixedTime.Format(time.RFC3339Nano),
	}, logs[0])
	assert.Equal(t, map[string]any{
		"level":      "INFO",
		"msg":        "connectDone",
		"err":        nil,
		"errClass":   "",
		"localAddr":  "127.0.0.1:54321",
		"protocol":   "tcp",
		"remoteAddr": "1.1.1.1:443",
		"t0":         fixedTime.Format(time.RFC3339Nano),
		"t":          fixedTime.Format(time.RFC3339Nano),
	}, logs[1])
}
