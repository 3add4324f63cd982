// SPDX-License-Identifier: GPL-3.0-or-later

package netcore

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fixedTime is the time returned by the TimeNow func used in tests.
var fixedTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// newTestLogger returns a JSON logger writing into a buffer without
// the time key, so that log lines are reproducible.
func newTestLogger() (*bytes.Buffer, *slog.Logger) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	}))
	return &buf, logger
}

// parseLogs parses the JSON log lines inside the buffer.
func parseLogs(t *testing.T, buf *bytes.Buffer) []map[string]any {
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}
