// SPDX-License-Identifier: GPL-3.0-or-later

// Command censordetect fetches URLs and, when a fetch fails, detects
// which censorship technique caused the failure.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newCommand(os.Stdout).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
