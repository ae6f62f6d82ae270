package main

import (
	"bookreviews-backend/cmd/reviewscraper-cli/commands"
	"bookreviews-backend/lib/telemetry"
	"bookreviews-backend/lib/util/serviceutil"
	"context"
	"errors"
	"log/slog"
	"os"
	"time"
)

func main() {
	ctx := serviceutil.SignalContext()

	tel, err := telemetry.SetupFromEnv(ctx, "reviewscraper-cli")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to setup telemetry", "err", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tel.Shutdown(shutdownCtx)
	}()

	commands.ExecuteContext(ctx)
}
