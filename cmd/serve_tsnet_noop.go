//go:build !tsnet

package cmd

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/nextlevelbuilder/voxroom/internal/config"
)

// initTailscale is a no-op when built without the "tsnet" tag.
// Build with `go build -tags tsnet` to enable the tailnet listener.
func initTailscale(_ context.Context, cfg *config.Config, _ http.Handler) func() {
	if cfg.HTTP.Tailscale {
		slog.Warn("http.tailscale is set but this build has no tsnet support")
	}
	return nil
}
