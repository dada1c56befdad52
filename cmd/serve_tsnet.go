//go:build tsnet

package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tailscale.com/tsnet"

	"github.com/nextlevelbuilder/voxroom/internal/config"
)

// initTailscale serves the HTTP API on the tailnet as well. Only compiled
// with -tags tsnet.
func initTailscale(ctx context.Context, cfg *config.Config, handler http.Handler) func() {
	hc := cfg.HTTP
	if hc.TSHost == "" {
		slog.Warn("http.tailscale is set but http.ts_hostname is empty; tailnet listener disabled")
		return nil
	}

	srv := &tsnet.Server{
		Hostname: hc.TSHost,
		AuthKey:  hc.TSAuthKey,
	}
	if dir, err := os.UserConfigDir(); err == nil {
		srv.Dir = filepath.Join(dir, "voxroom", "tsnet")
	}

	ln, err := srv.Listen("tcp", ":80")
	if err != nil {
		slog.Warn("Tailscale listener failed to start", "error", err)
		srv.Close()
		return nil
	}
	slog.Info("Tailscale listener started", "hostname", hc.TSHost, "port", ":80")

	httpSrv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Warn("Tailscale HTTP server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	return func() {
		httpSrv.Close()
		ln.Close()
		srv.Close()
		slog.Info("Tailscale listener stopped")
	}
}
