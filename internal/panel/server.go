// Package panel serves the operator HTTP API: process status, community
// configuration, the audit feed, and bot lifecycle control. It replaces a
// desktop control surface with a JSON API an operator can curl or front
// with a UI.
package panel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"switchboard/internal/bot"
	"switchboard/internal/store"
)

// Controller drives the bot daemon's lifecycle from the panel. The serve
// command implements it with a supervised run loop; stop and start cancel
// and relaunch the loop inside the same process.
type Controller interface {
	StartBot() error
	StopBot() error
	RestartBot() error
	BotStatus() BotStatus
}

// BotStatus is a point-in-time snapshot of the daemon.
type BotStatus struct {
	Running bool      `json:"running"`
	Started time.Time `json:"started,omitempty"`
	Busy    int       `json:"busy"`
}

// StartOpts holds configuration for the panel server.
type StartOpts struct {
	Store      *store.Store
	DB         *gorm.DB        // optional; enables the audit endpoints
	Cache      *bot.ModelCache // optional; enables the models endpoint
	Controller Controller      // optional; enables lifecycle endpoints
	Port       int
	Out        io.Writer
}

// Start launches the panel HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Store == nil {
		return fmt.Errorf("panel: store is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8472
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	registerRoutes(router, opts)

	addr := fmt.Sprintf(":%d", opts.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Panel running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("panel: %w", err)
	}
	return nil
}
