package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"switchboard/internal/bot"
	discordadapter "switchboard/internal/bot/discord"
	slackadapter "switchboard/internal/bot/slack"
	"switchboard/internal/config"
	"switchboard/internal/db"
	"switchboard/internal/ollama"
	"switchboard/internal/panel"
	"switchboard/internal/store"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Switchboard daemon",
		Long:  "Connects to the configured chat platform, relays messages to Ollama, and serves the operator panel.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "switchboard.yaml", "path to Switchboard config file")
	return cmd
}

// loadConfig reads the config file, falling back to built-in defaults
// when the file does not exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if os.IsNotExist(err) || os.IsNotExist(unwrapAll(err)) {
		return config.Parse(nil)
	}
	return nil, err
}

func unwrapAll(err error) error {
	for {
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		err = u.Unwrap()
	}
}

func runServe(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	token, err := config.LoadToken(cfg.TokenFile)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return err
	}

	// The audit database is best-effort; the bot runs without it.
	var gormDB *gorm.DB
	if dir := filepath.Dir(cfg.Audit.DSN); cfg.Audit.Driver == "sqlite" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Printf("serve: create audit dir: %v", err)
		}
	}
	gormDB, err = db.Connect(cfg.Audit.Driver, cfg.Audit.DSN)
	if err != nil {
		log.Printf("serve: audit database unavailable: %v", err)
		gormDB = nil
	} else if err := db.AutoMigrate(gormDB); err != nil {
		return fmt.Errorf("serve: migrate audit database: %w", err)
	}

	inference := ollama.NewClient(ollama.ClientOpts{
		BaseURL: cfg.Ollama.URL,
		Timeout: cfg.OllamaTimeout(),
	})
	cache := &bot.ModelCache{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup := &supervisor{
		baseCtx: ctx,
		out:     out,
		build: func() (*bot.Daemon, error) {
			pager := bot.NewPagerStore(cfg.PagerLifetime())
			adapter, err := createAdapter(cfg, token, pager)
			if err != nil {
				return nil, err
			}
			return bot.NewDaemon(bot.DaemonOpts{
				Store:        st,
				Adapter:      adapter,
				Inference:    inference,
				DB:           gormDB,
				Pager:        pager,
				Cache:        cache,
				Prefix:       cfg.CommandPrefix,
				RefreshCron:  cfg.Ollama.RefreshCron,
				RandomMinLen: cfg.RandomMinLen,
				Out:          out,
			})
		},
	}

	if err := sup.StartBot(); err != nil {
		return err
	}

	// Handle OS signals for graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if cfg.Panel.Enabled {
		go func() {
			err := panel.Start(ctx, panel.StartOpts{
				Store:      st,
				DB:         gormDB,
				Cache:      cache,
				Controller: sup,
				Port:       cfg.Panel.Port,
				Out:        out,
			})
			if err != nil {
				log.Printf("serve: panel: %v", err)
			}
		}()
	}

	<-ctx.Done()
	sup.wait()
	return nil
}

// createAdapter builds a platform adapter from the config.
func createAdapter(cfg *config.Config, token string, pager *bot.PagerStore) (bot.Adapter, error) {
	switch cfg.Platform {
	case "discord":
		return discordadapter.New(discordadapter.AdapterOpts{
			BotToken: token,
			Pager:    pager,
		})
	case "slack":
		return slackadapter.New(slackadapter.AdapterOpts{
			AppToken: cfg.SlackAppToken,
			BotToken: token,
		})
	default:
		return nil, fmt.Errorf("serve: unsupported platform %q", cfg.Platform)
	}
}

// supervisor owns the daemon's run loop and implements panel.Controller.
// Stop cancels the loop and waits for it to exit; Start builds a fresh
// daemon, so a restart reconnects the platform adapter inside the same
// process.
type supervisor struct {
	baseCtx context.Context
	build   func() (*bot.Daemon, error)
	out     io.Writer

	mu      sync.Mutex
	daemon  *bot.Daemon
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// StartBot launches the daemon run loop.
func (s *supervisor) StartBot() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("bot is already running")
	}

	d, err := s.build()
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(s.baseCtx)
	done := make(chan struct{})
	s.daemon = d
	s.running = true
	s.cancel = cancel
	s.done = done

	go func() {
		if err := d.Run(runCtx); err != nil {
			log.Printf("serve: daemon: %v", err)
		}
		cancel()
		close(done)
		s.mu.Lock()
		s.running = false
		s.daemon = nil
		s.mu.Unlock()
	}()
	return nil
}

// StopBot cancels the run loop and waits for it to exit.
func (s *supervisor) StopBot() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("bot is not running")
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	return nil
}

// RestartBot performs a structured stop and start.
func (s *supervisor) RestartBot() error {
	if err := s.StopBot(); err != nil {
		log.Printf("serve: restart: %v", err)
	}
	return s.StartBot()
}

// BotStatus reports the daemon's current state.
func (s *supervisor) BotStatus() panel.BotStatus {
	s.mu.Lock()
	d, running := s.daemon, s.running
	s.mu.Unlock()

	status := panel.BotStatus{Running: running}
	if d != nil {
		status.Started = d.Started()
		status.Busy = d.Busy()
	}
	return status
}

// wait blocks until a running daemon loop has exited.
func (s *supervisor) wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}
