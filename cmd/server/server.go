package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/martinsuchenak/gestion-impacts/internal/api"
	"github.com/martinsuchenak/gestion-impacts/internal/auth"
	"github.com/martinsuchenak/gestion-impacts/internal/config"
	"github.com/martinsuchenak/gestion-impacts/internal/log"
	"github.com/martinsuchenak/gestion-impacts/internal/mcp"
	"github.com/martinsuchenak/gestion-impacts/internal/storage"
	"github.com/martinsuchenak/gestion-impacts/internal/ui"
	"github.com/martinsuchenak/gestion-impacts/internal/worker"
	"github.com/paularlott/cli"
)

const shutdownTimeout = 10 * time.Second

// ServerConfig holds configuration for running the server
type ServerConfig struct {
	Config     *config.Config
	Store      storage.Storage
	Auth       *auth.Authenticator
	APIHandler *api.Handler
	UI         *ui.UI
	MCPServer  *mcp.Server
	Scheduler  *worker.Scheduler
}

// NewHandler builds the routes and the middleware chain
func NewHandler(cfg *ServerConfig) http.Handler {
	mux := http.NewServeMux()

	// REST API
	cfg.APIHandler.RegisterRoutes(mux)

	// MCP endpoint, authenticated by the MCP server itself
	mux.HandleFunc("/mcp", cfg.MCPServer.GetHTTPHandler())

	// Web views
	cfg.UI.RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = cfg.Auth.Middleware(handler)
	handler = api.SecurityHeadersMiddleware(handler)
	handler = api.LoggingMiddleware(handler)
	handler = api.RequestIDMiddleware(handler)
	return handler
}

// RunServer serves until SIGINT or SIGTERM
func RunServer(ctx context.Context, cfg *ServerConfig) error {
	server := &http.Server{
		Addr:              cfg.Config.ListenAddr,
		Handler:           NewHandler(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Scheduler != nil {
		cfg.Scheduler.Start()
		defer cfg.Scheduler.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	log.Info("Starting gestion-impacts server", "addr", cfg.Config.ListenAddr)
	log.Info("Web UI available", "url", "http://localhost"+cfg.Config.ListenAddr+"/plugins/gestion-impacts/impacts/")
	log.Info("API available", "url", "http://localhost"+cfg.Config.ListenAddr+api.BasePath)
	log.Info("MCP available", "url", "http://localhost"+cfg.Config.ListenAddr+"/mcp")
	if cfg.Config.IsAPIAuthEnabled() {
		log.Info("API authentication enabled", "tokens", len(cfg.Config.Tokens))
	} else {
		log.Warn("API authentication disabled, every request runs with full rights")
	}
	cfg.MCPServer.LogStartup()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", "error", err)
			return err
		}
	case <-ctx.Done():
		log.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("Shutdown error", "error", err)
			return err
		}
	}

	log.Info("Server stopped")
	return nil
}

// mcpAuthenticator uses the dedicated MCP token when one is set, otherwise
// the API credentials.
func mcpAuthenticator(cfg *config.Config, apiAuth *auth.Authenticator) *auth.Authenticator {
	if cfg.IsMCPEnabled() {
		return auth.New(&config.Config{APIToken: cfg.MCPToken})
	}
	return apiAuth
}

func Command() *cli.Command {
	return &cli.Command{
		Name:        "server",
		Usage:       "Start the gestion-impacts server",
		Description: "Start the HTTP server with web UI, REST API, and MCP endpoints",
		Flags:       config.GetFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(cmd)
			if err != nil {
				log.Error("Failed to load configuration", "error", err)
				return err
			}
			log.Info("Configuration loaded", "source", cfg.String(), "data_dir", cfg.DataDir, "listen_addr", cfg.ListenAddr)

			store, err := storage.NewSQLiteStorage(cfg.DataDir)
			if err != nil {
				log.Error("Failed to initialize storage", "error", err)
				return err
			}
			defer store.Close()
			log.Info("Storage initialized", "backend", "SQLite", "path", cfg.DataDir)

			authenticator := auth.New(cfg)

			webUI, err := ui.New(store)
			if err != nil {
				log.Error("Failed to load web views", "error", err)
				return err
			}

			pool := worker.NewPool(cfg.Workers)
			pool.Start()
			defer pool.Stop()

			var scheduler *worker.Scheduler
			if cfg.ReconcileEnabled() {
				scheduler = worker.NewScheduler(pool)
				if err := scheduler.Register(worker.ReconcileTaskName, cfg.ReconcileSchedule, worker.ReconcileTask(store)); err != nil {
					return err
				}
			} else {
				log.Info("VRF reconcile job disabled")
			}

			return RunServer(ctx, &ServerConfig{
				Config:     cfg,
				Store:      store,
				Auth:       authenticator,
				APIHandler: api.NewHandler(store).WithPageSize(cfg.PageSize, cfg.MaxPageSize),
				UI:         webUI.WithPageSize(cfg.PageSize),
				MCPServer:  mcp.NewServer(store, mcpAuthenticator(cfg, authenticator)),
				Scheduler:  scheduler,
			})
		},
	}
}
