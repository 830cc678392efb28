package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/caasmo/hookrelay/config"
)

// Daemon defines the contract for background components managed
// by the server's lifecycle (Start/Stop).
type Daemon interface {
	Name() string // For logging/identification
	Start() error
	Stop(ctx context.Context) error
}

type Server struct {
	configProvider *config.Provider
	handler        http.Handler
	logger         *slog.Logger
	daemons        []Daemon

	// reload is invoked on SIGHUP to re-read configuration from disk and
	// swap it into configProvider. Nil disables reload-on-SIGHUP.
	reload func() error

	// exitFunc is called at the end of Run with the process exit code;
	// defaults to os.Exit but is overridable so tests can observe the
	// outcome without killing the test binary.
	exitFunc func(code int)
}

// NewServer constructor - daemons are added via AddDaemon.
func NewServer(provider *config.Provider, handler http.Handler, logger *slog.Logger, reload func() error) *Server {
	return &Server{
		configProvider: provider,
		handler:        handler,
		logger:         logger,
		daemons:        make([]Daemon, 0),
		reload:         reload,
		exitFunc:       os.Exit,
	}
}

// AddDaemon adds a daemon whose lifecycle will be managed by the server.
func (s *Server) AddDaemon(daemon Daemon) {
	if daemon == nil {
		s.logger.Warn("Attempted to add a nil daemon")
		return
	}
	s.logger.Info("Adding daemon", "daemon_name", daemon.Name())
	s.daemons = append(s.daemons, daemon)
}

func (s *Server) handleSIGHUP() {
	s.logger.Info("Received SIGHUP signal - attempting to reload configuration")
	if s.reload == nil {
		return
	}
	if err := s.reload(); err != nil {
		s.logger.Error("Configuration reload failed, keeping previous configuration", "error", err)
		return
	}
	s.logger.Info("Configuration reloaded")
}

// Run starts the HTTP server and every registered daemon, then blocks until
// a termination signal or a fatal server/daemon error, at which point it
// shuts everything down gracefully and exits the process.
func (s *Server) Run() {
	serverCfg := s.configProvider.Get().Server
	s.logServerConfig(&serverCfg)

	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           s.handler,
		ReadTimeout:       serverCfg.ReadTimeout.Duration,
		ReadHeaderTimeout: serverCfg.ReadHeaderTimeout.Duration,
		WriteTimeout:      serverCfg.WriteTimeout.Duration,
		IdleTimeout:       serverCfg.IdleTimeout.Duration,
	}

	serverError := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "addr", serverCfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server error", "err", err)
			serverError <- err
		}
	}()

	s.logger.Info("Starting daemons sequentially...")
	var startupFailed bool
	for _, daemon := range s.daemons {
		s.logger.Info("Starting daemon", "daemon_name", daemon.Name())
		if err := daemon.Start(); err != nil {
			s.logger.Error("Failed to start daemon, initiating shutdown",
				"daemon_name", daemon.Name(),
				"error", err)
			serverError <- fmt.Errorf("daemon %q failed to start: %w", daemon.Name(), err)
			startupFailed = true
			break
		}
		s.logger.Info("Daemon started successfully", "daemon_name", daemon.Name())
	}
	if !startupFailed {
		s.logger.Info("All daemons started successfully.")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGHUP,
	)

	running := true
	for running {
		select {
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGINT, syscall.SIGQUIT:
				s.logger.Info("Received termination signal - gracefully shutting down", "signal", sig)
				running = false
			case syscall.SIGHUP:
				s.handleSIGHUP()
			}
		case err := <-serverError:
			s.logger.Error("Server error - initiating shutdown", "err", err)
			running = false
		}
	}

	signal.Stop(sigChan)
	close(sigChan)

	shutdownTimeout := s.configProvider.Get().Server.ShutdownGracefulTimeout.Duration
	gracefulCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	shutdownGroup, _ := errgroup.WithContext(gracefulCtx)

	shutdownGroup.Go(func() error {
		s.logger.Info("Shutting down main HTTP server")
		if err := srv.Shutdown(gracefulCtx); err != nil {
			s.logger.Error("Main HTTP server shutdown error", "err", err)
			return err
		}
		s.logger.Info("Main HTTP server stopped gracefully")
		return nil
	})

	s.logger.Info("Stopping daemons...")
	for _, d := range s.daemons {
		daemon := d
		shutdownGroup.Go(func() error {
			s.logger.Info("Stopping daemon", "daemon_name", daemon.Name())
			if err := daemon.Stop(gracefulCtx); err != nil {
				s.logger.Error("Error stopping daemon", "daemon_name", daemon.Name(), "error", err)
				return fmt.Errorf("daemon %q failed to stop gracefully: %w", daemon.Name(), err)
			}
			s.logger.Info("Daemon stopped gracefully", "daemon_name", daemon.Name())
			return nil
		})
	}

	if err := shutdownGroup.Wait(); err != nil {
		s.logger.Error("Error during shutdown", "err", err)
		s.exitFunc(1)
		return
	}

	s.logger.Info("All systems stopped gracefully")
	s.exitFunc(0)
}

// logServerConfig logs server configuration with consistent "Server:" prefix
func (s *Server) logServerConfig(cfg *config.Server) {
	s.logger.Info("Server:", "address", cfg.Addr, "protocol", "HTTP")

	s.logger.Info("Server:",
		"readTimeout", cfg.ReadTimeout.Duration,
		"readHeaderTimeout", cfg.ReadHeaderTimeout.Duration,
		"writeTimeout", cfg.WriteTimeout.Duration,
		"idleTimeout", cfg.IdleTimeout.Duration)

	s.logger.Info("Server:", "ShutdownGracefulTimeout", cfg.ShutdownGracefulTimeout.Duration.String())

	if cfg.ClientIpProxyHeader != "" {
		s.logger.Info("Server:", "header", cfg.ClientIpProxyHeader)
	}
}
