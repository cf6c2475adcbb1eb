// application/bootstrap/app.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/44dummies/tradermind-server-sub000/application/composition"
	"github.com/44dummies/tradermind-server-sub000/application/services/orchestrator"
	"github.com/44dummies/tradermind-server-sub000/internal/infrastructure/config"
	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

const defaultShutdownTimeout = 30 * time.Second

// Application runs the container until a termination signal arrives.
type Application struct {
	config    *config.Config
	container *composition.Container

	ctx    context.Context
	cancel context.CancelFunc

	mu              sync.RWMutex
	running         bool
	startTime       time.Time
	stopChan        chan os.Signal
	shutdownTimeout time.Duration
}

func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Application{
		config:          cfg,
		ctx:             ctx,
		cancel:          cancel,
		stopChan:        make(chan os.Signal, 1),
		shutdownTimeout: defaultShutdownTimeout,
	}, nil
}

// Initialize builds the container. Run calls it when needed.
func (app *Application) Initialize() error {
	if app.container != nil {
		return nil
	}
	c, err := composition.NewContainer(app.ctx, app.config)
	if err != nil {
		return fmt.Errorf("build container: %w", err)
	}
	app.container = c
	return nil
}

func (app *Application) Container() *composition.Container {
	return app.container
}

// Run starts every component and blocks until Stop or SIGINT/SIGTERM.
func (app *Application) Run() error {
	app.mu.Lock()
	if app.running {
		app.mu.Unlock()
		return errors.New("application already running")
	}

	logger.Info("🚀 Starting TraderMind server v%s (%s)", app.config.Version, app.config.Environment)

	if err := app.Initialize(); err != nil {
		app.mu.Unlock()
		return err
	}
	if err := app.start(); err != nil {
		app.mu.Unlock()
		app.stopComponents()
		return err
	}

	app.running = true
	app.startTime = time.Now()
	app.mu.Unlock()

	signal.Notify(app.stopChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(app.stopChan)

	logger.Info("✅ Application running, waiting for shutdown signal")
	<-app.waitForShutdown()
	return nil
}

func (app *Application) start() error {
	c := app.container

	c.Bus.Start()
	if err := c.Broker.Start(app.ctx); err != nil {
		return fmt.Errorf("start broker: %w", err)
	}
	if err := c.Workers.Start(app.ctx); err != nil {
		return fmt.Errorf("start workers: %w", err)
	}
	c.Scheduler.Start()

	if c.API != nil {
		addr := fmt.Sprintf(":%d", app.config.HTTP.Port)
		go func() {
			if err := c.API.Start(addr); err != nil {
				logger.Error("❌ Ops API stopped: %v", err)
				app.Stop()
			}
		}()
	}

	if app.config.Bot.AutoStart {
		err := c.Bot.Start(app.ctx)
		switch {
		case err == nil:
		case errors.Is(err, orchestrator.ErrNoActiveSession):
			logger.Warn("⚠️ Bot auto-start skipped: no running session")
		default:
			logger.Warn("⚠️ Bot auto-start failed: %v", err)
		}
	}
	return nil
}

func (app *Application) waitForShutdown() <-chan struct{} {
	done := make(chan struct{})

	go func() {
		sig := <-app.stopChan
		logger.Info("🛑 Received %v, shutting down...", sig)
		app.shutdownWithTimeout(app.shutdownTimeout)
		close(done)
	}()

	return done
}

func (app *Application) shutdownWithTimeout(timeout time.Duration) {
	logger.Info("⏳ Graceful shutdown (timeout %v)...", timeout)

	shutdownDone := make(chan struct{})
	go func() {
		app.shutdown()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		logger.Info("✅ Graceful shutdown complete")
	case <-time.After(timeout):
		logger.Warn("⚠️ Graceful shutdown timed out after %v", timeout)
	}
}

func (app *Application) shutdown() {
	app.mu.Lock()
	defer app.mu.Unlock()

	if !app.running {
		return
	}
	app.stopComponents()
	app.running = false
	logger.Info("✅ Application stopped, uptime %v", time.Since(app.startTime).Round(time.Second))
}

// stopComponents runs in reverse start order: producers before consumers.
func (app *Application) stopComponents() {
	c := app.container
	if c == nil {
		return
	}

	if c.API != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.API.Shutdown(ctx); err != nil {
			logger.Warn("⚠️ Ops API shutdown: %v", err)
		}
		cancel()
	}
	if err := c.Bot.Shutdown(); err != nil {
		logger.Warn("⚠️ Bot shutdown: %v", err)
	}
	c.Scheduler.Stop()
	if err := c.Workers.Stop(); err != nil {
		logger.Warn("⚠️ Worker shutdown: %v", err)
	}
	if err := c.Broker.Stop(); err != nil {
		logger.Warn("⚠️ Broker shutdown: %v", err)
	}
	app.cancel()
	if err := c.Close(); err != nil {
		logger.Warn("⚠️ Releasing resources: %v", err)
	}
}

// Stop requests shutdown; Run returns once it completes.
func (app *Application) Stop() {
	select {
	case app.stopChan <- syscall.SIGTERM:
	default:
	}
}

func (app *Application) IsRunning() bool {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.running
}

func (app *Application) Status() map[string]interface{} {
	app.mu.RLock()
	defer app.mu.RUnlock()

	status := map[string]interface{}{
		"running":     app.running,
		"environment": app.config.Environment,
		"version":     app.config.Version,
	}
	if app.running {
		status["uptime"] = time.Since(app.startTime).Round(time.Second).String()
		status["start_time"] = app.startTime.Format(time.RFC3339)
	}
	if c := app.container; c != nil {
		status["broker_mode"] = c.Broker.Mode()
		status["bot"] = c.Bot.Status()
		status["workers"] = c.Workers.Stats()
	}
	return status
}
