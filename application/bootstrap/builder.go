// application/bootstrap/builder.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/44dummies/tradermind-server-sub000/internal/infrastructure/config"
	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

// AppBuilder assembles an Application from configuration and options.
type AppBuilder struct {
	config     *config.Config
	configPath string
	options    []AppOption
}

type AppOption func(*Application) error

func NewAppBuilder() *AppBuilder {
	return &AppBuilder{}
}

func (b *AppBuilder) WithConfig(cfg *config.Config) *AppBuilder {
	b.config = cfg
	return b
}

// WithConfigFile loads .env-style configuration at Build time.
func (b *AppBuilder) WithConfigFile(path string) *AppBuilder {
	b.configPath = path
	return b
}

func (b *AppBuilder) WithOption(option AppOption) *AppBuilder {
	b.options = append(b.options, option)
	return b
}

func (b *AppBuilder) Build() (*Application, error) {
	if b.config == nil {
		cfg, err := config.LoadConfig(b.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		b.config = cfg
	}

	app, err := NewApplication(b.config)
	if err != nil {
		return nil, err
	}
	for _, option := range b.options {
		if err := option(app); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	return app, nil
}

// WithAutoStart starts the bot on launch when a session is running.
func WithAutoStart(enabled bool) AppOption {
	return func(app *Application) error {
		app.config.Bot.AutoStart = enabled
		if enabled {
			logger.Info("🤖 Bot auto-start enabled")
		}
		return nil
	}
}

func WithHTTPPort(port int) AppOption {
	return func(app *Application) error {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("invalid HTTP port %d", port)
		}
		app.config.HTTP.Port = port
		return nil
	}
}

func WithMarketSource(source string) AppOption {
	return func(app *Application) error {
		switch source {
		case "":
			return nil
		case "websocket", "mock":
			app.config.Market.Source = source
			return nil
		default:
			return fmt.Errorf("unknown market source %q", source)
		}
	}
}

func WithShutdownTimeout(d time.Duration) AppOption {
	return func(app *Application) error {
		if d > 0 {
			app.shutdownTimeout = d
		}
		return nil
	}
}
