// cmd/tradermind/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/44dummies/tradermind-server-sub000/application/bootstrap"
	"github.com/44dummies/tradermind-server-sub000/internal/infrastructure/config"
	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	var (
		env         string
		cfgPath     string
		logLevel    string
		market      string
		autoStart   bool
		showVersion bool
	)

	flag.StringVar(&env, "env", "dev", "environment (dev/prod), selects configs/<env>/.env")
	flag.StringVar(&cfgPath, "config", "", "path to a .env file (overrides -env)")
	flag.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	flag.StringVar(&market, "market", "", "tick source: websocket or mock (overrides MARKET_SOURCE)")
	flag.BoolVar(&autoStart, "auto-start", false, "start the bot on launch when a session is running")
	flag.BoolVar(&showVersion, "version", false, "print the version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("tradermind %s (built %s)\n", version, buildTime)
		return
	}

	cfg, err := config.LoadConfig(resolveConfigFile(env, cfgPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if logLevel != "" {
		cfg.Logging.Level = strings.ToUpper(logLevel)
	}
	if cfg.Version == "" || cfg.Version == "1.0.0" {
		cfg.Version = version
	}

	if err := initLogger(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	cfg.PrintSummary()
	gin.SetMode(cfg.HTTP.Mode)

	builder := bootstrap.NewAppBuilder().
		WithConfig(cfg).
		WithOption(bootstrap.WithMarketSource(market))
	if autoStart {
		builder = builder.WithOption(bootstrap.WithAutoStart(true))
	}

	app, err := builder.Build()
	if err != nil {
		logger.Error("❌ Failed to build application: %v", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		logger.Error("❌ Application failed: %v", err)
		logger.Close()
		os.Exit(1)
	}
}

// resolveConfigFile prefers -config, then configs/<env>/.env, then ./.env.
// An empty result means environment variables only.
func resolveConfigFile(env, explicit string) string {
	if explicit != "" {
		return explicit
	}
	candidates := []string{
		filepath.Join("configs", env, ".env"),
		".env",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func initLogger(cfg *config.Config) error {
	debug := cfg.IsDev() || cfg.Logging.Level == "DEBUG"
	if cfg.Logging.File != "" {
		err := logger.InitGlobal(cfg.Logging.File, cfg.Logging.Level, debug)
		if err == nil {
			return nil
		}
		fmt.Fprintf(os.Stderr, "⚠️  File logger unavailable (%v), falling back to console\n", err)
	}
	return logger.InitGlobal("", cfg.Logging.Level, debug)
}
