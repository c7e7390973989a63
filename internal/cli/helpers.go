package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/NikitaCOEUR/pylambda/internal/awsclient"
	"github.com/NikitaCOEUR/pylambda/internal/config"
	"github.com/NikitaCOEUR/pylambda/internal/image"
	"github.com/NikitaCOEUR/pylambda/internal/logger"
	"github.com/NikitaCOEUR/pylambda/internal/runner"
	"github.com/NikitaCOEUR/pylambda/internal/trace"
)

// Factories for the external dependencies, replaced in tests
var (
	newClients = awsclient.New
	newDocker  = image.NewDockerClient
	newRunner  = func(log *logger.Logger) runner.Runner { return runner.New(log) }
)

// Globals holds the flags shared by every command
type Globals struct {
	// Src is the project directory, the current directory when empty
	Src        string
	ConfigFile string
	Profile    string
	LogLevel   string
	// Out receives command output, stdout when nil
	Out io.Writer
}

func (g Globals) dir() string {
	if g.Src == "" {
		return "."
	}
	return g.Src
}

func (g Globals) output() io.Writer {
	if g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

func (g Globals) logger() *logger.Logger {
	return logger.New(g.LogLevel, os.Stderr)
}

func (g Globals) configPath() string {
	name := g.ConfigFile
	if name == "" {
		name = config.DefaultConfigName
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(g.dir(), name)
}

// loadConfig loads the project config with the profile override applied
func (g Globals) loadConfig() (*config.Config, error) {
	return config.New().WithProfile(g.Profile).LoadProject(g.dir(), g.ConfigFile)
}

// setup loads the config and creates the logger every command needs
func (g Globals) setup() (*config.Config, *logger.Logger, error) {
	log := g.logger()
	if trace.IsEnabled() {
		log.Debug().Str("file", os.Getenv(trace.EnvVar)).Msg("Recording runtime trace")
	}
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log.Debug().Str("config", cfg.Path).Str("function", cfg.FunctionName).Msg("Loaded configuration")
	return cfg, log, nil
}

func (g Globals) clients(ctx context.Context, cfg *config.Config) (*awsclient.Clients, error) {
	return newClients(ctx, cfg)
}
