package cli

import (
	"go.uber.org/zap"

	"github.com/synheart/roomwatch/internal/config"
)

// GlobalOptions are shared flags that apply across commands.
type GlobalOptions struct {
	ConfigFile string
	LogLevel   string
	LogFormat  string
	Quiet      bool
}

var globalOpts = GlobalOptions{}

// loaded by the root command before any subcommand runs
var (
	cfg    *config.Config
	logger = zap.NewNop()
)
