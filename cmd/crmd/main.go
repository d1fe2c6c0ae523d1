package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/cesar59xxx/eeeeeeee/internal/config"
	"github.com/cesar59xxx/eeeeeeee/internal/daemon"
	"github.com/cesar59xxx/eeeeeeee/internal/paths"
)

func main() {
	configFlag := flag.String("config", "", "config file path (default: <data dir>/config.toml)")
	dataDirFlag := flag.String("data-dir", "", "data directory (overrides config)")
	flag.Parse()

	dataDir := *dataDirFlag
	if dataDir == "" {
		if v := os.Getenv("CRMD_DATA_DIR"); v != "" {
			dataDir = v
		} else {
			dataDir = paths.DefaultDataDir()
		}
	}

	configPath := *configFlag
	if configPath == "" {
		configPath = paths.ConfigPath(dataDir)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = dataDir
	}
	if *dataDirFlag != "" {
		cfg.DataDir = *dataDirFlag
	}

	app := fx.New(
		daemon.Module(daemon.Params{Config: cfg}),
	)

	app.Run()
}
