// Command teaplug-demo is a small Bubble Tea application wired entirely
// through the plugin runtime: a local counter plugin, the key/value
// store, window-state persistence, and the self-updater all run side by
// side in one registry.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"teaplug/internal/infra/config"
	"teaplug/internal/infra/logger"
	"teaplug/pkg/plug"
	"teaplug/pkg/plugins/kvstore"
	"teaplug/pkg/plugins/updater"
	"teaplug/pkg/plugins/windowstate"
)

// version is stamped by the build.
var version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "teaplug-demo:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", defaultConfigPath(), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer closeLog()

	b := plug.NewBuilder(log)
	counter := plug.Add[counterState, counterMsg, counterChanged](b, counterPlugin{})
	store := kvstore.Register(b, cfg.App.Name, log)
	window := windowstate.Register(b, cfg.App.Name, log)

	var upd *updater.Handle
	if cfg.Updater.Enabled {
		ucfg := updater.Config{
			Owner:          cfg.Updater.Owner,
			Repo:           cfg.Updater.Repo,
			CurrentVersion: version,
			CheckOnStart:   cfg.Updater.CheckOnStart,
			CheckEvery:     cfg.Updater.CheckEvery,
			CheckSchedule:  cfg.Updater.CheckSchedule,
		}
		if err := ucfg.Validate(); err != nil {
			return err
		}
		h := updater.Register(b, ucfg, log)
		upd = &h
	}

	reg, startup := b.Build()
	log.Info("plugins installed", "names", reg.Names())

	// The runner's sink is bound to the program after both exist; tea
	// only delivers messages once Run starts, well after p is assigned.
	var p *tea.Program
	runner := plug.NewRunner(func(msg tea.Msg) {
		if msg != nil {
			p.Send(msg)
		}
	}, log)
	defer runner.Close()

	m := newModel(log, reg, runner, startup, counter, store, window, upd)
	p = tea.NewProgram(m, tea.WithAltScreen())

	_, err = p.Run()
	return err
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "teaplug-demo", "config.yaml")
}
