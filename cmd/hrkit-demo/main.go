// Command hrkit-demo lists heart-rate sensors from every enabled transport,
// lets the user pick one and shows its live BPM.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/chaz8081/hrkit/internal/config"
	"github.com/chaz8081/hrkit/internal/coordinator"
	"github.com/chaz8081/hrkit/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/hrkit/config.yaml)")
	plain := flag.Bool("plain", false, "print events as log lines instead of the interactive view")
	initConfig := flag.Bool("init", false, "write the default config file and exit")
	flag.Parse()

	if *initConfig {
		path, err := config.WriteDefault()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if path == "" {
			fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
			return
		}
		fmt.Printf("Wrote default config to %s\n", path)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	// The interactive view owns the terminal, so log to a file instead.
	if !*plain && (cfg.Log.Output == "stderr" || cfg.Log.Output == "stdout") {
		cfg.Log.Output = filepath.Join(config.DefaultConfigDir(), "hrkit-demo.log")
	}
	l, closeLog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer closeLog()
	slog.SetDefault(l)

	coord, shutdown, err := buildCoordinator(cfg)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer shutdown()

	if *plain {
		runPlain(coord)
		return
	}

	m := newModel(coord)
	p := tea.NewProgram(m, tea.WithAltScreen())
	obs := &teaObserver{send: p.Send}
	coord.AddObserver(obs)

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	// The coordinator only holds observers weakly.
	runtime.KeepAlive(obs)
}

// runPlain logs coordinator events until SIGINT or SIGTERM.
func runPlain(coord coordinator.Service) {
	obs := &logObserver{out: os.Stdout, svc: coord}
	coord.AddObserver(obs)
	coord.StartDiscovering()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	fmt.Println("Discovering sensors. The first one found is selected. Ctrl+C to quit.")

	sig := <-sigCh
	slog.Info("shutting down", "signal", sig.String())
	coord.StopDiscovering()
	runtime.KeepAlive(obs)
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, nil
	}

	return config.Default(), nil
}
