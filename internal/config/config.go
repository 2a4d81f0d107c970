// Package config loads the server's own YAML configuration — listen
// address, storage paths, timeouts, and the bearer token — and keeps it
// hot-reloadable: a running service picks up an edited config file without
// a restart, the same atomic-swap discipline the teacher uses to apply a
// reloaded model config to its live process groups.
package config

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the server's static configuration, loaded from YAML and
// overridable piecemeal by environment variables at startup.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	LogDir     string `yaml:"log_dir"`
	SqlitePath string `yaml:"sqlite_path"`

	BearerToken string `yaml:"bearer_token"`

	HealthProbeTimeoutSeconds int `yaml:"health_probe_timeout_seconds"`
	LaunchTimeoutSeconds      int `yaml:"launch_timeout_seconds"`

	RuntimeBin      string `yaml:"runtime_bin"`
	LlamaServerPath string `yaml:"llama_server_path"`
	SDCliPath       string `yaml:"sd_cli_path"`

	CUDAVisibleDevices string `yaml:"cuda_visible_devices"`
}

// defaults mirrors the zero-config experience: a bare `lammastudio serve`
// with no config file at all should still come up listening locally.
func defaults() Config {
	return Config{
		ListenAddr:                "127.0.0.1:8080",
		LogDir:                    os.TempDir(),
		SqlitePath:                "lammastudio.db",
		HealthProbeTimeoutSeconds: 5,
		LaunchTimeoutSeconds:      300,
	}
}

// Load reads path (if it exists; a missing file is not an error, only
// defaults + env apply) and layers environment variable overrides on top,
// matching the precedence spec.md's configuration section assigns each
// binary-resolution/env knob.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		body, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(body, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VLLM_STUDIO_RUNTIME_BIN"); v != "" {
		cfg.RuntimeBin = v
	}
	if v := os.Getenv("LLAMA_SERVER_PATH"); v != "" {
		cfg.LlamaServerPath = v
	}
	if v := os.Getenv("SD_CLI_PATH"); v != "" {
		cfg.SDCliPath = v
	}
	if v := os.Getenv("CUDA_VISIBLE_DEVICES"); v != "" {
		cfg.CUDAVisibleDevices = v
	}
	if v := os.Getenv("LAMMASTUDIO_BEARER_TOKEN"); v != "" {
		cfg.BearerToken = v
	}
	if v := os.Getenv("LAMMASTUDIO_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
}

// Watcher holds the live config behind an atomic pointer and reloads it
// from disk on every fsnotify write/create event, the same atomic-swap
// shape applyConfigAndSyncProcessGroups uses for live model groups —
// callers always read a complete, consistent Config, never a
// half-written one.
type Watcher struct {
	path string
	cur  atomic.Pointer[Config]
	log  *logrus.Logger
}

// WatchFile loads path once synchronously, then starts a background
// fsnotify watch that reloads it on change. If path is empty, it still
// returns a usable Watcher serving defaults+env, just with nothing to
// watch.
func WatchFile(path string, log *logrus.Logger) (*Watcher, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{path: path, log: log}
	w.cur.Store(&cfg)

	if path == "" {
		return w, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		// A config file that doesn't exist yet simply isn't watched; it
		// still works as a one-shot default+env load above.
		return w, nil
	}

	go w.run(watcher)
	return w, nil
}

func (w *Watcher) run(watcher *fsnotify.Watcher) {
	defer watcher.Close()
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("config watcher error")
		}
	}
}

func (w *Watcher) reload() {
	// A write event can fire while the editor is still mid-save; give it a
	// moment before reading.
	time.Sleep(50 * time.Millisecond)
	cfg, err := Load(w.path)
	if err != nil {
		w.log.WithError(err).Warn("config reload failed, keeping previous config")
		return
	}
	w.cur.Store(&cfg)
	w.log.Info("config reloaded")
}

// Get returns the current config snapshot.
func (w *Watcher) Get() Config {
	return *w.cur.Load()
}
