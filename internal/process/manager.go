package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/RATDEO/lammastudio-sub000/internal/command"
	"github.com/RATDEO/lammastudio-sub000/internal/logging"
	"github.com/RATDEO/lammastudio-sub000/internal/recipe"
)

// evictGrace is how long evictModel/killProcess wait after SIGTERM before
// escalating to SIGKILL when force is requested.
const evictGrace = 5 * time.Second

// Manager owns spawning, discovering, and terminating inference backend
// processes. It is deliberately stateless about what it has spawned —
// findInferenceProcess always re-derives truth from /proc, so a restart of
// the controlling service loses no ability to find or evict a backend.
type Manager struct {
	LogDir    string
	BuildOpts command.Options
	Log       *logrus.Logger

	// Monitor receives a copy of every backend's stdout/stderr, in addition
	// to the per-recipe file on disk — the in-memory ring buffer backing
	// any future live-tail consumer that doesn't want to reopen the file.
	Monitor *logging.LogMonitor

	scan scanner
}

// NewManager builds a Manager writing backend logs under logDir (default
// /tmp when empty) and resolving binaries per opts.
func NewManager(logDir string, opts command.Options, log *logrus.Logger) *Manager {
	if logDir == "" {
		logDir = os.TempDir()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{LogDir: logDir, BuildOpts: opts, Log: log, Monitor: logging.New("backend", false), scan: procScanner{}}
}

// LaunchResult mirrors the {success, pid?, message} shape launchModel
// returns.
type LaunchResult struct {
	Success bool
	PID     int
	Message string
	LogFile string
}

// LogPath returns the log file path for one launch attempt of a recipe.
// Each attempt gets its own file (rather than truncating a shared
// per-recipe file) so a past attempt's log remains readable by id after a
// later relaunch has started writing a new one.
func (m *Manager) LogPath(r recipe.Recipe, attemptID string) string {
	return filepath.Join(m.LogDir, fmt.Sprintf("%s_%s_%s.log", r.Backend, r.ID, attemptID))
}

// FindInferenceProcess scans for a live process bound to port.
func (m *Manager) FindInferenceProcess(port int) (Info, bool) {
	return find(m.scan, port)
}

// LaunchModel assembles argv via the command builder, opens a fresh
// per-attempt log file, spawns the child detached into its own process
// group (so eviction can SIGTERM/SIGKILL the whole group, not just the
// immediate pid), and returns its pid.
func (m *Manager) LaunchModel(r recipe.Recipe, attemptID string) LaunchResult {
	result, err := command.Build(r, m.BuildOpts)
	if err != nil {
		return LaunchResult{Success: false, Message: err.Error()}
	}
	if len(result.Argv) == 0 {
		return LaunchResult{Success: false, Message: "command builder produced an empty argv"}
	}

	logPath := m.LogPath(r, attemptID)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return LaunchResult{Success: false, Message: fmt.Sprintf("open log file: %v", err)}
	}

	cmd := exec.Command(result.Argv[0], result.Argv[1:]...)
	cmd.Stdout = io.MultiWriter(logFile, m.Monitor)
	cmd.Stderr = io.MultiWriter(logFile, m.Monitor)
	cmd.SysProcAttr = setDetachedGroup()

	env := os.Environ()
	for k, v := range result.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return LaunchResult{Success: false, Message: fmt.Sprintf("spawn failed: %v", err)}
	}

	pid := cmd.Process.Pid
	go func() {
		_ = cmd.Wait()
		_ = logFile.Close()
	}()

	m.Log.WithFields(logrus.Fields{"recipe_id": r.ID, "backend": r.Backend, "pid": pid}).Info("launched inference process")
	m.Monitor.Infof("recipe=%s backend=%s pid=%d launched", r.ID, r.Backend, pid)
	return LaunchResult{Success: true, PID: pid, LogFile: logPath}
}

// EvictModel terminates the process bound to port, if any. It always sends
// SIGTERM first; when force is true it escalates to SIGKILL after
// evictGrace if the process hasn't exited. Returns the pid evicted, or
// ok=false if nothing was bound to the port.
func (m *Manager) EvictModel(ctx context.Context, force bool, port int) (int, bool) {
	info, ok := m.FindInferenceProcess(port)
	if !ok {
		return 0, false
	}
	m.terminate(ctx, info.PID, force)
	return info.PID, true
}

// KillProcess terminates pid directly, by process group, the same way
// EvictModel does by port.
func (m *Manager) KillProcess(ctx context.Context, pid int, force bool) {
	m.terminate(ctx, pid, force)
}

func (m *Manager) terminate(ctx context.Context, pid int, force bool) {
	terminateGroup(pid)
	if !force {
		return
	}

	timer := time.NewTimer(evictGrace)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}

	if alive(pid) {
		killGroup(pid)
	}
}
