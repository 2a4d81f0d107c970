// Package launch implements the state machine that owns a launch attempt
// end to end: preempting any in-flight competitor, evicting the
// incumbent, spawning the new backend, and watching it until it is ready,
// fails, times out, or is cancelled.
package launch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/billziss-gh/golib/trace"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/RATDEO/lammastudio-sub000/internal/command"
	"github.com/RATDEO/lammastudio-sub000/internal/event"
	"github.com/RATDEO/lammastudio-sub000/internal/process"
	"github.com/RATDEO/lammastudio-sub000/internal/recipe"
)

const (
	defaultWaitTimeout        = 300 * time.Second
	defaultPollInterval       = 2 * time.Second
	defaultHealthProbeTimeout = 5 * time.Second
	defaultSettleDelay        = 300 * time.Millisecond
	defaultSwitchLockTimeout  = 2 * time.Second
	defaultEvictPollAttempts  = 10

	waitingTailCap  = 3000
	timeoutTailCap  = 1000
	earlyExitTailCap = 500
)

// RecipeStore is the slice of recipe.Store the coordinator needs,
// narrowed to an interface so tests can substitute an in-memory fake.
type RecipeStore interface {
	Get(ctx context.Context, id string) (recipe.Recipe, bool, error)
}

// ProcessManager is the slice of process.Manager the coordinator drives,
// narrowed to an interface for the same reason.
type ProcessManager interface {
	FindInferenceProcess(port int) (process.Info, bool)
	LaunchModel(r recipe.Recipe, attemptID string) process.LaunchResult
	EvictModel(ctx context.Context, force bool, port int) (int, bool)
	KillProcess(ctx context.Context, pid int, force bool)
}

// Coordinator is the launch state machine. Every field beyond Store/Procs/
// Bus/State has a production default and exists so tests can inject fast
// clocks and fake transports (S4's 300s timeout, in particular, must be
// observable without an actual five-minute test run).
type Coordinator struct {
	Store    RecipeStore
	Procs    ProcessManager
	Bus      *event.Bus
	State    *State
	Attempts *Attempts
	Log      *logrus.Logger

	BearerToken string
	HTTPClient  *http.Client

	WaitTimeout        time.Duration
	PollInterval       time.Duration
	HealthProbeTimeout time.Duration
	SettleDelay        time.Duration
	SwitchLockTimeout  time.Duration
	EvictPollAttempts  int

	switchLock *semaphore.Weighted
}

// NewCoordinator wires a Coordinator with production defaults.
func NewCoordinator(store RecipeStore, procs ProcessManager, bus *event.Bus, state *State, log *logrus.Logger) *Coordinator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Coordinator{
		Store:              store,
		Procs:              procs,
		Bus:                bus,
		State:              state,
		Attempts:           NewAttempts(),
		Log:                log,
		HTTPClient:         &http.Client{Timeout: defaultHealthProbeTimeout},
		WaitTimeout:        defaultWaitTimeout,
		PollInterval:       defaultPollInterval,
		HealthProbeTimeout: defaultHealthProbeTimeout,
		SettleDelay:        defaultSettleDelay,
		SwitchLockTimeout:  defaultSwitchLockTimeout,
		EvictPollAttempts:  defaultEvictPollAttempts,
		switchLock:         semaphore.NewWeighted(1),
	}
}

func (c *Coordinator) emit(recipeID string, stage Stage, message string, progress float64) {
	c.Bus.Emit(event.TopicLaunchProgress, Progress{RecipeID: recipeID, Stage: stage, Message: message, Progress: progress})
}

// Launch drives recipeID through the full state machine and returns its
// terminal Result. It never returns a transport-level error: every failure
// mode is reported inside Result per the error-taxonomy rule that a failed
// launch is still a successful request.
func (c *Coordinator) Launch(ctx context.Context, recipeID string) Result {
	defer trace.Trace(recipeID)()

	r, found, err := c.Store.Get(ctx, recipeID)
	if err != nil {
		return Result{Success: false, Message: fmt.Sprintf("store error: %v", err)}
	}
	if !found {
		return Result{Success: false, Message: "recipe not found"}
	}

	if incumbent, ok := c.Procs.FindInferenceProcess(r.Port); ok {
		if sameModel(r, incumbent.Backend, incumbent.ModelPath, incumbent.ServedModelName) {
			c.emit(r.ID, StageReady, "already running", 1.0)
			return Result{Success: true, PID: incumbent.PID, Message: "already running"}
		}
	}

	other, preempting := c.State.IncumbentLaunching(r.ID)

	attemptCtx, cancel := context.WithCancel(context.Background())
	c.State.Begin(r.ID, cancel)
	defer func() {
		cancel()
		c.State.End(r.ID)
	}()

	if preempting {
		c.emit(other, StagePreempting, fmt.Sprintf("Cancelling %s to make room for %s...", other, r.ID), 0)
		c.State.Cancel(other)
		c.emit(other, StageCancelled, "preempted by a newer launch", 0)
		if err := c.preemptEvict(ctx, other); err != nil {
			c.Log.WithError(err).Warn("preempting eviction failed")
		}
		c.sleep(ctx, c.SettleDelay)
	}

	released, err := c.acquireSwitchLock(ctx, r)
	if err != nil {
		return Result{Success: false, Message: fmt.Sprintf("could not acquire switch lock: %v", err)}
	}
	defer released()

	if attemptCtx.Err() != nil {
		c.emit(r.ID, StageCancelled, "cancelled before eviction", 0)
		return Result{Success: false, Message: "launch cancelled"}
	}

	c.emit(r.ID, StageEvicting, "Clearing VRAM...", 0)
	c.evictRecipePorts(attemptCtx, r)
	c.sleep(attemptCtx, c.SettleDelay)

	if attemptCtx.Err() != nil {
		c.emit(r.ID, StageCancelled, "cancelled during eviction", 0)
		return Result{Success: false, Message: "launch cancelled"}
	}

	c.emit(r.ID, StageLaunching, fmt.Sprintf("Starting %s...", r.Name), 0.25)
	attemptID := uuid.NewString()
	launchRes := c.Procs.LaunchModel(r, attemptID)
	if !launchRes.Success {
		c.emit(r.ID, StageError, launchRes.Message, 0)
		return Result{Success: false, Message: launchRes.Message}
	}
	c.Attempts.record(attemptID, r.ID, launchRes.LogFile)

	return c.wait(attemptCtx, r, launchRes)
}

// evictRecipePorts clears r's primary port and, for sdcpp recipes, its
// separate inference control port concurrently via errgroup — the two
// evictions are independent and there is no reason to pay their grace
// periods back to back.
func (c *Coordinator) evictRecipePorts(ctx context.Context, r recipe.Recipe) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if _, evicted := c.Procs.EvictModel(gctx, true, r.Port); evicted {
			c.waitForPortClear(gctx, r.Port)
		}
		return nil
	})

	if r.Backend == recipe.BackendStableDif {
		if infPort := command.ExtraArgsInt(r, "inference_port", 0); infPort > 0 {
			g.Go(func() error {
				c.Procs.EvictModel(gctx, true, infPort)
				return nil
			})
		}
	}

	_ = g.Wait()
}

// preemptEvict evicts the port bound to the recipe being preempted, best
// effort — the recipe may already have been deleted by the time we look
// it up, in which case there is nothing left to evict.
func (c *Coordinator) preemptEvict(ctx context.Context, recipeID string) error {
	r, found, err := c.Store.Get(ctx, recipeID)
	if err != nil || !found {
		return err
	}
	c.Procs.EvictModel(ctx, true, r.Port)
	return nil
}

func (c *Coordinator) waitForPortClear(ctx context.Context, port int) {
	for i := 0; i < c.EvictPollAttempts; i++ {
		if _, found := c.Procs.FindInferenceProcess(port); !found {
			return
		}
		if !c.sleep(ctx, c.PollInterval/4) {
			return
		}
	}
}

// acquireSwitchLock tries a timed acquire first so a launch never
// monopolizes the controller indefinitely; on timeout it force-evicts r's
// ports (waiting for the primary port to clear), then falls back to an
// unbounded blocking acquire, same as a direct mutex.
func (c *Coordinator) acquireSwitchLock(ctx context.Context, r recipe.Recipe) (func(), error) {
	timedCtx, cancel := context.WithTimeout(ctx, c.SwitchLockTimeout)
	err := c.switchLock.Acquire(timedCtx, 1)
	cancel()
	if err == nil {
		return func() { c.switchLock.Release(1) }, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	c.evictRecipePorts(ctx, r)
	if err := c.switchLock.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { c.switchLock.Release(1) }, nil
}

// sleep blocks for d or until ctx is done, returning false if it was
// interrupted by cancellation.
func (c *Coordinator) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Coordinator) wait(ctx context.Context, r recipe.Recipe, launched process.LaunchResult) Result {
	c.emit(r.ID, StageWaiting, "Waiting for model to load...", 0.5)

	deadline := time.Now().Add(c.WaitTimeout)
	healthURL := fmt.Sprintf("http://%s:%d/health", healthHost(r.Host), r.Port)

	for {
		if ctx.Err() != nil {
			c.Procs.KillProcess(context.Background(), launched.PID, true)
			c.emit(r.ID, StageCancelled, "launch cancelled while waiting", 0)
			return Result{Success: false, Message: "launch cancelled", LogFile: launched.LogFile}
		}

		tail := readLogTail(launched.LogFile, waitingTailCap)
		if _, window, ok := findFatalPattern(tail); ok {
			c.Procs.KillProcess(context.Background(), launched.PID, true)
			reason := truncate(window, 300)
			c.emit(r.ID, StageError, "Fatal error: "+truncate(window, 100), 0)
			return Result{Success: false, Message: "Fatal error: " + reason, LogFile: launched.LogFile}
		}

		if c.probeHealth(ctx, healthURL) {
			c.emit(r.ID, StageReady, "Model is ready!", 1.0)
			return Result{Success: true, PID: launched.PID, LogFile: launched.LogFile, Message: "Model is ready!"}
		}

		if !processAlive(c.Procs, r.Port, launched.PID) {
			tail := readLogTail(launched.LogFile, earlyExitTailCap)
			c.emit(r.ID, StageError, "Process exited early", 0)
			return Result{Success: false, Message: "Process exited early: " + truncate(tail, earlyExitTailCap), LogFile: launched.LogFile}
		}

		if time.Now().After(deadline) {
			c.Procs.KillProcess(context.Background(), launched.PID, true)
			tail := readLogTail(launched.LogFile, timeoutTailCap)
			msg := "Model failed to become ready (timeout)"
			c.emit(r.ID, StageError, msg, 0)
			return Result{Success: false, Message: msg + ": " + tail, LogFile: launched.LogFile}
		}

		elapsed := c.WaitTimeout - time.Until(deadline)
		frac := 0.5
		if c.WaitTimeout > 0 {
			frac = 0.5 + 0.5*clamp01(elapsed.Seconds()/c.WaitTimeout.Seconds())
		}
		c.emit(r.ID, StageWaiting, "Waiting for model to load...", frac)

		if !c.sleep(ctx, c.PollInterval) {
			continue
		}
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func healthHost(host string) string {
	if host == "0.0.0.0" || host == "" {
		return "127.0.0.1"
	}
	return host
}

func (c *Coordinator) probeHealth(ctx context.Context, url string) bool {
	reqCtx, cancel := context.WithTimeout(ctx, c.HealthProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func processAlive(procs ProcessManager, port, pid int) bool {
	info, ok := procs.FindInferenceProcess(port)
	return ok && info.PID == pid
}

// Cancel aborts recipeID's in-flight launch, if any, and evicts whatever is
// bound to its configured port. The eviction also happens as a best-effort
// abort when no cancel handle is registered but State still marks recipeID
// as launching; with neither, nothing is evicted and Cancel reports false.
func (c *Coordinator) Cancel(ctx context.Context, recipeID string) (bool, error) {
	defer trace.Trace(recipeID)()

	r, found, err := c.Store.Get(ctx, recipeID)
	if err != nil {
		return false, err
	}
	hadHandle := c.State.Cancel(recipeID)
	if !found {
		return hadHandle, nil
	}
	if hadHandle || c.State.IsLaunching(recipeID) {
		c.Procs.EvictModel(ctx, true, r.Port)
		return true, nil
	}
	return hadHandle, nil
}

// Evict acquires the switch lock and terminates whatever is bound to port,
// mirroring the manual /evict endpoint's contract.
func (c *Coordinator) Evict(ctx context.Context, force bool, port int) (int, bool, error) {
	if err := c.switchLock.Acquire(ctx, 1); err != nil {
		return 0, false, err
	}
	defer c.switchLock.Release(1)

	pid, ok := c.Procs.EvictModel(ctx, force, port)
	return pid, ok, nil
}
