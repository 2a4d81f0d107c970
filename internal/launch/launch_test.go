package launch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RATDEO/lammastudio-sub000/internal/event"
	"github.com/RATDEO/lammastudio-sub000/internal/process"
	"github.com/RATDEO/lammastudio-sub000/internal/recipe"
)

type fakeStore struct {
	mu      sync.Mutex
	recipes map[string]recipe.Recipe
}

func newFakeStore(recipes ...recipe.Recipe) *fakeStore {
	s := &fakeStore{recipes: make(map[string]recipe.Recipe)}
	for _, r := range recipes {
		s.recipes[r.ID] = r
	}
	return s
}

func (s *fakeStore) Get(_ context.Context, id string) (recipe.Recipe, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recipes[id]
	return r, ok, nil
}

type fakeProcs struct {
	mu        sync.Mutex
	running   map[int]process.Info // keyed by port
	launchFn  func(r recipe.Recipe) process.LaunchResult
	evictions int32
	kills     int32
}

func newFakeProcs() *fakeProcs {
	return &fakeProcs{running: make(map[int]process.Info)}
}

func (f *fakeProcs) FindInferenceProcess(port int) (process.Info, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.running[port]
	return info, ok
}

func (f *fakeProcs) LaunchModel(r recipe.Recipe, attemptID string) process.LaunchResult {
	if f.launchFn != nil {
		res := f.launchFn(r)
		if res.Success {
			f.mu.Lock()
			f.running[r.Port] = process.Info{PID: res.PID, Backend: r.Backend, Port: r.Port}
			f.mu.Unlock()
		}
		return res
	}
	return process.LaunchResult{Success: true, PID: 1234}
}

func (f *fakeProcs) EvictModel(_ context.Context, _ bool, port int) (int, bool) {
	atomic.AddInt32(&f.evictions, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.running[port]
	if ok {
		delete(f.running, port)
	}
	return info.PID, ok
}

func (f *fakeProcs) KillProcess(_ context.Context, pid int, _ bool) {
	atomic.AddInt32(&f.kills, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	for port, info := range f.running {
		if info.PID == pid {
			delete(f.running, port)
		}
	}
}

func newTestCoordinator(t *testing.T, store RecipeStore, procs ProcessManager) *Coordinator {
	t.Helper()
	c := NewCoordinator(store, procs, event.New(), NewState(), nil)
	c.WaitTimeout = 2 * time.Second
	c.PollInterval = 20 * time.Millisecond
	c.SettleDelay = 5 * time.Millisecond
	c.HealthProbeTimeout = 500 * time.Millisecond
	return c
}

func recipeWithHealthServer(t *testing.T, healthHandler http.HandlerFunc) (recipe.Recipe, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(healthHandler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	r := recipe.Recipe{
		ID:      "test-recipe",
		Name:    "Test",
		Backend: recipe.BackendVLLM,
		Host:    "0.0.0.0",
		Port:    port,
	}
	r.Normalize()
	return r, srv
}

func TestLaunch_HappyPathReachesReady(t *testing.T) {
	var probes int32
	r, _ := recipeWithHealthServer(t, func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if atomic.AddInt32(&probes, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	logFile, err := os.CreateTemp(t.TempDir(), "launch-*.log")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	logFile.Close()

	store := newFakeStore(r)
	procs := newFakeProcs()
	procs.launchFn = func(rc recipe.Recipe) process.LaunchResult {
		return process.LaunchResult{Success: true, PID: 9001, LogFile: logFile.Name()}
	}

	c := newTestCoordinator(t, store, procs)
	res := c.Launch(context.Background(), r.ID)

	if !res.Success || res.PID != 9001 {
		t.Fatalf("expected successful launch, got %+v", res)
	}
	if c.State.LaunchingRecipe() != "" {
		t.Fatalf("expected LaunchState cleared after terminal stage")
	}
}

func TestLaunch_IdempotentWhenAlreadyRunningSameModel(t *testing.T) {
	r := recipe.Recipe{ID: "r1", Name: "R1", Backend: recipe.BackendVLLM, Host: "0.0.0.0", Port: 8000, ModelPath: "/m/Q", ServedModelName: "q-model"}
	r.Normalize()

	store := newFakeStore(r)
	procs := newFakeProcs()
	procs.running[8000] = process.Info{PID: 555, Backend: recipe.BackendVLLM, ServedModelName: "q-model"}

	c := newTestCoordinator(t, store, procs)
	res := c.Launch(context.Background(), r.ID)

	if !res.Success || res.PID != 555 {
		t.Fatalf("expected idempotent success reusing existing pid, got %+v", res)
	}
	if atomic.LoadInt32(&procs.evictions) != 0 {
		t.Fatalf("expected no eviction on idempotent re-launch")
	}
}

func TestLaunch_FatalPatternTerminatesWithError(t *testing.T) {
	r, _ := recipeWithHealthServer(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	logPath := t.TempDir() + "/fatal.log"
	if err := os.WriteFile(logPath, []byte("loading weights...\nCUDA out of memory. Tried to allocate 8.0 GiB\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	store := newFakeStore(r)
	procs := newFakeProcs()
	procs.launchFn = func(rc recipe.Recipe) process.LaunchResult {
		return process.LaunchResult{Success: true, PID: 42, LogFile: logPath}
	}

	c := newTestCoordinator(t, store, procs)
	res := c.Launch(context.Background(), r.ID)

	if res.Success {
		t.Fatalf("expected failure on fatal log pattern, got %+v", res)
	}
	if atomic.LoadInt32(&procs.kills) == 0 {
		t.Fatalf("expected the child to be killed on fatal pattern detection")
	}
}

func TestLaunch_TimeoutWhenHealthNeverReady(t *testing.T) {
	r, _ := recipeWithHealthServer(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	logFile, _ := os.CreateTemp(t.TempDir(), "timeout-*.log")
	logFile.Close()

	store := newFakeStore(r)
	procs := newFakeProcs()
	procs.launchFn = func(rc recipe.Recipe) process.LaunchResult {
		return process.LaunchResult{Success: true, PID: 77, LogFile: logFile.Name()}
	}

	c := newTestCoordinator(t, store, procs)
	c.WaitTimeout = 60 * time.Millisecond
	c.PollInterval = 10 * time.Millisecond

	res := c.Launch(context.Background(), r.ID)
	if res.Success {
		t.Fatalf("expected timeout failure, got %+v", res)
	}
	if len(res.Message) < len("Model failed to become ready (timeout)") {
		t.Fatalf("expected timeout message, got %q", res.Message)
	}
}

func TestLaunch_PreemptsConcurrentIncumbent(t *testing.T) {
	r1, _ := recipeWithHealthServer(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	r1.ID = "first"
	r2, _ := recipeWithHealthServer(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r2.ID = "second"

	store := newFakeStore(r1, r2)
	procs := newFakeProcs()
	procs.launchFn = func(rc recipe.Recipe) process.LaunchResult {
		logFile, err := os.CreateTemp(t.TempDir(), "preempt-*.log")
		if err != nil {
			t.Fatalf("temp file: %v", err)
		}
		logFile.Close()
		return process.LaunchResult{Success: true, PID: 4242, LogFile: logFile.Name()}
	}

	bus := event.New()
	ch, unsub := bus.Subscribe(event.TopicLaunchProgress)
	defer unsub()

	c := NewCoordinator(store, procs, bus, NewState(), nil)
	c.WaitTimeout = 2 * time.Second
	c.PollInterval = 20 * time.Millisecond
	c.SettleDelay = 5 * time.Millisecond
	c.HealthProbeTimeout = 200 * time.Millisecond

	firstDone := make(chan Result, 1)
	go func() { firstDone <- c.Launch(context.Background(), r1.ID) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && c.State.LaunchingRecipe() != r1.ID {
		time.Sleep(2 * time.Millisecond)
	}
	if c.State.LaunchingRecipe() != r1.ID {
		t.Fatalf("expected first launch to register as in-flight before the second starts")
	}

	res2 := c.Launch(context.Background(), r2.ID)
	if !res2.Success {
		t.Fatalf("expected the preempting launch to succeed, got %+v", res2)
	}

	var sawPreempting, sawCancelled bool
drain:
	for {
		select {
		case v := <-ch:
			p, ok := v.(Progress)
			if !ok || p.RecipeID != r1.ID {
				continue
			}
			switch p.Stage {
			case StagePreempting:
				sawPreempting = true
			case StageCancelled:
				sawCancelled = true
			}
		case <-time.After(100 * time.Millisecond):
			break drain
		}
	}
	if !sawPreempting {
		t.Fatalf("expected the incumbent launch to observe a preempting event")
	}
	if !sawCancelled {
		t.Fatalf("expected the incumbent launch to observe a cancelled event")
	}

	select {
	case res1 := <-firstDone:
		if res1.Success {
			t.Fatalf("expected the preempted launch to fail, got %+v", res1)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected the preempted launch to finish promptly once cancelled")
	}
}

func TestCancel_EvictsWhenRecipeIsLaunching(t *testing.T) {
	r := recipe.Recipe{ID: "r1", Name: "R1", Backend: recipe.BackendVLLM, Host: "0.0.0.0", Port: 9090}
	r.Normalize()

	store := newFakeStore(r)
	procs := newFakeProcs()
	state := NewState()
	_, cancel := context.WithCancel(context.Background())
	state.Begin(r.ID, cancel)

	c := newTestCoordinator(t, store, procs)
	c.State = state

	ok, err := c.Cancel(context.Background(), r.ID)
	if err != nil || !ok {
		t.Fatalf("expected cancel to report handled, got ok=%v err=%v", ok, err)
	}
	if atomic.LoadInt32(&procs.evictions) == 0 {
		t.Fatalf("expected cancel to evict the target port")
	}
}

func TestSameModel_ServedModelNameMatch(t *testing.T) {
	r := recipe.Recipe{Backend: recipe.BackendVLLM, ServedModelName: "alpha"}
	if !sameModel(r, recipe.BackendVLLM, "", "alpha") {
		t.Fatalf("expected served_model_name match to count as same model")
	}
	if sameModel(r, recipe.BackendVLLM, "", "beta") {
		t.Fatalf("expected mismatched served_model_name to not count as same model")
	}
}

func TestSameModel_ModelPathBaseNameMatch(t *testing.T) {
	r := recipe.Recipe{Backend: recipe.BackendLlamaCPP, ModelPath: "/mnt/models/q.gguf"}
	if !sameModel(r, recipe.BackendLlamaCPP, "/other/mount/q.gguf", "") {
		t.Fatalf("expected matching final path component to count as same model")
	}
}

func TestSameModel_SDCPPAlwaysMatches(t *testing.T) {
	r := recipe.Recipe{Backend: recipe.BackendStableDif}
	if !sameModel(r, recipe.BackendStableDif, "", "") {
		t.Fatalf("expected sdcpp incumbents to always count as the same model")
	}
}

func TestFindFatalPattern_FirstMatchWins(t *testing.T) {
	tail := "starting up\nCUDA out of memory. Tried 8GiB\nmore logs\nGGML_ASSERT failed\n"
	pattern, window, ok := findFatalPattern(tail)
	if !ok {
		t.Fatalf("expected a fatal pattern match")
	}
	if pattern != "CUDA out of memory" {
		t.Fatalf("expected first matching pattern to win, got %q", pattern)
	}
	if len(window) == 0 {
		t.Fatalf("expected a non-empty context window")
	}
}

func TestFindFatalPattern_NoMatch(t *testing.T) {
	if _, _, ok := findFatalPattern("everything is fine\nloading model\n"); ok {
		t.Fatalf("expected no fatal pattern match")
	}
}
