// Package httpapi exposes the launch coordinator, recipe store, and event
// bus over HTTP: the six routes that drive the state machine plus a small
// slice of supplemented read-only endpoints.
package httpapi

import (
	"context"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/RATDEO/lammastudio-sub000/internal/event"
	"github.com/RATDEO/lammastudio-sub000/internal/launch"
	"github.com/RATDEO/lammastudio-sub000/internal/process"
	"github.com/RATDEO/lammastudio-sub000/internal/recipe"
)

// defaultRequestTimeout bounds every recipe-store call made from inside a
// request handler; the store is local sqlite, so this is generous headroom
// rather than a tuned budget.
const defaultRequestTimeout = 5 * time.Second

// Server is the context object threaded through every route handler: the
// recipe store, coordinator, event bus, process manager, and logger, all
// injected rather than reached for as globals.
type Server struct {
	Store       *recipe.Store
	Coordinator *launch.Coordinator
	Bus         *event.Bus
	GPUCache    *event.GPUCache
	Procs       *process.Manager
	State       *launch.State
	Log         *logrus.Logger
	BearerToken string

	engine *gin.Engine
}

// NewServer builds the gin engine and registers every route.
func NewServer(store *recipe.Store, coord *launch.Coordinator, bus *event.Bus, gpuCache *event.GPUCache, procs *process.Manager, state *launch.State, log *logrus.Logger, bearerToken string) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if gpuCache == nil {
		gpuCache = event.NewGPUCache()
	}
	s := &Server{Store: store, Coordinator: coord, Bus: bus, GPUCache: gpuCache, Procs: procs, State: state, Log: log, BearerToken: bearerToken}
	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.engine.Use(securityHeadersMiddleware())
	s.engine.Use(newLaunchRateLimiter().middleware())
	s.engine.Use(bearerAuthMiddleware(bearerToken))
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler to pass to an http.Server.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) registerRoutes() {
	s.engine.GET("/recipes", s.listRecipes)
	s.engine.GET("/recipes/:id", s.getRecipe)
	s.engine.POST("/recipes", s.upsertRecipe)
	s.engine.PUT("/recipes/:id", s.upsertRecipeByID)
	s.engine.DELETE("/recipes/:id", s.deleteRecipe)

	s.engine.POST("/launch/:id", s.launchRecipe)
	s.engine.POST("/launch/:id/cancel", s.cancelLaunch)
	s.engine.POST("/evict", s.evict)
	s.engine.GET("/wait-ready", s.waitReady)
	s.engine.GET("/events", s.events)

	s.engine.GET("/recipes/:id/export", s.exportRecipe)
	s.engine.GET("/launch/:id/log", s.launchLog)
	s.engine.GET("/gpu", s.gpuSnapshot)
}

func recipeStatus(r recipe.Recipe, procs *process.Manager, state *launch.State) recipe.Status {
	if state.IsLaunching(r.ID) {
		return recipe.StatusStarting
	}
	if info, ok := procs.FindInferenceProcess(r.Port); ok {
		if recipeMatchesIncumbent(r, info) {
			return recipe.StatusRunning
		}
	}
	return recipe.StatusStopped
}

// recipeMatchesIncumbent exposes the same-model predicate from the launch
// package's perspective of a recipe/process pairing, used only to annotate
// list views with a derived status — not part of the coordinator's own
// decision path.
func recipeMatchesIncumbent(r recipe.Recipe, info process.Info) bool {
	if r.Backend != info.Backend {
		return false
	}
	if r.Backend == recipe.BackendStableDif {
		return true
	}
	if r.ServedModelName != "" && info.ServedModelName != "" {
		return r.ServedModelName == info.ServedModelName
	}
	if r.ModelPath == "" || info.ModelPath == "" {
		return false
	}
	a, b := strings.TrimRight(r.ModelPath, "/"), strings.TrimRight(info.ModelPath, "/")
	return a == b || path.Base(a) == path.Base(b)
}

func ctxWithTimeout(c *gin.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), d)
}
