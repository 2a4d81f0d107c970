package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/RATDEO/lammastudio-sub000/internal/recipe"
)

func (s *Server) listRecipes(c *gin.Context) {
	ctx, cancel := ctxWithTimeout(c, defaultRequestTimeout)
	defer cancel()

	recipes, err := s.Store.List(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]recipe.WithStatus, 0, len(recipes))
	for _, r := range recipes {
		out = append(out, recipe.WithStatus{Recipe: r, Status: recipeStatus(r, s.Procs, s.State)})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getRecipe(c *gin.Context) {
	ctx, cancel := ctxWithTimeout(c, defaultRequestTimeout)
	defer cancel()

	r, found, err := s.Store.Get(ctx, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "recipe not found"})
		return
	}
	c.JSON(http.StatusOK, r.DetailView())
}

func (s *Server) upsertRecipe(c *gin.Context) {
	s.upsert(c, "")
}

func (s *Server) upsertRecipeByID(c *gin.Context) {
	s.upsert(c, c.Param("id"))
}

func (s *Server) upsert(c *gin.Context, pathID string) {
	var r recipe.Recipe
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if pathID != "" {
		r.ID = pathID
	}

	ctx, cancel := ctxWithTimeout(c, defaultRequestTimeout)
	defer cancel()

	if err := s.Store.Save(ctx, r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, r.DetailView())
}

func (s *Server) deleteRecipe(c *gin.Context) {
	id := c.Param("id")
	ctx, cancel := ctxWithTimeout(c, defaultRequestTimeout)
	defer cancel()

	// Deletion of a currently-running recipe is refused: a recipe is the
	// only record of how to relaunch a model a client may still be
	// talking to, so silently deleting it out from under a running
	// backend is a worse failure mode than asking the caller to stop it
	// first.
	if r, found, err := s.Store.Get(ctx, id); err == nil && found {
		if info, ok := s.Procs.FindInferenceProcess(r.Port); ok && recipeMatchesIncumbent(r, info) {
			c.JSON(http.StatusConflict, gin.H{"error": "recipe is currently running; stop it before deleting"})
			return
		}
	}

	deleted, err := s.Store.Delete(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "recipe not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
