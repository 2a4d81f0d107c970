package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// exportRecipe returns the raw, re-importable recipe document — the exact
// shape POST /recipes and PUT /recipes/:id accept — as a file download, so
// a recipe can be moved between deployments with a single curl -O.
func (s *Server) exportRecipe(c *gin.Context) {
	id := c.Param("id")
	ctx, cancel := ctxWithTimeout(c, defaultRequestTimeout)
	defer cancel()

	r, found, err := s.Store.Get(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "recipe not found"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.json"`, r.ID))
	c.JSON(http.StatusOK, r)
}
