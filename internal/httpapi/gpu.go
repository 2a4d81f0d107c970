package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// gpuSnapshot returns the most recent host GPU inventory sampled by the
// background sampler, without waiting on a fresh probe — PCI enumeration
// is slow enough that doing it inline on every request would make this
// endpoint a bad citizen of a dashboard polling loop.
func (s *Server) gpuSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.GPUCache.Get())
}
