package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// launchRecipe drives the coordinator's state machine to completion and
// reports its terminal Result; progress along the way is only observable
// through /events, not this response.
func (s *Server) launchRecipe(c *gin.Context) {
	res := s.Coordinator.Launch(c.Request.Context(), c.Param("id"))
	if !res.Success && res.Message == "recipe not found" {
		c.JSON(http.StatusNotFound, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) cancelLaunch(c *gin.Context) {
	ctx, cancel := ctxWithTimeout(c, defaultRequestTimeout)
	defer cancel()

	ok, err := s.Coordinator.Cancel(ctx, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"cancelled": false, "error": "no in-flight launch for this recipe"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

type evictRequest struct {
	Port  int  `json:"port"`
	Force bool `json:"force"`
}

// evict accepts the target port either as a query string (?port=8000&force)
// — where force is a bare presence flag, any value other than "false"/"0"
// counting as true — or as a JSON body with an explicit boolean force
// field. Either way force=false sends only SIGTERM and leaves escalation to
// a later retry; force=true also escalates to SIGKILL after the grace
// period if the process is still alive.
func (s *Server) evict(c *gin.Context) {
	var req evictRequest

	if portParam := c.Query("port"); portParam != "" {
		port, err := strconv.Atoi(portParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "port must be an integer"})
			return
		}
		req.Port = port
		if forceParam, present := c.GetQuery("force"); present {
			req.Force = forceParam != "false" && forceParam != "0"
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Port <= 0 || req.Port > 65535 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "port is required and must be within 1..65535"})
		return
	}

	ctx, cancel := ctxWithTimeout(c, defaultRequestTimeout)
	defer cancel()

	pid, evicted, err := s.Coordinator.Evict(ctx, req.Force, req.Port)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"evicted": evicted, "pid": pid})
}
