package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	defaultWaitReadyTimeout = 30 * time.Second
	waitReadyPollInterval   = 500 * time.Millisecond
)

// waitReady blocks the caller until the named recipe's backend answers its
// health endpoint, the timeout elapses, or the client disconnects — a
// synchronous alternative to polling GET /recipes or subscribing to
// /events for callers (shell scripts, CI jobs) that just want a single
// blocking call.
func (s *Server) waitReady(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}

	timeout := defaultWaitReadyTimeout
	if raw := c.Query("timeout"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "timeout must be a positive integer number of seconds"})
			return
		}
		timeout = time.Duration(secs) * time.Second
	}

	lookupCtx, cancelLookup := ctxWithTimeout(c, defaultRequestTimeout)
	r, found, err := s.Store.Get(lookupCtx, id)
	cancelLookup()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "recipe not found"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	url := fmt.Sprintf("http://%s:%d/health", normalizeHealthHost(r.Host), r.Port)
	client := &http.Client{Timeout: waitReadyPollInterval}

	ticker := time.NewTicker(waitReadyPollInterval)
	defer ticker.Stop()

	for {
		if probeOnce(ctx, client, url, s.BearerToken) {
			c.JSON(http.StatusOK, gin.H{"ready": true})
			return
		}
		select {
		case <-ctx.Done():
			c.JSON(http.StatusGatewayTimeout, gin.H{"ready": false, "error": "timed out waiting for model to become ready"})
			return
		case <-ticker.C:
		}
	}
}

func normalizeHealthHost(host string) string {
	if host == "" || host == "0.0.0.0" {
		return "127.0.0.1"
	}
	return host
}

func probeOnce(ctx context.Context, client *http.Client, url, bearerToken string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
