package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/RATDEO/lammastudio-sub000/internal/event"
)

// events streams launch_progress, status, gpu, and metrics on a single SSE
// connection, tagged so the client can dispatch on the original topic.
func (s *Server) events(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("X-Accel-Buffering", "no") // prevent nginx from buffering SSE

	ch, unsub := s.Bus.SubscribeAll(
		event.TopicLaunchProgress,
		event.TopicStatus,
		event.TopicGPU,
		event.TopicMetrics,
	)
	defer unsub()

	c.SSEvent("message", gin.H{"topic": "gpu", "data": s.GPUCache.Get()})
	c.Writer.Flush()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case tagged, ok := <-ch:
			if !ok {
				return
			}
			c.SSEvent("message", gin.H{"topic": tagged.Topic, "data": tagged.Value})
			c.Writer.Flush()
		}
	}
}
