package httpapi

import (
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/nxadm/tail"
)

// logTailBytes bounds the plain (non-follow) log read, matching the
// coordinator's own waiting-state tail cap.
const logTailBytes = 3000

// launchLog returns the tail of a launch attempt's captured stdout/stderr.
// Without ?attempt=<uuid> it serves the most recent attempt for the
// recipe; with it, a specific historical attempt, even one superseded by a
// later relaunch. With ?follow=true it instead streams new lines as they
// are written, polling rather than relying on inotify so it behaves the
// same over network filesystems and inside containers.
func (s *Server) launchLog(c *gin.Context) {
	id := c.Param("id")

	var logFile string
	if attemptID := c.Query("attempt"); attemptID != "" {
		rec, ok := s.Coordinator.Attempts.Get(attemptID)
		if !ok || rec.RecipeID != id {
			c.JSON(http.StatusNotFound, gin.H{"error": "attempt not found"})
			return
		}
		logFile = rec.LogFile
	} else {
		rec, ok := s.Coordinator.Attempts.Latest(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no launch attempts recorded for this recipe"})
			return
		}
		logFile = rec.LogFile
	}

	if c.Query("follow") == "true" {
		s.streamLog(c, logFile)
		return
	}

	data, err := readTail(logFile, logTailBytes)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}

func readTail(path string, maxBytes int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	offset := int64(0)
	if info.Size() > maxBytes {
		offset = info.Size() - maxBytes
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(f)
}

func (s *Server) streamLog(c *gin.Context, path string) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		Poll:      true,
		MustExist: true,
		Location:  &tail.SeekInfo{Whence: io.SeekEnd},
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer t.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case line, ok := <-t.Lines:
			if !ok {
				return
			}
			c.SSEvent("message", line.Text)
			c.Writer.Flush()
		}
	}
}
