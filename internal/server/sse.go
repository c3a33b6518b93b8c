package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const sseHeartbeatInterval = 15 * time.Second

// startEventStream switches the response to text/event-stream. It returns
// false when the writer cannot flush.
func startEventStream(c *gin.Context) (http.Flusher, bool) {
	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		AbortWithError(c, ErrServiceUnavailable)
		return nil, false
	}

	headers := writer.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	if _, err := io.WriteString(writer, "retry: 2000\n\n"); err != nil {
		return nil, false
	}
	flusher.Flush()
	return flusher, true
}

// writeEvent emits one SSE message. An empty name sends a default message.
func writeEvent(w io.Writer, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if name != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", name); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func writeHeartbeat(w io.Writer) error {
	_, err := io.WriteString(w, ": heartbeat\n\n")
	return err
}
