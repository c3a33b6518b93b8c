package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	donationdomain "github.com/Franc-dev/donate-artist/internal/donation/domain"
	"github.com/Franc-dev/donate-artist/internal/observability/logger"
)

func donationID(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		AbortWithError(c, invalidRequestError())
		return "", false
	}
	setPaymentReference(c, id)
	return id, true
}

// SubmitDonation starts a donation attempt. Field errors return 400 and
// leave no trace; any other accepted form answers 202 with the attempt.
func (s *Server) SubmitDonation(c *gin.Context) {
	var form donationdomain.Form
	if err := c.ShouldBindJSON(&form); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	view, err := s.donations.Submit(c.Request.Context(), form)
	setPaymentReference(c, view.ID)
	if err != nil {
		if errors.Is(err, donationdomain.ErrInitiationFailed) {
			logger.FromContext(c.Request.Context()).Warn("donation initiation failed", zap.Error(err))
		}
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, view)
}

func (s *Server) GetDonation(c *gin.Context) {
	id, ok := donationID(c)
	if !ok {
		return
	}
	view, err := s.donations.Get(id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// StreamDonationEvents replays and then follows the poll events of an
// attempt. The stream ends with an "attempt" event carrying the settled view.
func (s *Server) StreamDonationEvents(c *gin.Context) {
	id, ok := donationID(c)
	if !ok {
		return
	}
	events, unsubscribe, err := s.donations.Events(id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer unsubscribe()

	flusher, ok := startEventStream(c)
	if !ok {
		return
	}
	writer := c.Writer
	ctx := c.Request.Context()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-events:
			if !open {
				view, err := s.donations.Get(id)
				if err == nil {
					_ = writeEvent(writer, "attempt", view)
					flusher.Flush()
				}
				return
			}
			if err := writeEvent(writer, "poll", ev); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if err := writeHeartbeat(writer); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) CancelDonation(c *gin.Context) {
	id, ok := donationID(c)
	if !ok {
		return
	}
	view, err := s.donations.Cancel(id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) RetryDonation(c *gin.Context) {
	id, ok := donationID(c)
	if !ok {
		return
	}
	view, err := s.donations.Retry(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, view)
}

func (s *Server) DonationReceipt(c *gin.Context) {
	id, ok := donationID(c)
	if !ok {
		return
	}
	receipt, err := s.donations.Receipt(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.DataFromReader(http.StatusOK, -1, "application/pdf", receipt, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="donation-%s.pdf"`, id),
	})
}
