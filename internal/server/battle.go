package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	ledgerdomain "github.com/Franc-dev/donate-artist/internal/ledger/domain"
	ledgerservice "github.com/Franc-dev/donate-artist/internal/ledger/service"
	"github.com/Franc-dev/donate-artist/internal/ledgersync"
	"github.com/Franc-dev/donate-artist/internal/observability/logger"
	userdomain "github.com/Franc-dev/donate-artist/internal/user/domain"
)

const (
	redisCheckKey   = "test"
	redisCheckValue = "Hello Redis!"
)

// OnboardUser registers (or finds) the visitor by email and makes them the
// current user.
func (s *Server) OnboardUser(c *gin.Context) {
	var profile userdomain.Profile
	if err := c.ShouldBindJSON(&profile); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	user, err := s.users.Onboard(ctx, profile)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.state.SetCurrentUser(ctx, user); err != nil {
		logger.FromContext(ctx).Warn("persist current user failed", zap.Error(err))
	}
	c.JSON(http.StatusCreated, user)
}

func (s *Server) CastVote(c *gin.Context) {
	var req ledgerservice.CastVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.votes.CastVote(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SyncLedger pulls the remote ledger now. While a background run is active
// the last cached view is returned instead.
func (s *Server) SyncLedger(c *gin.Context) {
	snap, err := s.sync.RunOnce(c.Request.Context())
	if errors.Is(err, ledgersync.ErrRunInProgress) {
		snap = s.cachedSnapshot()
		err = nil
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) cachedSnapshot() ledgerdomain.Snapshot {
	st := s.state.Snapshot()
	snap := ledgerdomain.Snapshot{
		Artists:   st.Artists,
		Votes:     st.Votes,
		Donations: st.Donations,
		Timestamp: s.clock.Now().UTC(),
	}
	if st.LastSyncedAt != nil {
		snap.Timestamp = *st.LastSyncedAt
	}
	return snap
}

func (s *Server) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, s.state.Snapshot())
}

func (s *Server) DismissIntro(c *gin.Context) {
	if err := s.state.DismissIntro(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.state.Snapshot())
}

// TestRedis round-trips a check key through Redis.
func (s *Server) TestRedis(c *gin.Context) {
	ctx := c.Request.Context()
	value, err := s.roundTripRedis(c)
	if err != nil {
		logger.FromContext(ctx).Warn("redis round trip failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Redis connection failed",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Redis is working!",
		"testValue": value,
		"timestamp": s.clock.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) roundTripRedis(c *gin.Context) (string, error) {
	if s.redis == nil {
		return "", ErrServiceUnavailable
	}
	ctx := c.Request.Context()
	if err := s.redis.Set(ctx, redisCheckKey, redisCheckValue, time.Minute).Err(); err != nil {
		return "", err
	}
	value, err := s.redis.Get(ctx, redisCheckKey).Result()
	if err != nil {
		return "", err
	}
	if err := s.redis.Del(ctx, redisCheckKey).Err(); err != nil {
		return "", err
	}
	return value, nil
}

// ClearLedger resets the battle to zero.
func (s *Server) ClearLedger(c *gin.Context) {
	if err := s.admin.ClearAll(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
