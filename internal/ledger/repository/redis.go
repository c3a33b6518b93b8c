package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	battledomain "github.com/Franc-dev/donate-artist/internal/battle/domain"
	"github.com/Franc-dev/donate-artist/internal/clock"
	ledgerdomain "github.com/Franc-dev/donate-artist/internal/ledger/domain"
	"github.com/Franc-dev/donate-artist/internal/observability/metrics"
)

const (
	keyVotes             = "votes"
	keyDonations         = "donations"
	keyArtistVotes       = "artist:%s:votes"
	keyArtistDonations   = "artist:%s:donations"
	keyArtistDonors      = "artist:%s:donors"
	keyBattleActiveVotes = "battle:%s:active_votes"

	scanBatch = 200
)

// RedisStore keeps the vote and donation logs in Redis lists and the
// per-artist counters in plain keys updated with INCRBY/INCRBYFLOAT.
type RedisStore struct {
	client  *redis.Client
	catalog battledomain.Catalog
	clock   clock.Clock
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewRedisStore(client *redis.Client, catalog battledomain.Catalog, clk clock.Clock, m *metrics.Metrics, log *zap.Logger) *RedisStore {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisStore{
		client:  client,
		catalog: catalog,
		clock:   clk,
		metrics: m,
		log:     log.Named("ledger.redis"),
	}
}

func (s *RedisStore) AppendVote(ctx context.Context, vote ledgerdomain.Vote) error {
	payload, err := json.Marshal(vote)
	if err != nil {
		return err
	}
	if err := s.client.RPush(ctx, keyVotes, payload).Err(); err != nil {
		return fmt.Errorf("append vote: %w", err)
	}
	s.metrics.RecordLedgerWrite(ctx, "vote")
	return nil
}

func (s *RedisStore) AppendDonation(ctx context.Context, donation ledgerdomain.Donation) error {
	payload, err := json.Marshal(donation)
	if err != nil {
		return err
	}
	if err := s.client.RPush(ctx, keyDonations, payload).Err(); err != nil {
		return fmt.Errorf("append donation: %w", err)
	}
	s.metrics.RecordLedgerWrite(ctx, "donation")
	return nil
}

func (s *RedisStore) IncrementArtistVotes(ctx context.Context, artistID string, delta int64) error {
	artistID = strings.TrimSpace(artistID)
	if artistID == "" {
		return ledgerdomain.ErrInvalidArtist
	}
	if err := s.client.IncrBy(ctx, fmt.Sprintf(keyArtistVotes, artistID), delta).Err(); err != nil {
		return fmt.Errorf("increment artist votes: %w", err)
	}
	return nil
}

// IncrementArtistDonations bumps the donation total and donor count in one
// MULTI block.
func (s *RedisStore) IncrementArtistDonations(ctx context.Context, artistID string, amount float64) error {
	artistID = strings.TrimSpace(artistID)
	if artistID == "" {
		return ledgerdomain.ErrInvalidArtist
	}
	if amount <= 0 {
		return ledgerdomain.ErrInvalidAmount
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.IncrByFloat(ctx, fmt.Sprintf(keyArtistDonations, artistID), amount)
		pipe.Incr(ctx, fmt.Sprintf(keyArtistDonors, artistID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("increment artist donations: %w", err)
	}
	return nil
}

// GetUserVote returns the most recent logged vote by userID for artistID.
func (s *RedisStore) GetUserVote(ctx context.Context, artistID, userID string) (*ledgerdomain.Vote, error) {
	votes, err := s.GetUserVotes(ctx, artistID, userID)
	if err != nil {
		return nil, err
	}
	if len(votes) == 0 {
		return nil, nil
	}
	v := votes[len(votes)-1]
	return &v, nil
}

func (s *RedisStore) GetUserVotes(ctx context.Context, artistID, userID string) ([]ledgerdomain.Vote, error) {
	votes, err := s.readVotes(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ledgerdomain.Vote, 0)
	for _, v := range votes {
		if v.ArtistID == artistID && v.UserID == userID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *RedisStore) ActiveVote(ctx context.Context, battleID, userID string) (*ledgerdomain.Vote, error) {
	raw, err := s.client.HGet(ctx, fmt.Sprintf(keyBattleActiveVotes, battleID), userID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read active vote: %w", err)
	}
	var v ledgerdomain.Vote
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("decode active vote: %w", err)
	}
	return &v, nil
}

// RecordVote logs vote, moves the artist counters and makes vote the user's
// active vote in one MULTI/EXEC. When previous is set its weight is retracted
// in the same transaction.
func (s *RedisStore) RecordVote(ctx context.Context, battleID string, vote ledgerdomain.Vote, previous *ledgerdomain.Vote) error {
	if strings.TrimSpace(vote.ArtistID) == "" {
		return ledgerdomain.ErrInvalidArtist
	}
	payload, err := json.Marshal(vote)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if previous != nil {
			pipe.IncrBy(ctx, fmt.Sprintf(keyArtistVotes, previous.ArtistID), -previous.Type.Weight())
		}
		pipe.RPush(ctx, keyVotes, payload)
		pipe.IncrBy(ctx, fmt.Sprintf(keyArtistVotes, vote.ArtistID), vote.Type.Weight())
		pipe.HSet(ctx, fmt.Sprintf(keyBattleActiveVotes, battleID), vote.UserID, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record vote: %w", err)
	}
	s.metrics.RecordLedgerWrite(ctx, "vote")
	return nil
}

// ClearAll drops both logs, every artist counter, and every active-vote index.
func (s *RedisStore) ClearAll(ctx context.Context) error {
	if err := s.client.Del(ctx, keyVotes, keyDonations).Err(); err != nil {
		return fmt.Errorf("clear logs: %w", err)
	}
	for _, pattern := range []string{"artist:*", fmt.Sprintf(keyBattleActiveVotes, "*")} {
		if err := s.deleteMatching(ctx, pattern); err != nil {
			return err
		}
	}
	s.log.Warn("ledger cleared")
	return nil
}

func (s *RedisStore) deleteMatching(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete %s: %w", pattern, err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// SyncFromRemote reads the full remote view. Artists come from the catalog
// with their counters overlaid.
func (s *RedisStore) SyncFromRemote(ctx context.Context) (ledgerdomain.Snapshot, error) {
	votes, err := s.readVotes(ctx)
	if err != nil {
		return ledgerdomain.Snapshot{}, err
	}
	donations, err := s.readDonations(ctx)
	if err != nil {
		return ledgerdomain.Snapshot{}, err
	}

	var artists []battledomain.Artist
	if s.catalog != nil {
		artists = s.catalog.Artists()
	}
	if len(artists) > 0 {
		keys := make([]string, 0, len(artists)*3)
		for _, a := range artists {
			keys = append(keys,
				fmt.Sprintf(keyArtistVotes, a.ID),
				fmt.Sprintf(keyArtistDonations, a.ID),
				fmt.Sprintf(keyArtistDonors, a.ID),
			)
		}
		values, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return ledgerdomain.Snapshot{}, fmt.Errorf("read artist counters: %w", err)
		}
		for i := range artists {
			artists[i].Votes = int64(parseNumber(values[i*3]))
			artists[i].TotalDonations = parseNumber(values[i*3+1])
			artists[i].DonorCount = int64(parseNumber(values[i*3+2]))
		}
	}

	return ledgerdomain.Snapshot{
		Artists:   artists,
		Votes:     votes,
		Donations: donations,
		Timestamp: s.clock.Now(),
	}, nil
}

func (s *RedisStore) readVotes(ctx context.Context) ([]ledgerdomain.Vote, error) {
	raw, err := s.client.LRange(ctx, keyVotes, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read votes: %w", err)
	}
	out := make([]ledgerdomain.Vote, 0, len(raw))
	for _, item := range raw {
		var v ledgerdomain.Vote
		if err := json.Unmarshal([]byte(item), &v); err != nil {
			s.log.Warn("skipping malformed vote", zap.Error(err))
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *RedisStore) readDonations(ctx context.Context) ([]ledgerdomain.Donation, error) {
	raw, err := s.client.LRange(ctx, keyDonations, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read donations: %w", err)
	}
	out := make([]ledgerdomain.Donation, 0, len(raw))
	for _, item := range raw {
		var d ledgerdomain.Donation
		if err := json.Unmarshal([]byte(item), &d); err != nil {
			s.log.Warn("skipping malformed donation", zap.Error(err))
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func parseNumber(v interface{}) float64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

var (
	_ ledgerdomain.Store           = (*RedisStore)(nil)
	_ ledgerdomain.ActiveVoteIndex = (*RedisStore)(nil)
)

// Ping reports whether Redis answers within timeout.
func (s *RedisStore) Ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}
