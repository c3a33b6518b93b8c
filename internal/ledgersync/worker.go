package ledgersync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	appstateservice "github.com/Franc-dev/donate-artist/internal/appstate/service"
	"github.com/Franc-dev/donate-artist/internal/config"
	ledgerdomain "github.com/Franc-dev/donate-artist/internal/ledger/domain"
)

const (
	defaultInterval = 5 * time.Second
	runTimeout      = 10 * time.Second
)

// ErrRunInProgress is returned by RunOnce while another run is active.
var ErrRunInProgress = errors.New("ledger_sync_in_progress")

// Sink receives each fresh snapshot.
type Sink interface {
	ReplaceLedger(ctx context.Context, snap ledgerdomain.Snapshot) error
}

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Ledger ledgerdomain.Store
	State  *appstateservice.Store
}

type Worker struct {
	ledger   ledgerdomain.Store
	sink     Sink
	interval time.Duration
	log      *zap.Logger
	running  atomic.Bool
}

func New(p Params) *Worker {
	return NewWorker(p.Ledger, p.State, p.Config.Sync.Interval, p.Log)
}

func NewWorker(ledger ledgerdomain.Store, sink Sink, interval time.Duration, log *zap.Logger) *Worker {
	if interval <= 0 {
		interval = defaultInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		ledger:   ledger,
		sink:     sink,
		interval: interval,
		log:      log.Named("ledger.sync"),
	}
}

// RunOnce pulls the remote ledger and hands it to the sink. Overlapping calls
// return ErrRunInProgress without touching the ledger.
func (w *Worker) RunOnce(parent context.Context) (ledgerdomain.Snapshot, error) {
	if !w.running.CompareAndSwap(false, true) {
		return ledgerdomain.Snapshot{}, ErrRunInProgress
	}
	defer w.running.Store(false)

	ctx, cancel := context.WithTimeout(parent, runTimeout)
	defer cancel()

	snap, err := w.ledger.SyncFromRemote(ctx)
	if err != nil {
		return ledgerdomain.Snapshot{}, fmt.Errorf("sync from remote: %w", err)
	}
	if w.sink != nil {
		if err := w.sink.ReplaceLedger(ctx, snap); err != nil {
			return snap, fmt.Errorf("replace ledger: %w", err)
		}
	}
	w.log.Debug("ledger synced",
		zap.Int("votes", len(snap.Votes)),
		zap.Int("donations", len(snap.Donations)),
	)
	return snap, nil
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
			w.log.Warn("ledger sync failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
