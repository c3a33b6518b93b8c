package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	battledomain "github.com/Franc-dev/donate-artist/internal/battle/domain"
	"github.com/Franc-dev/donate-artist/internal/clock"
	"github.com/Franc-dev/donate-artist/internal/config"
	"github.com/Franc-dev/donate-artist/internal/donation/domain"
	gatewaydomain "github.com/Franc-dev/donate-artist/internal/gateway/domain"
	ledgerdomain "github.com/Franc-dev/donate-artist/internal/ledger/domain"
	"github.com/Franc-dev/donate-artist/internal/observability/metrics"
	"github.com/Franc-dev/donate-artist/internal/payment/poller"
	"github.com/Franc-dev/donate-artist/internal/providers/email"
	"github.com/Franc-dev/donate-artist/internal/providers/pdf"
	userdomain "github.com/Franc-dev/donate-artist/internal/user/domain"
)

const (
	attemptRetention = time.Hour
	writeTimeout     = 10 * time.Second
	callbackPath     = "/api/payments/callback"
)

// DonorRecorder applies the optimistic per-donor totals on submission.
type DonorRecorder interface {
	ApplyDonation(ctx context.Context, profile userdomain.Profile, amount float64) (*userdomain.User, error)
}

// DonorLocker allows one in-flight attempt per donor.
type DonorLocker interface {
	Acquire(ctx context.Context, donorKey string) (func(context.Context), bool, error)
}

type Params struct {
	fx.In

	Config    config.Config
	Log       *zap.Logger
	Clock     clock.Clock
	GenID     *snowflake.Node
	Gateway   gatewaydomain.Client
	Poller    *poller.Poller
	Ledger    ledgerdomain.Store
	Catalog   battledomain.Catalog
	Users     DonorRecorder
	DonorLock DonorLocker             `optional:"true"`
	Metrics   *metrics.PaymentMetrics `optional:"true"`
	Email     email.Notifier          `optional:"true"`
	Receipts  pdf.Provider            `optional:"true"`
}

// Coordinator drives donation attempts from form submission to a committed
// or discarded outcome. Attempts for different donors run concurrently;
// transitions within one attempt are serialised by the attempt's mutex.
type Coordinator struct {
	cfg       config.Config
	log       *zap.Logger
	clock     clock.Clock
	genID     *snowflake.Node
	gateway   gatewaydomain.Client
	poller    *poller.Poller
	ledger    ledgerdomain.Store
	catalog   battledomain.Catalog
	users     DonorRecorder
	donorLock DonorLocker
	metrics   *metrics.PaymentMetrics
	email     email.Notifier
	receipts  pdf.Provider

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.RWMutex
	attempts map[string]*attempt
}

func NewCoordinator(p Params) *Coordinator {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	mailer := p.Email
	if mailer == nil {
		mailer = email.Discard{}
	}
	receipts := p.Receipts
	if receipts == nil {
		receipts = pdf.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		cfg:       p.Config,
		log:       log.Named("donation.coordinator"),
		clock:     clk,
		genID:     p.GenID,
		gateway:   p.Gateway,
		poller:    p.Poller,
		ledger:    p.Ledger,
		catalog:   p.Catalog,
		users:     p.Users,
		donorLock: p.DonorLock,
		metrics:   p.Metrics,
		email:     mailer,
		receipts:  receipts,
		baseCtx:   ctx,
		stop:      cancel,
		attempts:  make(map[string]*attempt),
	}
}

// Close stops every running poll session and waits for their outcomes to be
// applied.
func (c *Coordinator) Close() {
	c.stop()
	c.wg.Wait()
}

// Submit validates form and starts a new attempt. Validation failures return
// domain.ValidationErrors with an idle view and no side effects.
func (c *Coordinator) Submit(ctx context.Context, form domain.Form) (domain.AttemptView, error) {
	if errs := domain.Validate(form); errs != nil {
		c.metrics.RecordDonation(string(form.PaymentMethod), metrics.DonationOutcomeRejected)
		return domain.AttemptView{State: domain.StateIdle}, errs
	}
	if c.baseCtx.Err() != nil {
		return domain.AttemptView{State: domain.StateIdle}, domain.ErrCoordinatorClosed
	}

	form = normalizeForm(form)
	artist, err := c.catalog.Artist(form.ArtistID)
	if err != nil {
		return domain.AttemptView{State: domain.StateIdle}, err
	}

	release, err := c.acquireDonor(ctx, form.DonorEmail)
	if err != nil {
		return domain.AttemptView{State: domain.StateIdle}, err
	}

	now := c.clock.Now().UTC()
	a := newAttempt(domain.AttemptView{
		ID:    c.genID.Generate().String(),
		State: domain.StateSubmitting,
		Donation: ledgerdomain.Donation{
			ArtistID:      artist.ID,
			ArtistName:    artist.Name,
			Amount:        form.Amount,
			DonorName:     form.DonorName,
			DonorEmail:    form.DonorEmail,
			Message:       form.Message,
			Status:        ledgerdomain.DonationPending,
			PaymentMethod: form.PaymentMethod,
			CreatedAt:     now,
		},
		UpdatedAt: now,
	}, release)
	a.view.Donation.ID = a.view.ID
	c.register(a, now)
	c.metrics.AttemptStarted()

	log := c.log.With(
		zap.String("donation_id", a.view.ID),
		zap.String("artist_id", artist.ID),
		zap.String("payment_method", string(form.PaymentMethod)),
	)
	log.Info("donation submitted", zap.Float64("amount", form.Amount))

	profile := userdomain.Profile{Name: form.DonorName, Email: form.DonorEmail, Phone: form.DonorPhone}
	if _, err := c.users.ApplyDonation(ctx, profile, form.Amount); err != nil {
		log.Warn("optimistic donor update failed", zap.Error(err))
	}

	a.setState(domain.StateAwaitingGateway, c.clock.Now())

	switch form.PaymentMethod {
	case ledgerdomain.PaymentPesapal:
		return c.initiateRedirect(ctx, a, form, log)
	default:
		return c.initiatePush(ctx, a, form, log)
	}
}

func (c *Coordinator) initiatePush(ctx context.Context, a *attempt, form domain.Form, log *zap.Logger) (domain.AttemptView, error) {
	res, err := c.gateway.InitiatePush(ctx, gatewaydomain.PushRequest{
		Amount:            form.Amount,
		PhoneNumber:       form.DonorPhone,
		ExternalReference: a.view.ID,
		CallbackURL:       c.cfg.BaseURL + callbackPath,
	})
	if err != nil {
		log.Warn("push initiation failed", zap.Error(err))
		view := c.finish(a, domain.StateDiscarded, "", "", domain.MessageInitiation, metrics.DonationOutcomeAborted)
		return view, fmt.Errorf("%w: %w", domain.ErrInitiationFailed, err)
	}
	if !res.Success {
		message := strings.TrimSpace(res.Message)
		if message == "" {
			message = domain.MessageInitiation
		}
		log.Info("push rejected by gateway", zap.String("message", message))
		return c.finish(a, domain.StateDiscarded, poller.StatusFailed, poller.OriginGateway, message, metrics.DonationOutcomeDiscarded), nil
	}

	a.mu.Lock()
	a.view.Donation.TransactionID = res.TransactionID
	a.mu.Unlock()

	log.Info("push accepted, polling", zap.String("transaction_id", res.TransactionID))
	return c.startPolling(a), nil
}

func (c *Coordinator) initiateRedirect(ctx context.Context, a *attempt, form domain.Form, log *zap.Logger) (domain.AttemptView, error) {
	first, last := splitName(form.DonorName)
	res, err := c.gateway.InitiateRedirect(ctx, gatewaydomain.RedirectRequest{
		Amount:      form.Amount,
		Currency:    c.cfg.Pesapal.Currency,
		Description: fmt.Sprintf("Donation to %s", a.view.Donation.ArtistName),
		Customer: gatewaydomain.Customer{
			Email:     form.DonorEmail,
			FirstName: first,
			LastName:  last,
			Phone:     form.DonorPhone,
		},
		CountryCode:       c.cfg.Pesapal.CountryCode,
		MerchantReference: a.view.ID,
	})
	if err != nil {
		log.Warn("redirect initiation failed", zap.Error(err))
		view := c.finish(a, domain.StateDiscarded, "", "", domain.MessageInitiation, metrics.DonationOutcomeAborted)
		return view, fmt.Errorf("%w: %w", domain.ErrInitiationFailed, err)
	}
	if res.OrderTrackingID == "" || res.RedirectURL == "" {
		log.Warn("redirect initiation returned no tracking id or redirect url")
		return c.finish(a, domain.StateDiscarded, poller.StatusFailed, poller.OriginGateway, domain.MessageInitiation, metrics.DonationOutcomeDiscarded), nil
	}

	a.mu.Lock()
	a.view.Donation.OrderTrackingID = res.OrderTrackingID
	a.view.RedirectURL = res.RedirectURL
	donation := a.view.Donation
	a.mu.Unlock()

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := c.ledger.AppendDonation(writeCtx, donation); err != nil {
		log.Error("append pending redirect donation failed", zap.Error(err))
	}

	log.Info("redirect payment started", zap.String("order_tracking_id", res.OrderTrackingID))
	return c.finish(a, domain.StateCommitted, poller.StatusProcessing, "", "Complete the payment on the Pesapal page", metrics.DonationOutcomeCommitted), nil
}

// startPolling begins the first poll session of an attempt, or retries the
// previous one on the same reference with a fresh deadline.
func (c *Coordinator) startPolling(a *attempt) domain.AttemptView {
	a.mu.Lock()
	previous, reference := a.session, a.view.ID
	a.mu.Unlock()

	var session *poller.Session
	if previous != nil {
		session = previous.Retry(c.baseCtx)
	} else {
		session = c.poller.Start(c.baseCtx, reference)
	}

	settled := make(chan struct{})

	a.mu.Lock()
	a.session = session
	a.settled = settled
	a.view.State = domain.StatePolling
	a.view.PaymentStatus = poller.StatusProcessing
	a.view.Origin = ""
	a.view.Message = "Check your phone and enter your M-Pesa PIN"
	a.view.UpdatedAt = c.clock.Now().UTC()
	a.history = nil
	view := a.view
	a.mu.Unlock()

	c.wg.Add(1)
	go c.watch(a, session, settled)
	return view
}

func (c *Coordinator) watch(a *attempt, session *poller.Session, settled chan struct{}) {
	defer c.wg.Done()
	defer close(settled)
	for ev := range session.Events() {
		a.publish(ev)
	}
	res := session.Wait()
	if res.Status == poller.StatusSuccess {
		c.commit(a, res)
		return
	}
	c.discard(a, res)
}

// commit records a settled payment. Only a polling attempt whose donation is
// still pending is committed.
func (c *Coordinator) commit(a *attempt, res poller.Result) {
	a.mu.Lock()
	if a.view.State != domain.StatePolling || a.view.Donation.Status.Terminal() {
		a.mu.Unlock()
		return
	}
	a.view.Donation.Status = ledgerdomain.DonationCompleted
	donation := a.view.Donation
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	log := c.log.With(zap.String("donation_id", donation.ID), zap.String("artist_id", donation.ArtistID))
	if err := c.ledger.IncrementArtistDonations(ctx, donation.ArtistID, donation.Amount); err != nil {
		log.Error("increment artist donations failed", zap.Error(err))
	}
	if err := c.ledger.AppendDonation(ctx, donation); err != nil {
		log.Error("append donation failed", zap.Error(err))
	}

	c.finish(a, domain.StateCommitted, res.Status, res.Origin, res.Message, metrics.DonationOutcomeCommitted)
	log.Info("donation committed", zap.Float64("amount", donation.Amount), zap.Int("attempts", res.Attempts))

	c.sendThanks(ctx, donation)
}

// discard ends an attempt without touching the ledger. A gateway verdict
// fails the donation; a local timeout or cancel leaves it pending so polling
// can be retried.
func (c *Coordinator) discard(a *attempt, res poller.Result) {
	a.mu.Lock()
	if a.view.State != domain.StatePolling {
		a.mu.Unlock()
		return
	}
	if res.Origin == poller.OriginGateway && !a.view.Donation.Status.Terminal() {
		a.view.Donation.Status = ledgerdomain.DonationFailed
	}
	a.mu.Unlock()

	c.finish(a, domain.StateDiscarded, res.Status, res.Origin, res.Message, metrics.DonationOutcomeDiscarded)
	c.log.Info("donation discarded",
		zap.String("donation_id", res.Reference),
		zap.String("status", string(res.Status)),
		zap.String("origin", string(res.Origin)),
	)
}

func (c *Coordinator) finish(a *attempt, state domain.State, status poller.Status, origin poller.Origin, message, outcome string) domain.AttemptView {
	a.mu.Lock()
	a.view.State = state
	a.view.PaymentStatus = status
	a.view.Origin = origin
	a.view.Message = message
	a.view.UpdatedAt = c.clock.Now().UTC()
	a.finishedAt = a.view.UpdatedAt
	a.closeWatchers()
	release := a.release
	a.release = nil
	method := string(a.view.Donation.PaymentMethod)
	view := a.view
	a.mu.Unlock()

	if release != nil {
		release(context.Background())
	}
	c.metrics.AttemptFinished()
	c.metrics.RecordDonation(method, outcome)
	return view
}

// Cancel stops polling on the user's behalf.
func (c *Coordinator) Cancel(id string) (domain.AttemptView, error) {
	a, err := c.lookup(id)
	if err != nil {
		return domain.AttemptView{}, err
	}
	a.mu.Lock()
	if a.view.State != domain.StatePolling || a.session == nil {
		a.mu.Unlock()
		return domain.AttemptView{}, domain.ErrNotPolling
	}
	session, settled := a.session, a.settled
	a.mu.Unlock()

	session.Cancel()
	<-settled
	return c.Get(id)
}

// Retry restarts polling on the same reference with a fresh deadline. Only
// attempts that ended without a gateway verdict can be retried.
func (c *Coordinator) Retry(ctx context.Context, id string) (domain.AttemptView, error) {
	a, err := c.lookup(id)
	if err != nil {
		return domain.AttemptView{}, err
	}
	if c.baseCtx.Err() != nil {
		return domain.AttemptView{}, domain.ErrCoordinatorClosed
	}

	a.mu.Lock()
	retryable := a.retryableLocked()
	donorEmail := a.view.Donation.DonorEmail
	a.mu.Unlock()
	if !retryable {
		return domain.AttemptView{}, domain.ErrRetryNotAllowed
	}

	release, err := c.acquireDonor(ctx, donorEmail)
	if err != nil {
		return domain.AttemptView{}, err
	}

	a.mu.Lock()
	if !a.retryableLocked() {
		a.mu.Unlock()
		release(context.Background())
		return domain.AttemptView{}, domain.ErrRetryNotAllowed
	}
	a.release = release
	a.finishedAt = time.Time{}
	a.mu.Unlock()

	c.metrics.AttemptStarted()
	c.log.Info("donation polling retried", zap.String("donation_id", id))
	return c.startPolling(a), nil
}

func (c *Coordinator) Get(id string) (domain.AttemptView, error) {
	a, err := c.lookup(id)
	if err != nil {
		return domain.AttemptView{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view, nil
}

// Events streams poll events for an attempt, replaying those already seen.
// The channel is closed when the current poll session ends. The returned
// func unsubscribes.
func (c *Coordinator) Events(id string) (<-chan poller.Event, func(), error) {
	a, err := c.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	ch, unsubscribe := a.subscribe()
	return ch, unsubscribe, nil
}

// Receipt renders a PDF receipt for a completed donation, falling back to the
// ledger for attempts no longer held in memory.
func (c *Coordinator) Receipt(ctx context.Context, id string) (io.Reader, error) {
	donation, err := c.completedDonation(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.receipts.GenerateReceipt(ctx, receiptData(donation, c.cfg.Pesapal.Currency))
}

func (c *Coordinator) completedDonation(ctx context.Context, id string) (ledgerdomain.Donation, error) {
	if a, err := c.lookup(id); err == nil {
		a.mu.Lock()
		donation := a.view.Donation
		a.mu.Unlock()
		if donation.Status != ledgerdomain.DonationCompleted {
			return ledgerdomain.Donation{}, domain.ErrReceiptUnavailable
		}
		return donation, nil
	}

	snap, err := c.ledger.SyncFromRemote(ctx)
	if err != nil {
		return ledgerdomain.Donation{}, err
	}
	for _, d := range snap.Donations {
		if d.ID != id {
			continue
		}
		if d.Status != ledgerdomain.DonationCompleted {
			return ledgerdomain.Donation{}, domain.ErrReceiptUnavailable
		}
		return d, nil
	}
	return ledgerdomain.Donation{}, domain.ErrAttemptNotFound
}

func (c *Coordinator) sendThanks(ctx context.Context, donation ledgerdomain.Donation) {
	err := c.email.SendDonationThanks(ctx, donation.DonorEmail, email.DonationThanks{
		DonorName:     donation.DonorName,
		ArtistName:    donation.ArtistName,
		Amount:        formatAmount(c.cfg.Pesapal.Currency, donation.Amount),
		TransactionID: donation.TransactionID,
		ReceiptNumber: donation.ID,
	})
	if err != nil {
		c.log.Warn("donor thank-you email failed", zap.String("donation_id", donation.ID), zap.Error(err))
	}
}

func (c *Coordinator) acquireDonor(ctx context.Context, donorEmail string) (func(context.Context), error) {
	noop := func(context.Context) {}
	if c.donorLock == nil {
		return noop, nil
	}
	release, ok, err := c.donorLock.Acquire(ctx, donorEmail)
	if err != nil {
		c.log.Warn("donor lock unavailable, continuing without it", zap.Error(err))
		return noop, nil
	}
	if !ok {
		return nil, domain.ErrAttemptInFlight
	}
	return release, nil
}

func (c *Coordinator) register(a *attempt, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, existing := range c.attempts {
		if existing.expired(now, attemptRetention) {
			delete(c.attempts, id)
		}
	}
	c.attempts[a.view.ID] = a
}

func (c *Coordinator) lookup(id string) (*attempt, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.attempts[strings.TrimSpace(id)]
	if !ok {
		return nil, domain.ErrAttemptNotFound
	}
	return a, nil
}

func normalizeForm(f domain.Form) domain.Form {
	f.ArtistID = strings.TrimSpace(f.ArtistID)
	f.DonorName = strings.TrimSpace(f.DonorName)
	f.DonorEmail = strings.ToLower(strings.TrimSpace(f.DonorEmail))
	f.Message = strings.TrimSpace(f.Message)
	if f.PaymentMethod == ledgerdomain.PaymentMpesa {
		f.DonorPhone = domain.NormalizePhone(f.DonorPhone)
	} else {
		f.DonorPhone = strings.TrimSpace(f.DonorPhone)
	}
	return f
}

func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

func formatAmount(currency string, amount float64) string {
	if currency == "" {
		currency = "KES"
	}
	return fmt.Sprintf("%s %.2f", currency, amount)
}

func receiptData(d ledgerdomain.Donation, currency string) pdf.ReceiptData {
	reference := d.TransactionID
	if reference == "" {
		reference = d.OrderTrackingID
	}
	return pdf.ReceiptData{
		ReceiptNumber: d.ID,
		DatePaid:      d.CreatedAt.Format("2006-01-02 15:04"),
		DonorName:     d.DonorName,
		DonorEmail:    d.DonorEmail,
		ArtistName:    d.ArtistName,
		Message:       d.Message,
		PaymentMethod: string(d.PaymentMethod),
		TransactionID: reference,
		Amount:        formatAmount(currency, d.Amount),
	}
}

// IsValidation reports whether err carries field errors.
func IsValidation(err error) (domain.ValidationErrors, bool) {
	var v domain.ValidationErrors
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}
