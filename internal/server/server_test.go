package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/Franc-dev/donate-artist/internal/admin"
	appstaterepo "github.com/Franc-dev/donate-artist/internal/appstate/repository"
	appstateservice "github.com/Franc-dev/donate-artist/internal/appstate/service"
	"github.com/Franc-dev/donate-artist/internal/authorization"
	"github.com/Franc-dev/donate-artist/internal/clock"
	"github.com/Franc-dev/donate-artist/internal/config"
	donationdomain "github.com/Franc-dev/donate-artist/internal/donation/domain"
	donationservice "github.com/Franc-dev/donate-artist/internal/donation/service"
	gatewaydomain "github.com/Franc-dev/donate-artist/internal/gateway/domain"
	ledgerdomain "github.com/Franc-dev/donate-artist/internal/ledger/domain"
	ledgerrepo "github.com/Franc-dev/donate-artist/internal/ledger/repository"
	ledgerservice "github.com/Franc-dev/donate-artist/internal/ledger/service"
	"github.com/Franc-dev/donate-artist/internal/ledgersync"
	"github.com/Franc-dev/donate-artist/internal/migration"
	"github.com/Franc-dev/donate-artist/internal/observability"
	"github.com/Franc-dev/donate-artist/internal/payment/callback"
	"github.com/Franc-dev/donate-artist/internal/payment/poller"
	paymentrepo "github.com/Franc-dev/donate-artist/internal/payment/repository"
	"github.com/Franc-dev/donate-artist/internal/payment/status"
	"github.com/Franc-dev/donate-artist/internal/payment/statusbus"
	"github.com/Franc-dev/donate-artist/internal/ratelimit"
	userrepo "github.com/Franc-dev/donate-artist/internal/user/repository"
	userservice "github.com/Franc-dev/donate-artist/internal/user/service"
)

const adminToken = "letmein"

var testNow = time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)

// fakeGateway accepts pushes and answers status queries with a fixed status.
type fakeGateway struct {
	mu          sync.Mutex
	pushErr     error
	queryStatus string
	pushes      []gatewaydomain.PushRequest
}

func (g *fakeGateway) InitiatePush(_ context.Context, req gatewaydomain.PushRequest) (gatewaydomain.PushResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pushes = append(g.pushes, req)
	if g.pushErr != nil {
		return gatewaydomain.PushResult{}, g.pushErr
	}
	return gatewaydomain.PushResult{Success: true, TransactionID: "T-1"}, nil
}

func (g *fakeGateway) QueryByReference(context.Context, string) (gatewaydomain.StatusResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.queryStatus
	if s == "" {
		s = "pending"
	}
	return gatewaydomain.StatusResult{Success: true, Data: &gatewaydomain.StatusData{Status: s}}, nil
}

func (g *fakeGateway) InitiateRedirect(_ context.Context, req gatewaydomain.RedirectRequest) (gatewaydomain.RedirectResult, error) {
	return gatewaydomain.RedirectResult{
		OrderTrackingID:   "OT-1",
		RedirectURL:       "https://pay.example.com/OT-1",
		MerchantReference: req.MerchantReference,
	}, nil
}

func (g *fakeGateway) Verify(context.Context, string) (gatewaydomain.StatusResult, error) {
	return gatewaydomain.StatusResult{Success: true, Data: &gatewaydomain.StatusData{Status: "COMPLETED"}}, nil
}

type testEnv struct {
	server  *Server
	gateway *fakeGateway
	store   *ledgerrepo.RedisStore
	coord   *donationservice.Coordinator
}

type envOptions struct {
	adminHash string
	rateLimit config.RateLimitConfig
}

func newTestEnv(t *testing.T, gw *fakeGateway, opts envOptions) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migration.Run(db, config.Config{DBType: "sqlite"}))

	cfg := config.Config{
		BaseURL:   "http://localhost:8080",
		Pesapal:   config.PesapalConfig{Currency: "KES", CountryCode: "KE"},
		Admin:     config.AdminConfig{TokenHash: opts.adminHash},
		RateLimit: opts.rateLimit,
	}
	clk := clock.NewFakeClock(testNow)
	catalog := config.NewStaticCatalog(config.DefaultBattleCatalog(testNow))
	store := ledgerrepo.NewRedisStore(client, catalog, clk, nil, log)

	bus := statusbus.New(client, log)
	callbacks := callback.NewService(callback.Params{
		DB: db, Log: log, Repo: paymentrepo.Provide(), Publisher: bus, Clock: clk, Cfg: cfg,
	})
	source := status.NewService(status.Params{
		DB: db, Log: log, Repo: paymentrepo.Provide(), Gateway: gw, Clock: clk,
	})
	users := userservice.NewService(userservice.Params{DB: db, Log: log, Repo: userrepo.Provide(), Clock: clk})
	state := appstateservice.NewStore(appstateservice.Params{
		DB: db, Log: log, Repo: appstaterepo.Provide(), Catalog: catalog, Clock: clk,
	})
	votes := ledgerservice.NewService(ledgerservice.Params{
		Index: store, Locker: ratelimit.NewLocker(client), Catalog: catalog, Clock: clk, Log: log, Users: users,
	})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	coord := donationservice.NewCoordinator(donationservice.Params{
		Config:    cfg,
		Log:       log,
		Clock:     clk,
		GenID:     node,
		Gateway:   gw,
		Poller:    poller.New(source, clk, poller.DefaultConfig(), nil, log),
		Ledger:    store,
		Catalog:   catalog,
		Users:     users,
		DonorLock: ratelimit.NewDonorLock(cfg, client, log),
	})
	t.Cleanup(coord.Close)

	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{Config: cfg, Log: log, Enforcer: enforcer})

	srv := NewServer(ServerParams{
		Gin:       NewEngine(observability.Config{Environment: "test"}, nil),
		Cfg:       cfg,
		Log:       log,
		Clock:     clk,
		Redis:     client,
		Gateway:   gw,
		Callbacks: callbacks,
		Status:    source,
		StatusBus: bus,
		Donations: coord,
		Users:     users,
		Votes:     votes,
		Sync:      ledgersync.NewWorker(store, state, time.Second, log),
		State:     state,
		Admin: admin.New(store, log,
			admin.Step{Name: "callbacks", Resetter: callbacks},
			admin.Step{Name: "users", Resetter: users},
			admin.Step{Name: "app_state", Resetter: state},
		),
		Authz:   authz,
		Limiter: ratelimit.NewDonationLimiter(cfg, client),
	})
	return testEnv{server: srv, gateway: gw, store: store, coord: coord}
}

func (e testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.server.Engine().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func donationForm() donationdomain.Form {
	return donationdomain.Form{
		ArtistID:      "1",
		Amount:        500,
		DonorName:     "Asha",
		DonorEmail:    "asha@example.com",
		DonorPhone:    "+254 712 345 678",
		PaymentMethod: ledgerdomain.PaymentMpesa,
	}
}

func waitForDonationState(t *testing.T, e testEnv, id string, want donationdomain.State) donationdomain.AttemptView {
	t.Helper()
	var view donationdomain.AttemptView
	require.Eventually(t, func() bool {
		rec := e.do(t, http.MethodGet, "/api/donations/"+id, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		view = decode[donationdomain.AttemptView](t, rec)
		return view.State == want
	}, 3*time.Second, 5*time.Millisecond)
	return view
}

func TestHealthAndUnknownRoute(t *testing.T) {
	env := newTestEnv(t, &fakeGateway{}, envOptions{})

	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[errorResponse](t, rec).Error.Type)
}

func TestSubmitDonationRejectsInvalidForm(t *testing.T) {
	gw := &fakeGateway{}
	env := newTestEnv(t, gw, envOptions{})
	form := donationForm()
	form.Amount = 5
	form.DonorEmail = "not-an-email"

	rec := env.do(t, http.MethodPost, "/api/donations", form)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[errorResponse](t, rec)
	assert.Equal(t, "validation_error", resp.Error.Type)
	require.Len(t, resp.Error.Errors, 2)
	assert.Equal(t, ValidationError{Field: "amount", Code: "invalid_amount", Message: donationdomain.MessageMinimumAmount}, resp.Error.Errors[0])
	assert.Equal(t, "donorEmail", resp.Error.Errors[1].Field)
	assert.Empty(t, gw.pushes)
}

func TestSubmitDonationCommitsAndServesReceipt(t *testing.T) {
	gw := &fakeGateway{queryStatus: "completed"}
	env := newTestEnv(t, gw, envOptions{})

	rec := env.do(t, http.MethodPost, "/api/donations", donationForm())
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	view := decode[donationdomain.AttemptView](t, rec)
	require.NotEmpty(t, view.ID)

	committed := waitForDonationState(t, env, view.ID, donationdomain.StateCommitted)
	assert.Equal(t, ledgerdomain.DonationCompleted, committed.Donation.Status)
	require.Len(t, gw.pushes, 1)
	assert.Equal(t, "254712345678", gw.pushes[0].PhoneNumber)
	assert.Equal(t, view.ID, gw.pushes[0].ExternalReference)

	rec = env.do(t, http.MethodGet, "/api/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[ledgerdomain.Snapshot](t, rec)
	require.Len(t, snap.Donations, 1)
	assert.Equal(t, ledgerdomain.DonationCompleted, snap.Donations[0].Status)
	for _, artist := range snap.Artists {
		if artist.ID == "1" {
			assert.InDelta(t, 500, artist.TotalDonations, 0.001)
		}
	}

	rec = env.do(t, http.MethodGet, "/api/donations/"+view.ID+"/receipt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = env.do(t, http.MethodGet, "/api/donations/"+view.ID+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "event: poll\n")
	assert.Contains(t, body, "event: attempt\n")
	assert.Contains(t, body, `"state":"committed"`)
}

func TestSubmitDonationTransportFailure(t *testing.T) {
	gw := &fakeGateway{pushErr: gatewaydomain.TransportError("payhero.push", nil)}
	env := newTestEnv(t, gw, envOptions{})

	rec := env.do(t, http.MethodPost, "/api/donations", donationForm())

	require.Equal(t, http.StatusBadGateway, rec.Code)
	resp := decode[errorResponse](t, rec)
	assert.Equal(t, "payment_initiation_failed", resp.Error.Type)
	assert.Equal(t, donationdomain.MessageInitiation, resp.Error.Message)
}

func TestCancelThenRetryDonation(t *testing.T) {
	gw := &fakeGateway{}
	env := newTestEnv(t, gw, envOptions{})

	rec := env.do(t, http.MethodPost, "/api/donations", donationForm())
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode[donationdomain.AttemptView](t, rec).ID

	// With a fake clock the pending poll runs straight into its deadline.
	timedOut := waitForDonationState(t, env, id, donationdomain.StateDiscarded)
	assert.Equal(t, poller.StatusTimeout, timedOut.PaymentStatus)

	rec = env.do(t, http.MethodPost, "/api/donations/"+id+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	gw.mu.Lock()
	gw.queryStatus = "completed"
	gw.mu.Unlock()

	rec = env.do(t, http.MethodPost, "/api/donations/"+id+"/retry", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	waitForDonationState(t, env, id, donationdomain.StateCommitted)

	rec = env.do(t, http.MethodPost, "/api/donations/"+id+"/retry", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUnknownDonationIsNotFound(t *testing.T) {
	env := newTestEnv(t, &fakeGateway{}, envOptions{})

	rec := env.do(t, http.MethodGet, "/api/donations/123", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDonationRateLimit(t *testing.T) {
	env := newTestEnv(t, &fakeGateway{}, envOptions{
		rateLimit: config.RateLimitConfig{Enabled: true, DonationRate: 0.001, DonationBurst: 1},
	})
	form := donationForm()
	form.Amount = 1

	rec := env.do(t, http.MethodPost, "/api/donations", form)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/donations", form)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decode[errorResponse](t, rec).Error.Type)
}

func TestCheckStatusPrefersRecordedCallback(t *testing.T) {
	env := newTestEnv(t, &fakeGateway{}, envOptions{})

	rec := env.do(t, http.MethodGet, "/api/payments/check-status", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "reference", decode[errorResponse](t, rec).Error.Errors[0].Field)

	rec = env.do(t, http.MethodGet, "/api/payments/check-status?reference=ref-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pending", decode[map[string]any](t, rec)["status"])

	rec = env.do(t, http.MethodPost, "/api/payments/callback",
		`{"response":{"CheckoutRequestID":"ws_CO_1","ResultCode":0,"ResultDesc":"ok","ExternalReference":"ref-1"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	ack := decode[callback.Ack](t, rec)
	assert.Equal(t, callback.AckMessage, ack.Message)
	assert.Equal(t, "completed", ack.PaymentStatus)

	rec = env.do(t, http.MethodGet, "/api/payments/check-status?reference=ref-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[map[string]any](t, rec)
	assert.Equal(t, "completed", report["status"])
	assert.Equal(t, "ref-1", report["reference"])
}

func TestPaymentCallbackAlwaysAcknowledges(t *testing.T) {
	env := newTestEnv(t, &fakeGateway{}, envOptions{})

	rec := env.do(t, http.MethodPost, "/api/payments/callback", "not json")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[callback.Ack](t, rec).Success)
}

func TestStreamPaymentStatusRelaysCallback(t *testing.T) {
	env := newTestEnv(t, &fakeGateway{}, envOptions{})
	ts := httptest.NewServer(env.server.Engine())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/api/payments/status-stream?reference=ref-7")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	nextData := func() string {
		for lines.Scan() {
			if line := lines.Text(); strings.HasPrefix(line, "data: ") {
				return strings.TrimPrefix(line, "data: ")
			}
		}
		return ""
	}
	assert.JSONEq(t, `{"status":"connected","reference":"ref-7"}`, nextData())

	cb, err := http.Post(ts.URL+"/api/payments/callback", "application/json",
		strings.NewReader(`{"CheckoutRequestID":"ws_CO_7","ResultCode":1,"ResultDesc":"insufficient","ExternalReference":"ref-7"}`))
	require.NoError(t, err)
	_ = cb.Body.Close()

	var event map[string]any
	require.NoError(t, json.Unmarshal([]byte(nextData()), &event))
	assert.Equal(t, "failed", event["status"])
	assert.Equal(t, "Insufficient funds", event["message"])
	assert.Equal(t, "ref-7", event["reference"])
}

func TestStreamPaymentStatusRequiresReference(t *testing.T) {
	env := newTestEnv(t, &fakeGateway{}, envOptions{})

	rec := env.do(t, http.MethodGet, "/api/payments/status-stream", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPassthroughEndpoints(t *testing.T) {
	env := newTestEnv(t, &fakeGateway{}, envOptions{})

	rec := env.do(t, http.MethodPost, "/api/payments/stk-push",
		gatewaydomain.PushRequest{Amount: 100, PhoneNumber: "254712345678", ExternalReference: "ext-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[gatewaydomain.PushResult](t, rec).Success)

	rec = env.do(t, http.MethodPost, "/api/payments/stk-push", gatewaydomain.PushRequest{Amount: 100})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/payments/pesapal-initiate", gatewaydomain.RedirectRequest{
		Amount:   100,
		Customer: gatewaydomain.Customer{Email: "b@example.com", FirstName: "B"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OT-1", decode[gatewaydomain.RedirectResult](t, rec).OrderTrackingID)

	rec = env.do(t, http.MethodGet, "/api/payments/pesapal-verify", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Order tracking ID is required", decode[errorResponse](t, rec).Error.Errors[0].Message)

	rec = env.do(t, http.MethodGet, "/api/payments/pesapal-verify?orderTrackingId=OT-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOnboardVoteAndState(t *testing.T) {
	env := newTestEnv(t, &fakeGateway{}, envOptions{})

	rec := env.do(t, http.MethodPost, "/api/users", map[string]string{"name": "Wanjiku", "email": "w@example.com"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	user := decode[map[string]any](t, rec)
	userID, _ := user["id"].(string)
	require.NotEmpty(t, userID)

	rec = env.do(t, http.MethodPost, "/api/votes", ledgerservice.CastVoteRequest{UserID: userID, ArtistID: "1", Type: ledgerdomain.VoteUp})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, ledgerservice.VoteCreated, decode[ledgerservice.CastVoteResult](t, rec).Outcome)

	rec = env.do(t, http.MethodPost, "/api/votes", ledgerservice.CastVoteRequest{UserID: userID, ArtistID: "1", Type: "sideways"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "type", decode[errorResponse](t, rec).Error.Errors[0].Field)

	rec = env.do(t, http.MethodGet, "/api/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[ledgerdomain.Snapshot](t, rec)
	require.Len(t, snap.Votes, 1)

	rec = env.do(t, http.MethodGet, "/api/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	state := decode[map[string]any](t, rec)
	current, ok := state["currentUser"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "w@example.com", current["email"])
	assert.Len(t, state["votes"], 1)
}

func TestRedisRoundTrip(t *testing.T) {
	env := newTestEnv(t, &fakeGateway{}, envOptions{})

	rec := env.do(t, http.MethodGet, "/api/test-redis", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, redisCheckValue, body["testValue"])
}

func TestAdminClear(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte(adminToken), bcrypt.MinCost)
	require.NoError(t, err)
	env := newTestEnv(t, &fakeGateway{}, envOptions{adminHash: string(hash)})
	ctx := context.Background()
	require.NoError(t, env.store.IncrementArtistVotes(ctx, "1", 4))

	rec := env.do(t, http.MethodPost, "/api/admin/clear", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/admin/clear", nil, HeaderAdminToken, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/admin/clear", nil, HeaderAdminToken, adminToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	snap, err := env.store.SyncFromRemote(ctx)
	require.NoError(t, err)
	for _, artist := range snap.Artists {
		assert.Zero(t, artist.Votes)
	}
}

func TestAdminClearDisabledWithoutHash(t *testing.T) {
	env := newTestEnv(t, &fakeGateway{}, envOptions{})

	rec := env.do(t, http.MethodPost, "/api/admin/clear", nil, HeaderAdminToken, adminToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
