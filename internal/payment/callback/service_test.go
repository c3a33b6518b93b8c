package callback

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Franc-dev/donate-artist/internal/clock"
	"github.com/Franc-dev/donate-artist/internal/config"
	"github.com/Franc-dev/donate-artist/internal/payment/domain"
	"github.com/Franc-dev/donate-artist/internal/payment/repository"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.StatusEvent
}

func (r *recordingPublisher) Publish(_ context.Context, ev domain.StatusEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func newTestService(t *testing.T, secret string) (*Service, *gorm.DB, *recordingPublisher) {
	t.Helper()
	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.CallbackRecord{}))

	pub := &recordingPublisher{}
	svc := NewService(Params{
		DB:        db,
		Log:       zap.NewNop(),
		Repo:      repository.Provide(),
		Publisher: pub,
		Clock:     clock.NewFakeClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)),
		Cfg:       config.Config{PayHero: config.PayHeroConfig{WebhookSecret: secret}},
	})
	return svc, db, pub
}

func TestIngestWrappedPayload(t *testing.T) {
	svc, _, pub := newTestService(t, "")
	body := []byte(`{"response":{"CheckoutRequestID":"ws_CO_1","ResultCode":0,"ResultDesc":"The service request is processed successfully.","Amount":500,"MpesaReceiptNumber":"SFT1","PhoneNumber":254712345678,"ExternalReference":"ref-1"}}`)

	ack := svc.Ingest(context.Background(), body, http.Header{})

	assert.Equal(t, Ack{Success: true, Message: AckMessage, PaymentStatus: "completed", ExternalReference: "ref-1"}, ack)
	require.Len(t, pub.events, 1)
	assert.Equal(t, "completed", pub.events[0].Status)
	assert.Equal(t, "ref-1", pub.events[0].Reference)
}

func TestIngestBarePayloadWithStringCode(t *testing.T) {
	svc, db, _ := newTestService(t, "")
	body := []byte(`{"CheckoutRequestID":"ws_CO_2","ResultCode":"1","ResultDesc":"insufficient","ExternalReference":"ref-2"}`)

	ack := svc.Ingest(context.Background(), body, nil)
	assert.Equal(t, "failed", ack.PaymentStatus)

	rec, err := repository.Provide().LatestCallback(context.Background(), db, "ref-2")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Insufficient funds", rec.Message)
}

func TestIngestUnknownCodeIsAcknowledged(t *testing.T) {
	svc, _, _ := newTestService(t, "")
	ack := svc.Ingest(context.Background(), []byte(`{"CheckoutRequestID":"ws_CO_3","ResultCode":1032,"ResultDesc":"Request cancelled by user","ExternalReference":"ref-3"}`), nil)
	assert.True(t, ack.Success)
	assert.Equal(t, "failed", ack.PaymentStatus)
}

func TestIngestDuplicateIsNotRepublished(t *testing.T) {
	svc, _, pub := newTestService(t, "")
	body := []byte(`{"CheckoutRequestID":"ws_CO_4","ResultCode":0,"ExternalReference":"ref-4"}`)

	svc.Ingest(context.Background(), body, nil)
	ack := svc.Ingest(context.Background(), body, nil)

	assert.Equal(t, "completed", ack.PaymentStatus)
	assert.Len(t, pub.events, 1)
}

func TestIngestGarbageIsAcknowledged(t *testing.T) {
	svc, _, pub := newTestService(t, "")
	ack := svc.Ingest(context.Background(), []byte(`not json`), nil)
	assert.True(t, ack.Success)
	assert.Equal(t, StatusIgnored, ack.PaymentStatus)
	assert.Empty(t, pub.events)
}

func TestIngestVerifiesSignature(t *testing.T) {
	svc, db, pub := newTestService(t, "s3cret")
	body := []byte(`{"CheckoutRequestID":"ws_CO_5","ResultCode":0,"ExternalReference":"ref-5"}`)

	ack := svc.Ingest(context.Background(), body, http.Header{SignatureHeader: []string{"deadbeef"}})
	assert.True(t, ack.Success)
	assert.Equal(t, StatusIgnored, ack.PaymentStatus)
	assert.Empty(t, pub.events)

	rec, err := repository.Provide().LatestCallback(context.Background(), db, "ref-5")
	require.NoError(t, err)
	assert.Nil(t, rec)

	headers := http.Header{}
	headers.Set(SignatureHeader, Sign([]byte("s3cret"), body))
	ack = svc.Ingest(context.Background(), body, headers)
	assert.Equal(t, "completed", ack.PaymentStatus)
	assert.Len(t, pub.events, 1)
}

func TestParsePayloadRejectsEmpty(t *testing.T) {
	_, err := ParsePayload([]byte("  "))
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestIngestWithoutResultCodeIsNotRecorded(t *testing.T) {
	bodies := map[string]string{
		"missing": `{"response":{"CheckoutRequestID":"ws_CO_9","ExternalReference":"ref-9"}}`,
		"null":    `{"CheckoutRequestID":"ws_CO_9","ResultCode":null,"ExternalReference":"ref-9"}`,
		"empty":   `{"CheckoutRequestID":"ws_CO_9","ResultCode":"","ExternalReference":"ref-9"}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			svc, db, pub := newTestService(t, "")

			ack := svc.Ingest(context.Background(), []byte(body), nil)
			assert.True(t, ack.Success)
			assert.Equal(t, StatusIgnored, ack.PaymentStatus)
			assert.Empty(t, pub.events)

			rec, err := repository.Provide().LatestCallback(context.Background(), db, "ref-9")
			require.NoError(t, err)
			assert.Nil(t, rec)
		})
	}
}

func TestParsePayloadKeepsZeroCode(t *testing.T) {
	p, err := ParsePayload([]byte(`{"ResultCode":"0","Amount":"250.5"}`))
	require.NoError(t, err)
	assert.True(t, p.ResultCode.Valid())
	assert.Equal(t, 0, p.ResultCode.Int())
	assert.Equal(t, 250.5, p.Amount.Float())
}

func TestResetDropsRecordedCallbacks(t *testing.T) {
	svc, db, _ := newTestService(t, "")
	body := []byte(`{"CheckoutRequestID":"ws_CO_9","ResultCode":0,"ResultDesc":"ok","ExternalReference":"ref-9"}`)
	svc.Ingest(context.Background(), body, nil)

	require.NoError(t, svc.Reset(context.Background()))

	rec, err := repository.Provide().LatestCallback(context.Background(), db, "ref-9")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
