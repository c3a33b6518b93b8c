package status

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Franc-dev/donate-artist/internal/clock"
	gatewaydomain "github.com/Franc-dev/donate-artist/internal/gateway/domain"
	"github.com/Franc-dev/donate-artist/internal/payment/classifier"
	"github.com/Franc-dev/donate-artist/internal/payment/domain"
	"github.com/Franc-dev/donate-artist/internal/payment/repository"
)

type gatewayMock struct{ mock.Mock }

func (m *gatewayMock) InitiatePush(ctx context.Context, req gatewaydomain.PushRequest) (gatewaydomain.PushResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(gatewaydomain.PushResult), args.Error(1)
}

func (m *gatewayMock) QueryByReference(ctx context.Context, ref string) (gatewaydomain.StatusResult, error) {
	args := m.Called(ctx, ref)
	return args.Get(0).(gatewaydomain.StatusResult), args.Error(1)
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *gatewayMock) {
	t.Helper()
	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.CallbackRecord{}))

	gw := &gatewayMock{}
	return NewService(Params{
		DB:      db,
		Log:     zap.NewNop(),
		Repo:    repository.Provide(),
		Gateway: gw,
		Clock:   clock.NewFakeClock(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)),
	}), db, gw
}

func TestRecordedCallbackWins(t *testing.T) {
	svc, db, gw := newTestService(t)
	_, err := repository.Provide().InsertCallback(context.Background(), db, &domain.CallbackRecord{
		CheckoutRequestID: "ws_CO_1",
		ExternalReference: "ref-1",
		ResultCode:        11,
		Bucket:            "cancelled",
		ReceivedAt:        time.Now().UTC(),
	})
	require.NoError(t, err)

	report, err := svc.Check(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", report.Status)
	assert.Equal(t, "Debit account invalid", report.Message)
	assert.Equal(t, domain.ReportSourceCallback, report.Source)
	gw.AssertNotCalled(t, "QueryByReference", mock.Anything, mock.Anything)
}

func TestFallsBackToGateway(t *testing.T) {
	svc, _, gw := newTestService(t)
	gw.On("QueryByReference", mock.Anything, "ref-2").Return(gatewaydomain.StatusResult{
		Success: true,
		Data:    &gatewaydomain.StatusData{Status: "SUCCESS"},
	}, nil).Once()

	c, err := svc.Query(context.Background(), "ref-2")
	require.NoError(t, err)
	assert.Equal(t, classifier.BucketCompleted, c.Bucket)
	gw.AssertExpectations(t)
}

func TestTransportErrorReportsPending(t *testing.T) {
	svc, _, gw := newTestService(t)
	transportErr := gatewaydomain.TransportError("payhero.query", errors.New("timeout"))
	gw.On("QueryByReference", mock.Anything, "ref-3").Return(gatewaydomain.StatusResult{}, transportErr)

	_, err := svc.Query(context.Background(), "ref-3")
	assert.True(t, gatewaydomain.IsTransport(err))

	report, err := svc.Check(context.Background(), "ref-3")
	require.NoError(t, err)
	assert.Equal(t, "pending", report.Status)
	assert.Equal(t, "Payment is being processed", report.Message)
	assert.Equal(t, "ref-3", report.Reference)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), report.Timestamp)
}

func TestCheckRequiresReference(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Check(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrMissingReference)
}
