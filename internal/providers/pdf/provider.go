package pdf

import (
	"context"
	"io"

	"go.uber.org/fx"
)

var Module = fx.Module("providers.pdf",
	fx.Provide(New),
)

// Provider renders donation receipts.
type Provider interface {
	GenerateReceipt(ctx context.Context, data ReceiptData) (io.Reader, error)
}

// ReceiptRenderer lays receipts out with maroto.
type ReceiptRenderer struct{}

func New() Provider {
	return &ReceiptRenderer{}
}
