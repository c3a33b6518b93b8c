package pdf

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var ErrMissingReceiptNumber = errors.New("receipt number is required")

// ReceiptData is the printable view of a completed donation. Amounts are
// preformatted by the caller.
type ReceiptData struct {
	ReceiptNumber string
	DatePaid      string
	DonorName     string
	DonorEmail    string
	ArtistName    string
	Message       string
	PaymentMethod string
	TransactionID string
	Amount        string
}

func (p *ReceiptRenderer) GenerateReceipt(ctx context.Context, receipt ReceiptData) (io.Reader, error) {
	if receipt.ReceiptNumber == "" {
		return nil, ErrMissingReceiptNumber
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(30,
		text.NewCol(8, "Donation receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, "Artist Battle", props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Receipt number: "+receipt.ReceiptNumber, props.Text{Top: 0}),
			text.New("Date paid: "+receipt.DatePaid, props.Text{Top: 4}),
			text.New("Payment method: "+receipt.PaymentMethod, props.Text{Top: 8}),
		),
		col.New(6).Add(
			text.New("Donor", props.Text{Style: fontstyle.Bold}),
			text.New(receipt.DonorName, props.Text{Top: 5}),
			text.New(receipt.DonorEmail, props.Text{Top: 9}),
		),
	)

	m.AddRow(15,
		text.NewCol(12, receipt.Amount+" donated to "+receipt.ArtistName, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	m.AddRow(10,
		text.NewCol(8, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(12,
		text.NewCol(8, "Donation to "+receipt.ArtistName, props.Text{Size: 9}),
		text.NewCol(4, receipt.Amount, props.Text{Size: 9, Align: align.Right}),
	)

	if receipt.TransactionID != "" {
		m.AddRow(8,
			text.NewCol(12, "Gateway transaction: "+receipt.TransactionID, props.Text{Size: 8}),
		)
	}
	if receipt.Message != "" {
		m.AddRow(15,
			text.NewCol(12, "\""+receipt.Message+"\"", props.Text{Size: 9, Style: fontstyle.Italic, Top: 4}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}
