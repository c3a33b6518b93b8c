package email

import (
	"context"
	"strings"
)

// Notifier delivers donor-facing mail.
type Notifier interface {
	SendDonationThanks(ctx context.Context, to string, data DonationThanks) error
}

// DonationThanks is the data for the donor thank-you template.
type DonationThanks struct {
	DonorName     string
	ArtistName    string
	Amount        string
	TransactionID string
	ReceiptNumber string
}

func (d DonationThanks) subject() string {
	if artist := strings.TrimSpace(d.ArtistName); artist != "" {
		return "Thank you for supporting " + artist
	}
	return "Thank you for your donation"
}

// Discard drops every message. It stands in when no SMTP host is set.
type Discard struct{}

func (Discard) SendDonationThanks(context.Context, string, DonationThanks) error {
	return nil
}
