package callback

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/Franc-dev/donate-artist/internal/payment/domain"
)

// Payload is the M-Pesa result body relayed by the gateway. Numeric fields
// arrive either as JSON numbers or as strings.
type Payload struct {
	CheckoutRequestID  string     `json:"CheckoutRequestID"`
	ResultCode         flexNumber `json:"ResultCode"`
	ResultDesc         string     `json:"ResultDesc"`
	Amount             flexNumber `json:"Amount"`
	MpesaReceiptNumber string     `json:"MpesaReceiptNumber"`
	TransactionDate    flexString `json:"TransactionDate"`
	PhoneNumber        flexString `json:"PhoneNumber"`
	ExternalReference  string     `json:"ExternalReference"`
}

type envelope struct {
	Response *Payload `json:"response"`
}

// ParsePayload accepts the payload bare or wrapped in {"response": {...}}.
func ParsePayload(body []byte) (Payload, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || !json.Valid(body) {
		return Payload{}, domain.ErrInvalidPayload
	}

	var payload Payload
	var wrapped envelope
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Response != nil {
		payload = *wrapped.Response
	} else if err := json.Unmarshal(body, &payload); err != nil {
		return Payload{}, domain.ErrInvalidPayload
	}
	// A missing code must not read as 0, which means success.
	if !payload.ResultCode.Valid() {
		return Payload{}, domain.ErrInvalidPayload
	}
	return payload.trimmed(), nil
}

func (p Payload) trimmed() Payload {
	p.CheckoutRequestID = strings.TrimSpace(p.CheckoutRequestID)
	p.ExternalReference = strings.TrimSpace(p.ExternalReference)
	p.ResultDesc = strings.TrimSpace(p.ResultDesc)
	p.MpesaReceiptNumber = strings.TrimSpace(p.MpesaReceiptNumber)
	return p
}

// flexNumber remembers whether a value was present. Absent, null and empty
// string all leave it invalid.
type flexNumber struct {
	value float64
	valid bool
}

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*n = flexNumber{}
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*n = flexNumber{value: v, valid: true}
	return nil
}

func (n flexNumber) Valid() bool    { return n.valid }
func (n flexNumber) Int() int       { return int(n.value) }
func (n flexNumber) Float() float64 { return n.value }

type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	*f = flexString(strings.TrimSpace(s))
	return nil
}
