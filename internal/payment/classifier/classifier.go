// Package classifier maps raw gateway answers onto payment outcome buckets.
// Every function is pure.
package classifier

import (
	"strings"

	gatewaydomain "github.com/Franc-dev/donate-artist/internal/gateway/domain"
)

type Bucket string

const (
	BucketCompleted Bucket = "completed"
	BucketFailed    Bucket = "failed"
	BucketCancelled Bucket = "cancelled"
	BucketPending   Bucket = "pending"
)

// Terminal reports whether no further status query can change the bucket.
func (b Bucket) Terminal() bool {
	return b == BucketCompleted || b == BucketFailed || b == BucketCancelled
}

type Classification struct {
	Bucket  Bucket `json:"bucket"`
	Message string `json:"message"`
}

const (
	MessageCompleted  = "Payment completed successfully"
	MessageFailed     = "Payment failed"
	MessageCancelled  = "Payment was cancelled"
	MessageProcessing = "Payment is being processed"
	MessageUnknown    = "Payment status unknown"
)

type resultCode struct {
	bucket  Bucket
	message string
}

var resultCodes = map[int]resultCode{
	1:  {BucketFailed, "Insufficient funds"},
	2:  {BucketFailed, "Less than minimum transaction value"},
	3:  {BucketFailed, "More than maximum transaction value"},
	4:  {BucketFailed, "Would exceed daily transfer limit"},
	5:  {BucketFailed, "Would exceed minimum balance"},
	6:  {BucketFailed, "Unresolved primary party"},
	7:  {BucketFailed, "Unresolved counter party"},
	8:  {BucketFailed, "Would exceed maximum balance"},
	11: {BucketCancelled, "Debit account invalid"},
	12: {BucketCancelled, "Credit account invalid"},
	13: {BucketCancelled, "Unresolved debit account"},
	14: {BucketCancelled, "Unresolved credit account"},
	15: {BucketCancelled, "Duplicate detected"},
	17: {BucketCancelled, "Internal failure"},
	20: {BucketCancelled, "Unresolved Initiator"},
	26: {BucketCancelled, "Traffic blocking condition in place"},
}

// ClassifyResultCode classifies a callback ResultCode. Unknown non-zero codes
// are failures described by desc.
func ClassifyResultCode(code int, desc string) Classification {
	if code == 0 {
		return Classification{Bucket: BucketCompleted, Message: MessageCompleted}
	}
	if rc, ok := resultCodes[code]; ok {
		return Classification{Bucket: rc.bucket, Message: rc.message}
	}
	if desc = strings.TrimSpace(desc); desc != "" {
		return Classification{Bucket: BucketFailed, Message: desc}
	}
	return Classification{Bucket: BucketFailed, Message: MessageFailed}
}

// ClassifyStatus classifies a textual gateway status. Unrecognised values
// stay pending; only an explicit success status yields completed.
func ClassifyStatus(status, message string) Classification {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "completed", "success":
		return Classification{Bucket: BucketCompleted, Message: MessageCompleted}
	case "failed", "declined", "rejected":
		if message = strings.TrimSpace(message); message != "" {
			return Classification{Bucket: BucketFailed, Message: message}
		}
		return Classification{Bucket: BucketFailed, Message: MessageFailed}
	case "cancelled":
		return Classification{Bucket: BucketCancelled, Message: MessageCancelled}
	case "pending", "processing":
		return Classification{Bucket: BucketPending, Message: MessageProcessing}
	default:
		return Classification{Bucket: BucketPending, Message: MessageUnknown}
	}
}

// ClassifyQuery classifies a status lookup. An unsuccessful lookup whose
// message mentions cancellation or failure is treated as cancelled.
func ClassifyQuery(res gatewaydomain.StatusResult) Classification {
	if !res.Success {
		msg := strings.ToLower(res.Message)
		if strings.Contains(msg, "cancelled") || strings.Contains(msg, "failed") {
			return Classification{Bucket: BucketCancelled, Message: MessageCancelled}
		}
		return Classification{Bucket: BucketPending, Message: MessageProcessing}
	}
	if res.Data == nil {
		return Classification{Bucket: BucketPending, Message: MessageUnknown}
	}
	return ClassifyStatus(res.Data.Status, res.Data.Message)
}
