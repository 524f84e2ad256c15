package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the open set of states reported by the donation service.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// DonationRequest is the validated form input sent to the donation service.
type DonationRequest struct {
	Phone   string `json:"phone"`
	Surname string `json:"surname"`
	Amount  int64  `json:"amount"`
}

// DonationSession is what the service hands back before the payment page opens.
type DonationSession struct {
	PaymentURL string `json:"payment_url"`
}

// TransactionStatus is either the service's view of a transaction or a
// synthetic record carrying only Error when the status could not be fetched.
type TransactionStatus struct {
	TransactionID string           `json:"transaction_id,omitempty"`
	Status        string           `json:"status,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Surname       string           `json:"surname,omitempty"`
	Phone         string           `json:"phone,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// FailedLookup builds the synthetic record shown when the status fetch fails.
func FailedLookup(message string) *TransactionStatus {
	return &TransactionStatus{Error: message}
}

// IsError reports whether t is a synthetic error record.
func (t *TransactionStatus) IsError() bool {
	return t.Error != ""
}

// Outcome maps the raw status onto the known set. Anything unknown is pending.
func (t *TransactionStatus) Outcome() PaymentStatus {
	switch PaymentStatus(strings.ToLower(strings.TrimSpace(t.Status))) {
	case PaymentCompleted:
		return PaymentCompleted
	case PaymentFailed:
		return PaymentFailed
	default:
		return PaymentPending
	}
}

// Normalized returns a copy of t with Status replaced by its Outcome, which
// is what the donor is shown.
func (t *TransactionStatus) Normalized() *TransactionStatus {
	n := *t
	n.Status = string(t.Outcome())
	return &n
}
