package donation

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"donation-agent/internal/status"
	"donation-agent/models"
)

const (
	MsgMissingFields = "Please fill in the phone and amount fields."
	MsgInvalidAmount = "The amount must be a positive whole number."
)

// Form is the raw text typed by the donor.
type Form struct {
	Phone   string `json:"phone"`
	Surname string `json:"surname"`
	Amount  string `json:"amount"`
}

// UnmarshalJSON accepts the amount either as text or as a bare JSON number,
// keeping it as typed so Validate sees exactly what the donor entered.
func (f *Form) UnmarshalJSON(b []byte) error {
	var raw struct {
		Phone   string          `json:"phone"`
		Surname string          `json:"surname"`
		Amount  json.RawMessage `json:"amount"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	f.Phone = raw.Phone
	f.Surname = raw.Surname
	f.Amount = ""

	amount := bytes.TrimSpace(raw.Amount)
	switch {
	case len(amount) == 0, bytes.Equal(amount, []byte("null")):
	case amount[0] == '"':
		if err := json.Unmarshal(amount, &f.Amount); err != nil {
			return err
		}
	default:
		f.Amount = string(amount)
	}
	return nil
}

// FieldError is a validation failure with a message fit for the donor.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return "validation: " + e.Field + ": " + e.Message
}

func (e *FieldError) Unwrap() error {
	return status.ErrValidation
}

// Validate turns the form into a request. Errors unwrap to status.ErrValidation.
func (f Form) Validate() (*models.DonationRequest, error) {
	phone := strings.TrimSpace(f.Phone)
	amountText := strings.TrimSpace(f.Amount)

	if phone == "" {
		return nil, &FieldError{Field: "phone", Message: MsgMissingFields}
	}
	if amountText == "" {
		return nil, &FieldError{Field: "amount", Message: MsgMissingFields}
	}

	amount, err := strconv.ParseInt(amountText, 10, 64)
	if err != nil || amount <= 0 {
		return nil, &FieldError{Field: "amount", Message: MsgInvalidAmount}
	}

	return &models.DonationRequest{
		Phone:   phone,
		Surname: strings.TrimSpace(f.Surname),
		Amount:  amount,
	}, nil
}
