package callback

import (
	"fmt"
	"net/url"
	"strings"

	"donation-agent/internal/status"
	"donation-agent/models"
)

const transactionIDParam = "transaction_id"

// Matcher recognises the deep link the payment page opens when it is done,
// e.g. donationtestapp://close?transaction_id=T1.
type Matcher struct {
	scheme string
	host   string
}

func NewMatcher(scheme, host string) Matcher {
	return Matcher{
		scheme: strings.ToLower(strings.TrimSpace(scheme)),
		host:   strings.ToLower(strings.TrimSpace(host)),
	}
}

// Parse returns status.ErrCallbackParse for text that is not a URI and
// status.ErrForeignCallback for a URI that is not ours. A matching URI with no
// transaction id is not an error; the id is simply empty.
func (m Matcher) Parse(raw string) (models.Notification, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.Notification{}, fmt.Errorf("parse: empty notification: %w", status.ErrCallbackParse)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return models.Notification{}, fmt.Errorf("parse: url.Parse: %w: %w", status.ErrCallbackParse, err)
	}

	if !strings.EqualFold(u.Scheme, m.scheme) || !strings.EqualFold(u.Hostname(), m.host) {
		return models.Notification{}, fmt.Errorf("parse: %s://%s: %w", u.Scheme, u.Host, status.ErrForeignCallback)
	}

	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return models.Notification{}, fmt.Errorf("parse: url.ParseQuery: %w: %w", status.ErrCallbackParse, err)
	}

	return models.Notification{
		Raw:           raw,
		TransactionID: strings.TrimSpace(query.Get(transactionIDParam)),
	}, nil
}
