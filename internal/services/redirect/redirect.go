package redirect

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"donation-agent/utils"

	"github.com/rs/zerolog"
)

var ErrUnsupportedURL = errors.New("redirect: only absolute http(s) urls can be opened")

// Redirector shows the external payment page and takes it down again.
// Dismiss must be safe to call when nothing is open.
type Redirector interface {
	Open(ctx context.Context, rawURL string) error
	Dismiss(ctx context.Context) error
}

// ValidateURL accepts only absolute http and https URLs with a host.
func ValidateURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedURL, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedURL, rawURL)
	}

	return u, nil
}

// Kind names a Redirector implementation.
type Kind string

const (
	KindPubNub  Kind = "pubnub"
	KindBrowser Kind = "browser"
)

// New builds the redirector named by kind. The PubNub kind needs a publisher
// and the device channel it renders on.
func New(kind Kind, publisher utils.Publisher, channel string, log zerolog.Logger) (Redirector, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(string(kind)))) {
	case KindPubNub:
		if publisher == nil {
			return nil, fmt.Errorf("redirect: %s redirector needs pubnub keys", KindPubNub)
		}
		return NewPubNub(publisher, channel, log), nil

	case KindBrowser:
		return NewBrowser(log), nil

	default:
		return nil, fmt.Errorf("redirect: unsupported redirector: %q", kind)
	}
}
