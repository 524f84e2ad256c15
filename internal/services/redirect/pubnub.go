package redirect

import (
	"context"
	"fmt"
	"sync"

	"donation-agent/utils"

	"github.com/rs/zerolog"
)

const (
	msgOpenURL = "open_url"
	msgDismiss = "dismiss"
)

// PubNub asks the device UI to render the payment page in its in-app browser
// and to close it again.
type PubNub struct {
	publisher utils.Publisher
	channel   string
	log       zerolog.Logger

	mu      sync.Mutex
	current string
}

func NewPubNub(publisher utils.Publisher, channel string, log zerolog.Logger) *PubNub {
	return &PubNub{
		publisher: publisher,
		channel:   channel,
		log:       log,
	}
}

func (p *PubNub) Open(ctx context.Context, rawURL string) error {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	msg := map[string]any{"type": msgOpenURL, "url": u.String()}
	if err := p.publisher.Publish(ctx, p.channel, msg); err != nil {
		return fmt.Errorf("redirect: publish %s: %w", msgOpenURL, err)
	}
	p.current = u.String()

	p.log.Debug().Str("url", p.current).Msg("payment page opened on device")
	return nil
}

func (p *PubNub) Dismiss(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == "" {
		return nil
	}

	if err := p.publisher.Publish(ctx, p.channel, map[string]any{"type": msgDismiss}); err != nil {
		return fmt.Errorf("redirect: publish %s: %w", msgDismiss, err)
	}
	p.current = ""

	p.log.Debug().Msg("payment page dismissed on device")
	return nil
}
