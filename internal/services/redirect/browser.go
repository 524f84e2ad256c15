package redirect

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/browser"
	"github.com/rs/zerolog"
)

// Browser opens the payment page in the operating system's browser. That
// window cannot be closed from here, so Dismiss only forgets it.
type Browser struct {
	openURL func(string) error
	log     zerolog.Logger

	mu      sync.Mutex
	current string
}

func NewBrowser(log zerolog.Logger) *Browser {
	return &Browser{
		openURL: browser.OpenURL,
		log:     log,
	}
}

func (b *Browser) Open(_ context.Context, rawURL string) error {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.openURL(u.String()); err != nil {
		return fmt.Errorf("redirect: open browser: %w", err)
	}
	b.current = u.String()
	return nil
}

func (b *Browser) Dismiss(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == "" {
		return nil
	}
	b.log.Info().Str("url", b.current).Msg("payment page left open in the system browser")
	b.current = ""
	return nil
}
