package services

import (
	"context"
	"time"

	"donation-agent/models"
	"donation-agent/utils"

	"github.com/rs/zerolog"
)

const (
	defaultViewBuffer = 32
	publishTimeout    = 5 * time.Second
)

// PubNubPresenter pushes views to the device UI over a PubNub channel. Render
// only queues; Run does the publishing.
type PubNubPresenter struct {
	publisher utils.Publisher
	channel   string
	views     chan models.View
	log       zerolog.Logger
}

func NewPubNubPresenter(publisher utils.Publisher, channel string, buffer int, log zerolog.Logger) *PubNubPresenter {
	if buffer <= 0 {
		buffer = defaultViewBuffer
	}
	return &PubNubPresenter{
		publisher: publisher,
		channel:   channel,
		views:     make(chan models.View, buffer),
		log:       log.With().Str("channel", channel).Logger(),
	}
}

// Render never blocks. When the queue is full the view is dropped; the UI can
// always recover the latest one from the flow snapshot.
func (p *PubNubPresenter) Render(v models.View) {
	select {
	case p.views <- v:
	default:
		p.log.Warn().Str("kind", string(v.Kind)).Msg("view queue full, dropping view")
	}
}

// Run publishes queued views until ctx is done.
func (p *PubNubPresenter) Run(ctx context.Context) {
	for {
		select {
		case v := <-p.views:
			p.publish(ctx, v)
		case <-ctx.Done():
			return
		}
	}
}

func (p *PubNubPresenter) publish(ctx context.Context, v models.View) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	msg := map[string]any{"type": "view", "view": v}
	if err := p.publisher.Publish(ctx, p.channel, msg); err != nil {
		p.log.Error().Err(err).Str("kind", string(v.Kind)).Msg("publish view")
	}
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(models.View)

func (f PresenterFunc) Render(v models.View) { f(v) }

// Presenters fans a view out to several presenters.
type Presenters []Presenter

func (ps Presenters) Render(v models.View) {
	for _, p := range ps {
		p.Render(v)
	}
}
