package callback

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	pubnub "github.com/pubnub/go/v7"
	"github.com/rs/zerolog"
)

// PubNubSource receives deep links published on a PubNub channel. A message
// is either the URI itself or an object with a "url" field.
type PubNubSource struct {
	pn      *pubnub.PubNub
	channel string
	log     zerolog.Logger
}

func NewPubNubSource(pn *pubnub.PubNub, channel string, log zerolog.Logger) *PubNubSource {
	return &PubNubSource{
		pn:      pn,
		channel: channel,
		log:     log.With().Str("channel", channel).Logger(),
	}
}

func (s *PubNubSource) Subscribe(ctx context.Context, h Handler) (func(), error) {
	lis := pubnub.NewListener()
	s.pn.AddListener(lis)
	s.pn.Subscribe().Channels([]string{s.channel}).Execute()

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.processSubscription(loopCtx, lis, h)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			s.pn.Unsubscribe().Channels([]string{s.channel}).Execute()
			s.pn.RemoveListener(lis)
			<-done
		})
	}, nil
}

func (s *PubNubSource) processSubscription(ctx context.Context, listener *pubnub.Listener, h Handler) {
	for {
		select {
		case st := <-listener.Status:
			if st == nil {
				continue
			}
			switch st.Category {
			case pubnub.PNConnectedCategory:
				s.log.Info().Msg("connected to pubnub")

			case pubnub.PNReconnectedCategory:
				s.log.Info().Msg("reconnected to pubnub")

			case pubnub.PNDisconnectedCategory:
				s.log.Warn().Msg("disconnected from pubnub")

			case pubnub.PNAccessDeniedCategory:
				s.log.Error().Msg("access denied connect to pubnub")

			case pubnub.PNReconnectionAttemptsExhausted:
				s.log.Error().Msg("reconnection attempts exhausted connect to pubnub")

			case pubnub.PNTimeoutCategory:
				s.log.Warn().Msg("timeout connect to pubnub")

			default:
				s.log.Debug().Interface("category", st.Category).Msg("pubnub status")
			}

		case message := <-listener.Message:
			if message == nil {
				continue
			}
			raw, ok := messageURL(message.Message)
			if !ok {
				s.log.Warn().Interface("message", message.Message).Msg("pubnub message is not a callback url")
				continue
			}
			h(raw)

		case <-ctx.Done():
			s.log.Debug().Msg("close subscribe")
			return
		}
	}
}

func messageURL(msg any) (string, bool) {
	switch m := msg.(type) {
	case string:
		trimmed := strings.TrimSpace(m)
		if !strings.HasPrefix(trimmed, "{") {
			return trimmed, trimmed != ""
		}
		var body map[string]any
		if err := json.Unmarshal([]byte(trimmed), &body); err != nil {
			return "", false
		}
		return messageURL(body)

	case map[string]any:
		u, ok := m["url"].(string)
		if !ok || strings.TrimSpace(u) == "" {
			return "", false
		}
		return strings.TrimSpace(u), true

	default:
		return "", false
	}
}
