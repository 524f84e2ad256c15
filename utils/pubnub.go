package utils

import (
	"context"
	"fmt"

	pubnub "github.com/pubnub/go/v7"
)

// PubNubConfig holds the keys needed to talk to PubNub.
type PubNubConfig struct {
	PublishKey   string
	SubscribeKey string
	SecretKey    string
	UserID       string
}

// NewPubNub builds a PubNub client for the agent's user id.
func NewPubNub(c PubNubConfig) *pubnub.PubNub {
	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(c.UserID))
	pnCfg.PublishKey = c.PublishKey
	pnCfg.SubscribeKey = c.SubscribeKey
	pnCfg.SecretKey = c.SecretKey

	return pubnub.NewPubNub(pnCfg)
}

// Publisher sends one message to a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) error
}

// PubNubPublisher publishes through a PubNub client.
type PubNubPublisher struct {
	pn *pubnub.PubNub
}

func NewPubNubPublisher(pn *pubnub.PubNub) *PubNubPublisher {
	return &PubNubPublisher{pn: pn}
}

func (p *PubNubPublisher) Publish(ctx context.Context, channel string, message any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, _, err := p.pn.Publish().
		Channel(channel).
		Message(message).
		Execute()
	if err != nil {
		return fmt.Errorf("pubnub publish %s: %w", channel, err)
	}
	return nil
}
