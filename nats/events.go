package nats

import (
	natsgo "github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"cardshuffler.com/server/game"
)

// EventBroadcaster publishes applied game events to game.<gameID>.events.
type EventBroadcaster struct {
	nc *natsgo.Conn
}

func NewEventBroadcaster(nc *natsgo.Conn) *EventBroadcaster {
	return &EventBroadcaster{nc: nc}
}

func (b *EventBroadcaster) Publish(event *game.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrapf(err, "Unable to marshal %s event", event.Type)
	}
	subject := GetGameEventsSubject(event.GameID)
	if err := b.nc.Publish(subject, data); err != nil {
		return errors.Wrapf(err, "Unable to publish to %s", subject)
	}
	return nil
}
