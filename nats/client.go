package nats

import (
	"context"
	"sync"

	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"cardshuffler.com/server/cluster"
	"cardshuffler.com/server/logging"
)

var clientLogger = log.With().Str("logger_name", "nats::client").Logger()

// ClusterClient submits jobs to remote cluster workers over NATS and
// receives their completions on a per-client subject.
type ClusterClient struct {
	nc       *natsgo.Conn
	clientID string
	sub      *natsgo.Subscription

	lock    sync.Mutex
	handler cluster.CompletionHandler
}

func NewClusterClient(nc *natsgo.Conn) (*ClusterClient, error) {
	c := &ClusterClient{
		nc:       nc,
		clientID: uuid.New().String(),
	}
	subject := GetCompletionSubject(c.clientID)
	sub, err := nc.Subscribe(subject, c.onCompletion)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to subscribe to %s", subject)
	}
	c.sub = sub
	if err := nc.Flush(); err != nil {
		return nil, errors.Wrap(err, "Unable to flush subscription")
	}
	clientLogger.Info().Msgf("Listening for completions on %s", subject)
	return c, nil
}

func (c *ClusterClient) OnCompletion(handler cluster.CompletionHandler) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.handler = handler
}

func (c *ClusterClient) Submit(ctx context.Context, req cluster.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := newSubmitMessage(GetCompletionSubject(c.clientID), req)
	data, err := m.marshal()
	if err != nil {
		return err
	}
	if err := c.nc.Publish(ClusterSubmitSubject, data); err != nil {
		return errors.Wrapf(err, "Unable to publish job %d", req.Offset)
	}
	clientLogger.Debug().
		Uint64(logging.OffsetKey, req.Offset).
		Str(logging.MessageIDKey, m.MessageID).
		Str(logging.JobKindKey, req.Kind.String()).
		Msg("Job published")
	return nil
}

func (c *ClusterClient) onCompletion(msg *natsgo.Msg) {
	m, err := unmarshalJobMessage(msg.Data)
	if err != nil || m.MessageType != ClusterCompletion || m.Completion == nil {
		clientLogger.Error().Msgf("Invalid completion message. %s", string(msg.Data))
		return
	}
	c.lock.Lock()
	handler := c.handler
	c.lock.Unlock()
	if handler == nil {
		clientLogger.Warn().Uint64(logging.OffsetKey, m.Completion.Offset).Msg("No completion handler registered")
		return
	}
	handler(*m.Completion)
}

func (c *ClusterClient) Close() error {
	return c.sub.Unsubscribe()
}
