package nats

import (
	"context"
	"strconv"

	natsgo "github.com/nats-io/nats.go"
	cmap "github.com/orcaman/concurrent-map"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"cardshuffler.com/server/cluster"
	"cardshuffler.com/server/job"
	"cardshuffler.com/server/logging"
)

var workerLogger = log.With().Str("logger_name", "nats::worker").Logger()

// ClusterWorker serves job requests from NATS with an in-process cluster
// and routes every completion back to the submitting client.
type ClusterWorker struct {
	nc      *natsgo.Conn
	local   *cluster.LocalCluster
	sub     *natsgo.Subscription
	replyTo cmap.ConcurrentMap
}

func NewClusterWorker(nc *natsgo.Conn, local *cluster.LocalCluster) (*ClusterWorker, error) {
	w := &ClusterWorker{
		nc:      nc,
		local:   local,
		replyTo: cmap.New(),
	}
	local.OnCompletion(w.publishCompletion)

	sub, err := nc.QueueSubscribe(ClusterSubmitSubject, ClusterWorkerQueue, w.onSubmit)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to subscribe to %s", ClusterSubmitSubject)
	}
	w.sub = sub
	if err := nc.Flush(); err != nil {
		return nil, errors.Wrap(err, "Unable to flush subscription")
	}
	workerLogger.Info().Msgf("Listening for jobs on %s", ClusterSubmitSubject)
	return w, nil
}

func (w *ClusterWorker) onSubmit(msg *natsgo.Msg) {
	m, err := unmarshalJobMessage(msg.Data)
	if err != nil || m.MessageType != ClientSubmitJob || m.Request == nil || m.ReplyTo == "" {
		workerLogger.Error().Msgf("Invalid submit message. %s", string(msg.Data))
		return
	}
	req := *m.Request
	key := strconv.FormatUint(req.Offset, 10)
	if !w.replyTo.SetIfAbsent(key, m.ReplyTo) {
		workerLogger.Warn().Uint64(logging.OffsetKey, req.Offset).Msg("Duplicate submission ignored")
		return
	}
	if err := w.local.Submit(context.Background(), req); err != nil {
		workerLogger.Error().Err(err).Uint64(logging.OffsetKey, req.Offset).Msg("Unable to execute job")
		w.publishCompletion(cluster.Completion{
			Offset: req.Offset,
			GameID: req.GameID,
			Kind:   req.Kind,
			Status: job.StatusFailed,
			Error:  err.Error(),
		})
	}
}

func (w *ClusterWorker) publishCompletion(completion cluster.Completion) {
	key := strconv.FormatUint(completion.Offset, 10)
	v, ok := w.replyTo.Get(key)
	if !ok {
		workerLogger.Warn().Uint64(logging.OffsetKey, completion.Offset).Msg("No reply subject for completion")
		return
	}
	if completion.Status.Terminal() {
		w.replyTo.Remove(key)
	}

	m := newCompletionMessage(completion)
	data, err := m.marshal()
	if err != nil {
		workerLogger.Error().Err(err).Uint64(logging.OffsetKey, completion.Offset).Msg("Unable to encode completion")
		return
	}
	if err := w.nc.Publish(v.(string), data); err != nil {
		workerLogger.Error().Err(err).Uint64(logging.OffsetKey, completion.Offset).Msg("Unable to publish completion")
	}
}

func (w *ClusterWorker) Close() error {
	return w.sub.Unsubscribe()
}
