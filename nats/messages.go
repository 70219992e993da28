package nats

import (
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"cardshuffler.com/server/cluster"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// message types
const (
	ClientSubmitJob   = "C2XSubmitJob"
	ClusterCompletion = "X2CCompletion"
)

// JobMessage is the wire envelope between coordinators and cluster workers.
type JobMessage struct {
	MessageID   string              `json:"message-id"`
	MessageType string              `json:"message-type"`
	ReplyTo     string              `json:"reply-to,omitempty"`
	Request     *cluster.Request    `json:"request,omitempty"`
	Completion  *cluster.Completion `json:"completion,omitempty"`
}

func newSubmitMessage(replyTo string, req cluster.Request) *JobMessage {
	return &JobMessage{
		MessageID:   uuid.New().String(),
		MessageType: ClientSubmitJob,
		ReplyTo:     replyTo,
		Request:     &req,
	}
}

func newCompletionMessage(completion cluster.Completion) *JobMessage {
	return &JobMessage{
		MessageID:   uuid.New().String(),
		MessageType: ClusterCompletion,
		Completion:  &completion,
	}
}

func (m *JobMessage) marshal() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to marshal %s message", m.MessageType)
	}
	return data, nil
}

func unmarshalJobMessage(data []byte) (*JobMessage, error) {
	var m JobMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "Invalid job message")
	}
	return &m, nil
}
