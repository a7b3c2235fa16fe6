package broker

import (
	"encoding/json"
	"time"
)

// MessageKind discriminates broker messages.
type MessageKind string

const (
	// KindSyncRequest asks a worker to run a drain pass.
	KindSyncRequest MessageKind = "sync-request"
	// KindRetryFailed asks a worker to re-pend failed mutations first.
	KindRetryFailed MessageKind = "retry-failed"
	// KindRecordChanged announces that a record's local mirror changed,
	// so dashboards can refresh.
	KindRecordChanged MessageKind = "record-changed"
)

// Message is the envelope for everything published on the sync exchange.
type Message struct {
	Kind     MessageKind `json:"kind"`
	Instance string      `json:"instance"`
	Table    string      `json:"table,omitempty"`
	RecordID string      `json:"record_id,omitempty"`
	Reason   string      `json:"reason,omitempty"`
	At       time.Time   `json:"at"`
}

func NewSyncRequest(instance, reason string) Message {
	return Message{Kind: KindSyncRequest, Instance: instance, Reason: reason, At: time.Now()}
}

func NewRetryFailed(instance string) Message {
	return Message{Kind: KindRetryFailed, Instance: instance, At: time.Now()}
}

func NewRecordChanged(instance, table, recordID string) Message {
	return Message{Kind: KindRecordChanged, Instance: instance, Table: table, RecordID: recordID, At: time.Now()}
}

func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

func Decode(raw []byte) (Message, error) {
	var m Message
	err := json.Unmarshal(raw, &m)
	return m, err
}
