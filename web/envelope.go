package web

// MessageType discriminates API responses, so dashboard code can switch on
// the envelope without inspecting payload shapes.
type MessageType string

const (
	TypeSyncStatus   MessageType = "sync-status"
	TypeSyncResult   MessageType = "sync-result"
	TypeMutationList MessageType = "mutation-list"
	TypeRecord       MessageType = "record"
	TypeError        MessageType = "error"
)

type Envelope struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload"`
}
