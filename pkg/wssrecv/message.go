package wssrecv

// MessageType distinguishes text frames from binary frames.
type MessageType int

const (
	MessageText MessageType = iota + 1
	MessageBinary
)

func (t MessageType) String() string {
	switch t {
	case MessageText:
		return "text"
	case MessageBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Message is one opaque payload received from the server.
type Message struct {
	Type MessageType
	Data []byte
}

// String returns the payload verbatim.
func (m Message) String() string {
	return string(m.Data)
}

// Len returns the payload size in bytes.
func (m Message) Len() int {
	return len(m.Data)
}
