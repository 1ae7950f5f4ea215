package ws

import "encoding/json"

// MessageType constants for the WebSocket protocol.
const (
	// Client -> Server
	TypeHello  = "hello"
	TypeSpoken = "spoken"
	TypePing   = "ping"

	// Server -> Client
	TypeWelcome = "welcome"
	TypeSpeak   = "speak"
	TypeCancel  = "cancel"
	TypeEvent   = "event"
	TypeError   = "error"
	TypePong    = "pong"
)

// Client roles announced in the hello message.
const (
	RoleNarrator = "narrator"
	RoleObserver = "observer"
)

// Message wraps all WebSocket payloads with type and optional request ID.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// Client messages (incoming)

type HelloPayload struct {
	Role       string `json:"role"`
	ClientName string `json:"client_name,omitempty"`
}

type SpokenPayload struct {
	UtteranceID string `json:"utterance_id"`
	DurationMs  int    `json:"duration_ms,omitempty"`
}

// Server messages (outgoing)

type WelcomePayload struct {
	ClientID string `json:"client_id"`
	Role     string `json:"role"`
}

type SpeakPayload struct {
	UtteranceID string `json:"utterance_id"`
	Text        string `json:"text"`
}

type CancelPayload struct {
	// Empty UtteranceID cancels everything queued on the client.
	UtteranceID string `json:"utterance_id,omitempty"`
}

type EventPayload struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessage marshals a payload into a typed message.
func NewMessage(msgType string, payload any) Message {
	data, _ := json.Marshal(payload)
	return Message{Type: msgType, Payload: data}
}
