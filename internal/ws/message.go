package ws

import "encoding/json"

// Message types shared by both directions of the wire protocol.
const (
	TypeRoomState    = "room_state"
	TypeUserJoined   = "user_joined"
	TypeUserLeft     = "user_left"
	TypeCodeUpdate   = "code_update"
	TypeCursorUpdate = "cursor_update"
	TypeError        = "error"
)

// Envelope is the wire frame for inbound client messages. Data stays raw
// until the dispatcher knows the type and can pick the payload variant.
type Envelope struct {
	Type   string          `json:"type"`
	RoomID string          `json:"roomId"`
	UserID string          `json:"userId,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Outbound is the server-to-client frame. Data carries the payload struct
// for the message type; Message is only set on error frames.
type Outbound struct {
	Type    string `json:"type"`
	RoomID  string `json:"roomId,omitempty"`
	UserID  string `json:"userId,omitempty"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// RoomStatePayload seeds a freshly connected client.
type RoomStatePayload struct {
	Code           string   `json:"code"`
	Language       string   `json:"language"`
	UserCount      int      `json:"userCount"`
	ConnectedUsers []string `json:"connectedUsers"`
}

// PresencePayload accompanies user_joined and user_left broadcasts.
type PresencePayload struct {
	UserCount      int      `json:"userCount"`
	ConnectedUsers []string `json:"connectedUsers"`
	DisplayName    string   `json:"displayName,omitempty"`
}

// CodeUpdatePayload is the inbound code_update variant. Pointer fields
// distinguish "absent" from "set to empty": only present fields overwrite
// room state.
type CodeUpdatePayload struct {
	Code     *string `json:"code,omitempty"`
	Language *string `json:"language,omitempty"`
}

func errorFrame(msg string) Outbound {
	return Outbound{Type: TypeError, Message: msg}
}
