package chat

import "encoding/json"

// Wire events pushed over the realtime channel. Names and payload shapes are
// part of the client contract.
const (
	EventOnlineUsers  = "getOnlineUsers" // data: []string of online user ids
	EventNewMessage   = "newMessage"     // data: full message document
	EventMessageSeen  = "messageSeen"    // data: {messageId}
	EventMessagesSeen = "messagesSeen"   // data: {conversationId}
)

// Event is the envelope for every server push.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type MessageSeenPayload struct {
	MessageID string `json:"messageId"`
}

// MessagesSeenPayload tells the original sender that the peer identified by
// ConversationID has read the whole conversation.
type MessagesSeenPayload struct {
	ConversationID string `json:"conversationId"`
}

func EncodeEvent(name string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Event: name, Data: data})
}

func DecodeEvent(raw []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
