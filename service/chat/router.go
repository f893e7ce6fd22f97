package chat

import (
	"QChat/logger"
)

// Router resolves target users to live connections and pushes events to all
// of their devices. No outbox and no retries: a target with zero connections
// is dropped silently, and offline recipients catch up through the snapshot
// endpoints when they reconnect.
type Router struct {
	reg    *Registry
	fanout *Fanout
}

func NewRouter(reg *Registry, fanout *Fanout) *Router {
	return &Router{reg: reg, fanout: fanout}
}

// Deliver pushes one event to every connection of every target user. It never
// reports failure to the caller; undeliverable pushes are logged and dropped.
func (r *Router) Deliver(event string, payload any, targetUserIDs ...string) {
	raw, err := EncodeEvent(event, payload)
	if err != nil {
		logger.Errorf("[router] encode event=%s err=%v", event, err)
		return
	}
	var conns []*Conn
	for _, uid := range targetUserIDs {
		conns = append(conns, r.reg.ConnectionsFor(uid)...)
	}
	if len(conns) == 0 {
		logger.Debug("[router] no live targets, dropping " + event)
		return
	}
	r.fanout.Broadcast(conns, raw)
}

// DeliverNewMessage echoes a freshly stored message to both ends, so every
// device of the sender and the receiver appends it live.
func (r *Router) DeliverNewMessage(msg any, senderID, receiverID string) {
	if senderID == receiverID {
		r.Deliver(EventNewMessage, msg, senderID)
		return
	}
	r.Deliver(EventNewMessage, msg, senderID, receiverID)
}

// DeliverMessageSeen notifies the original sender that one message was read.
func (r *Router) DeliverMessageSeen(senderID, messageID string) {
	r.Deliver(EventMessageSeen, MessageSeenPayload{MessageID: messageID}, senderID)
}

// DeliverMessagesSeen notifies the original sender that readerID marked the
// whole conversation seen.
func (r *Router) DeliverMessagesSeen(senderID, readerID string) {
	r.Deliver(EventMessagesSeen, MessagesSeenPayload{ConversationID: readerID}, senderID)
}
