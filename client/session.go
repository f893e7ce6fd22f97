// Package client is the device-side mirror of the chat core: one Session per
// device tracks presence, the active conversation and per-peer unseen
// counters, reconciling against server pushes and snapshot fetches.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"QChat/logger"
	chatmodel "QChat/module/chat/model"
	usermodel "QChat/module/user/model"
	"QChat/service/chat"
)

var errNoPeer = errors.New("no conversation selected")

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// API is the snapshot/command boundary (the REST surface).
type API interface {
	GetUsers(ctx context.Context) ([]usermodel.User, map[string]int64, error)
	GetConversation(ctx context.Context, peerID string) ([]chatmodel.Message, error)
	SendMessage(ctx context.Context, peerID, text, image string) (*chatmodel.Message, error)
	MarkSeen(ctx context.Context, messageID string) error
}

// Stream is one live server-push channel. The events channel closes when the
// transport dies; the stream is not restartable.
type Stream interface {
	Events() <-chan chat.Event
	Close() error
}

// Dialer opens a Stream for the given identity.
type Dialer interface {
	Dial(ctx context.Context, userID string) (Stream, error)
}

// Session is safe for concurrent use. All mutation happens under one mutex;
// the event loop runs in its own goroutine for the lifetime of a connection.
type Session struct {
	api    API
	dialer Dialer

	mu           sync.Mutex
	state        State
	userID       string
	selectedPeer string
	messages     []chatmodel.Message
	users        []usermodel.User
	unseen       map[string]int64
	online       map[string]struct{}
	stream       Stream
	loopDone     chan struct{}
}

func NewSession(api API, dialer Dialer) *Session {
	return &Session{
		api:    api,
		dialer: dialer,
		unseen: make(map[string]int64),
		online: make(map[string]struct{}),
	}
}

// Connect drives Disconnected -> Connecting -> Connected. On entry to
// Connected it subscribes to pushes and loads the user list with unseen
// counts. A failed dial lands back in Disconnected.
func (s *Session) Connect(ctx context.Context, userID string) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.userID = userID
	s.mu.Unlock()

	stream, err := s.dialer.Dial(ctx, userID)
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		return err
	}

	users, unseen, err := s.api.GetUsers(ctx)
	if err != nil {
		_ = stream.Close()
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.state = StateConnected
	s.stream = stream
	s.users = users
	if unseen == nil {
		unseen = make(map[string]int64)
	}
	s.unseen = unseen
	s.loopDone = make(chan struct{})
	done := s.loopDone
	s.mu.Unlock()

	go s.eventLoop(stream, done)
	return nil
}

// Disconnect tears the session down (explicit logout path).
func (s *Session) Disconnect() {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.state = StateDisconnected
	s.online = make(map[string]struct{})
	s.mu.Unlock()
	if stream != nil {
		_ = stream.Close()
	}
}

func (s *Session) eventLoop(stream Stream, done chan struct{}) {
	defer close(done)
	for ev := range stream.Events() {
		s.handleEvent(ev)
	}
	// transport failure (or server-side close): any state -> Disconnected
	s.mu.Lock()
	if s.stream == stream {
		s.stream = nil
		s.state = StateDisconnected
		s.online = make(map[string]struct{})
	}
	s.mu.Unlock()
}

func (s *Session) handleEvent(ev chat.Event) {
	switch ev.Event {
	case chat.EventOnlineUsers:
		var ids []string
		if err := json.Unmarshal(ev.Data, &ids); err != nil {
			logger.Warnf("[session] bad online set: %v", err)
			return
		}
		s.replaceOnline(ids)
	case chat.EventNewMessage:
		var msg chatmodel.Message
		if err := decodePayload(ev.Data, &msg); err != nil {
			logger.Warnf("[session] bad newMessage payload: %v", err)
			return
		}
		s.onNewMessage(msg)
	case chat.EventMessageSeen:
		var p chat.MessageSeenPayload
		if err := decodePayload(ev.Data, &p); err != nil {
			logger.Warnf("[session] bad messageSeen payload: %v", err)
			return
		}
		s.onMessageSeen(p.MessageID)
	case chat.EventMessagesSeen:
		var p chat.MessagesSeenPayload
		if err := decodePayload(ev.Data, &p); err != nil {
			logger.Warnf("[session] bad messagesSeen payload: %v", err)
			return
		}
		s.onMessagesSeen(p.ConversationID)
	}
}

// decodePayload goes through a generic map so payloads tolerate unknown
// fields and the struct tags stay the JSON ones.
func decodePayload(raw json.RawMessage, dst any) error {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  dst,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
			stringToObjectIDHook,
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(m)
}

func stringToObjectIDHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() == reflect.String && to == reflect.TypeOf(primitive.ObjectID{}) {
		return primitive.ObjectIDFromHex(data.(string))
	}
	return data, nil
}

func (s *Session) replaceOnline(ids []string) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	s.mu.Lock()
	s.online = set
	s.mu.Unlock()
}

// onNewMessage appends to the open conversation (and acknowledges seen), or
// bumps the peer's unseen counter when the conversation is not on screen.
// The sender's own multi-device echo only lands in the open conversation.
func (s *Session) onNewMessage(msg chatmodel.Message) {
	s.mu.Lock()
	selected := s.selectedPeer
	self := s.userID
	if msg.SenderID == self {
		// echo from another of our devices
		if selected != "" && msg.ReceiverID == selected {
			s.messages = append(s.messages, msg)
		}
		s.mu.Unlock()
		return
	}
	if selected != "" && msg.SenderID == selected {
		msg.Seen = true
		s.messages = append(s.messages, msg)
		s.mu.Unlock()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.api.MarkSeen(ctx, msg.ID.Hex()); err != nil {
				logger.Warnf("[session] mark seen failed id=%s err=%v", msg.ID.Hex(), err)
			}
		}()
		return
	}
	s.unseen[msg.SenderID]++
	s.mu.Unlock()
}

func (s *Session) onMessageSeen(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID.Hex() == messageID {
			s.messages[i].Seen = true
			return
		}
	}
}

// onMessagesSeen marks every message we sent to the reader as seen.
func (s *Session) onMessagesSeen(readerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].SenderID == s.userID && s.messages[i].ReceiverID == readerID {
			s.messages[i].Seen = true
		}
	}
}

// SelectPeer opens a conversation (fetching the snapshot, which marks it seen
// server-side) or closes it with an empty id.
func (s *Session) SelectPeer(ctx context.Context, peerID string) error {
	if peerID == "" {
		s.mu.Lock()
		s.selectedPeer = ""
		s.messages = nil
		s.mu.Unlock()
		return nil
	}
	msgs, err := s.api.GetConversation(ctx, peerID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.selectedPeer = peerID
	s.messages = msgs
	s.unseen[peerID] = 0
	s.mu.Unlock()
	return nil
}

// Send waits for the server acknowledgment and only then appends the stored
// record — no local optimistic entry, so the echo event cannot duplicate it.
func (s *Session) Send(ctx context.Context, text, image string) (*chatmodel.Message, error) {
	s.mu.Lock()
	peer := s.selectedPeer
	s.mu.Unlock()
	if peer == "" {
		return nil, errNoPeer
	}
	m, err := s.api.SendMessage(ctx, peer, text, image)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.messages = append(s.messages, *m)
	s.mu.Unlock()
	return m, nil
}

// ---- read-only accessors for the UI layer ----

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) SelectedPeer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedPeer
}

func (s *Session) Messages() []chatmodel.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chatmodel.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) Users() []usermodel.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]usermodel.User, len(s.users))
	copy(out, s.users)
	return out
}

func (s *Session) UnseenCount(peerID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unseen[peerID]
}

func (s *Session) IsOnline(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.online[userID]
	return ok
}

func (s *Session) OnlineUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.online))
	for id := range s.online {
		out = append(out, id)
	}
	return out
}
