package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	chatmodel "QChat/module/chat/model"
	usermodel "QChat/module/user/model"
	"QChat/service/chat"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeAPI struct {
	mu           sync.Mutex
	users        []usermodel.User
	unseen       map[string]int64
	conversation []chatmodel.Message
	sent         []chatmodel.Message
	marked       []string
	failUsers    bool
}

func (a *fakeAPI) GetUsers(context.Context) ([]usermodel.User, map[string]int64, error) {
	if a.failUsers {
		return nil, nil, errors.New("snapshot fetch failed")
	}
	return a.users, a.unseen, nil
}

func (a *fakeAPI) GetConversation(_ context.Context, peerID string) ([]chatmodel.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]chatmodel.Message, 0)
	for _, m := range a.conversation {
		if m.SenderID == peerID || m.ReceiverID == peerID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (a *fakeAPI) SendMessage(_ context.Context, peerID, text, image string) (*chatmodel.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m := chatmodel.Message{
		ID:         primitive.NewObjectID(),
		SenderID:   "me",
		ReceiverID: peerID,
		Text:       text,
		Image:      image,
		CreatedAt:  time.Now().UTC(),
	}
	a.sent = append(a.sent, m)
	return &m, nil
}

func (a *fakeAPI) MarkSeen(_ context.Context, messageID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.marked = append(a.marked, messageID)
	return nil
}

func (a *fakeAPI) markedIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.marked...)
}

type fakeStream struct {
	events chan chat.Event
	once   sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan chat.Event, 16)}
}

func (s *fakeStream) Events() <-chan chat.Event { return s.events }
func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.events) })
	return nil
}

func (s *fakeStream) push(t *testing.T, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	s.events <- chat.Event{Event: event, Data: data}
}

type fakeDialer struct {
	stream *fakeStream
	err    error
}

func (d *fakeDialer) Dial(context.Context, string) (Stream, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.stream, nil
}

func connectedSession(t *testing.T) (*Session, *fakeAPI, *fakeStream) {
	t.Helper()
	api := &fakeAPI{
		users:  []usermodel.User{{UserID: "bob"}, {UserID: "carol"}},
		unseen: map[string]int64{"bob": 2},
	}
	stream := newFakeStream()
	sess := NewSession(api, &fakeDialer{stream: stream})
	if err := sess.Connect(context.Background(), "me"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if sess.State() != StateConnected {
		t.Fatalf("state = %v, want connected", sess.State())
	}
	return sess, api, stream
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestConnectLoadsInitialSnapshot(t *testing.T) {
	sess, _, _ := connectedSession(t)
	if len(sess.Users()) != 2 {
		t.Fatalf("users = %v, want 2", sess.Users())
	}
	if sess.UnseenCount("bob") != 2 {
		t.Fatalf("unseen bob = %d, want 2", sess.UnseenCount("bob"))
	}
}

func TestConnectDialFailureStaysDisconnected(t *testing.T) {
	sess := NewSession(&fakeAPI{}, &fakeDialer{err: errors.New("refused")})
	if err := sess.Connect(context.Background(), "me"); err == nil {
		t.Fatal("expected dial error")
	}
	if sess.State() != StateDisconnected {
		t.Fatalf("state = %v, want disconnected", sess.State())
	}
}

func TestConnectSnapshotFailureStaysDisconnected(t *testing.T) {
	api := &fakeAPI{failUsers: true}
	sess := NewSession(api, &fakeDialer{stream: newFakeStream()})
	if err := sess.Connect(context.Background(), "me"); err == nil {
		t.Fatal("expected snapshot error")
	}
	if sess.State() != StateDisconnected {
		t.Fatalf("state = %v, want disconnected", sess.State())
	}
}

func TestPresenceReplacedWholesale(t *testing.T) {
	sess, _, stream := connectedSession(t)
	stream.push(t, chat.EventOnlineUsers, []string{"bob", "carol"})
	waitFor(t, func() bool { return sess.IsOnline("carol") }, "first online set")

	stream.push(t, chat.EventOnlineUsers, []string{"bob"})
	waitFor(t, func() bool { return !sess.IsOnline("carol") }, "carol to drop out")
	if !sess.IsOnline("bob") {
		t.Fatal("bob should remain online")
	}
}

func TestNewMessageForSelectedPeerAppendsAndMarksSeen(t *testing.T) {
	sess, api, stream := connectedSession(t)
	if err := sess.SelectPeer(context.Background(), "bob"); err != nil {
		t.Fatal(err)
	}

	msg := chatmodel.Message{
		ID:         primitive.NewObjectID(),
		SenderID:   "bob",
		ReceiverID: "me",
		Text:       "hi",
		CreatedAt:  time.Now().UTC(),
	}
	stream.push(t, chat.EventNewMessage, msg)

	waitFor(t, func() bool { return len(sess.Messages()) == 1 }, "message append")
	got := sess.Messages()[0]
	if got.ID != msg.ID || !got.Seen {
		t.Fatalf("appended = %+v, want same id marked seen locally", got)
	}
	waitFor(t, func() bool { return len(api.markedIDs()) == 1 }, "mark-seen call")
	if api.markedIDs()[0] != msg.ID.Hex() {
		t.Fatalf("marked %v, want %s", api.markedIDs(), msg.ID.Hex())
	}
	if sess.UnseenCount("bob") != 0 {
		t.Fatal("open conversation must not bump the unseen counter")
	}
}

func TestNewMessageForOtherPeerIncrementsUnseen(t *testing.T) {
	sess, api, stream := connectedSession(t)
	if err := sess.SelectPeer(context.Background(), "bob"); err != nil {
		t.Fatal(err)
	}

	msg := chatmodel.Message{
		ID:         primitive.NewObjectID(),
		SenderID:   "carol",
		ReceiverID: "me",
		Text:       "psst",
		CreatedAt:  time.Now().UTC(),
	}
	stream.push(t, chat.EventNewMessage, msg)

	waitFor(t, func() bool { return sess.UnseenCount("carol") == 1 }, "unseen bump")
	if len(sess.Messages()) != 0 {
		t.Fatal("message for another peer must not enter the open conversation")
	}
	if len(api.markedIDs()) != 0 {
		t.Fatal("background message must not be auto-marked seen")
	}
}

func TestSelectPeerNoneClearsMessages(t *testing.T) {
	sess, api, _ := connectedSession(t)
	api.conversation = []chatmodel.Message{{
		ID: primitive.NewObjectID(), SenderID: "bob", ReceiverID: "me", Text: "old",
	}}
	if err := sess.SelectPeer(context.Background(), "bob"); err != nil {
		t.Fatal(err)
	}
	if len(sess.Messages()) != 1 {
		t.Fatalf("messages = %v, want snapshot of 1", sess.Messages())
	}
	if err := sess.SelectPeer(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if len(sess.Messages()) != 0 || sess.SelectedPeer() != "" {
		t.Fatal("closing the conversation must clear the local list")
	}
}

func TestSendAppendsOnlyAfterAck(t *testing.T) {
	sess, _, _ := connectedSession(t)
	if _, err := sess.Send(context.Background(), "hello", ""); err == nil {
		t.Fatal("send without a selected peer must fail")
	}
	if err := sess.SelectPeer(context.Background(), "bob"); err != nil {
		t.Fatal(err)
	}
	m, err := sess.Send(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	msgs := sess.Messages()
	if len(msgs) != 1 || msgs[0].ID != m.ID {
		t.Fatalf("messages = %v, want the acknowledged record", msgs)
	}
}

func TestMessagesSeenFlipsOwnMessages(t *testing.T) {
	sess, _, stream := connectedSession(t)
	if err := sess.SelectPeer(context.Background(), "bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := sess.Send(context.Background(), "hello", ""); err != nil {
		t.Fatal(err)
	}

	stream.push(t, chat.EventMessagesSeen, chat.MessagesSeenPayload{ConversationID: "bob"})
	waitFor(t, func() bool {
		msgs := sess.Messages()
		return len(msgs) == 1 && msgs[0].Seen
	}, "own message to flip seen")
}

func TestTransportFailureDisconnects(t *testing.T) {
	sess, _, stream := connectedSession(t)
	stream.push(t, chat.EventOnlineUsers, []string{"bob"})
	waitFor(t, func() bool { return sess.IsOnline("bob") }, "online set")

	_ = stream.Close()
	waitFor(t, func() bool { return sess.State() == StateDisconnected }, "disconnect on stream close")
	if sess.IsOnline("bob") {
		t.Fatal("online set must clear on disconnect")
	}
}

func TestExplicitDisconnect(t *testing.T) {
	sess, _, _ := connectedSession(t)
	sess.Disconnect()
	if sess.State() != StateDisconnected {
		t.Fatalf("state = %v, want disconnected", sess.State())
	}
}
