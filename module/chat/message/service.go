package message

import (
	"context"

	chatmodel "QChat/module/chat/model"
	usermodel "QChat/module/user/model"
	"QChat/tools/errs"
)

// Store is the durable-storage collaborator contract (see MongoStore).
type Store interface {
	Insert(ctx context.Context, m *chatmodel.Message) error
	FindConversation(ctx context.Context, a, b string) ([]chatmodel.Message, error)
	MarkConversationSeen(ctx context.Context, senderID, receiverID string) (int64, error)
	MarkSeen(ctx context.Context, id string) (*chatmodel.Message, bool, error)
	CountUnseen(ctx context.Context, viewerID string) (map[string]int64, error)
}

// Uploader resolves a raw image payload to a stable retrievable URL.
type Uploader interface {
	Upload(ctx context.Context, data string) (string, error)
}

// Deliverer is the realtime path. Calls never fail; undeliverable events are
// dropped inside the router.
type Deliverer interface {
	DeliverNewMessage(msg any, senderID, receiverID string)
	DeliverMessageSeen(senderID, messageID string)
	DeliverMessagesSeen(senderID, readerID string)
}

// Directory lists the chat peers for the sidebar.
type Directory interface {
	ListOthers(ctx context.Context, viewerID string) ([]usermodel.User, error)
}

// Service implements the conversation operations: create, snapshot-with-mark-
// seen, sidebar counts and single-message mark-seen.
type Service struct {
	store    Store
	uploader Uploader
	router   Deliverer
	users    Directory
}

func NewService(store Store, uploader Uploader, router Deliverer, users Directory) *Service {
	return &Service{store: store, uploader: uploader, router: router, users: users}
}

// CreateMessage validates, resolves the image through the upload collaborator
// and persists, all-or-nothing; then echoes the stored record to both ends'
// live connections.
func (s *Service) CreateMessage(ctx context.Context, senderID, receiverID, text, image string) (*chatmodel.Message, error) {
	if text == "" && image == "" {
		return nil, errs.ErrValidation.WrapMsg("message content cannot be empty")
	}
	imageURL := ""
	if image != "" {
		url, err := s.uploader.Upload(ctx, image)
		if err != nil {
			return nil, errs.ErrUpload.WrapMsg("image upload failed", "err", err)
		}
		imageURL = url
	}
	m := &chatmodel.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		Image:      imageURL,
	}
	if err := s.store.Insert(ctx, m); err != nil {
		return nil, err
	}
	s.router.DeliverNewMessage(m, senderID, receiverID)
	return m, nil
}

// ListConversation returns the full ordered history with the peer and, as a
// documented side effect, marks everything the viewer had not seen. The bulk
// update runs before the read so a message arriving mid-call is either
// returned unseen or not returned at all — never falsely marked.
// The peer is notified only when the update actually changed something.
func (s *Service) ListConversation(ctx context.Context, viewerID, peerID string) ([]chatmodel.Message, error) {
	modified, err := s.store.MarkConversationSeen(ctx, peerID, viewerID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.FindConversation(ctx, viewerID, peerID)
	if err != nil {
		return nil, err
	}
	if modified > 0 {
		s.router.DeliverMessagesSeen(peerID, viewerID)
	}
	return msgs, nil
}

// ListUsersWithUnseen returns every known user except the viewer plus the
// per-peer unseen counters (absent key means zero).
func (s *Service) ListUsersWithUnseen(ctx context.Context, viewerID string) ([]usermodel.User, map[string]int64, error) {
	users, err := s.users.ListOthers(ctx, viewerID)
	if err != nil {
		return nil, nil, err
	}
	counts, err := s.store.CountUnseen(ctx, viewerID)
	if err != nil {
		return nil, nil, err
	}
	return users, counts, nil
}

// MarkSeen flips one message. Marking an already-seen message is a no-op
// success and does not re-notify the sender.
func (s *Service) MarkSeen(ctx context.Context, messageID string) (*chatmodel.Message, error) {
	m, flipped, err := s.store.MarkSeen(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if flipped {
		s.router.DeliverMessageSeen(m.SenderID, messageID)
	}
	return m, nil
}
