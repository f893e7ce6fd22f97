package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"QChat/logger"
	chatmodel "QChat/module/chat/model"
	usermodel "QChat/module/user/model"
	"QChat/service/chat"
)

// RestAPI talks to the server's /api/messages surface.
type RestAPI struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewRestAPI(baseURL, token string) *RestAPI {
	return &RestAPI{
		BaseURL: baseURL,
		Token:   token,
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *RestAPI) do(ctx context.Context, method, path string, body, out any) error {
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("token", a.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	var envelope struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	raw := new(bytes.Buffer)
	if _, err := raw.ReadFrom(resp.Body); err != nil {
		return err
	}
	if err := json.Unmarshal(raw.Bytes(), &envelope); err != nil {
		return fmt.Errorf("bad response (%d): %w", resp.StatusCode, err)
	}
	if !envelope.Success {
		return fmt.Errorf("server rejected request (%d): %s", resp.StatusCode, envelope.Message)
	}
	if out != nil {
		return json.Unmarshal(raw.Bytes(), out)
	}
	return nil
}

func (a *RestAPI) GetUsers(ctx context.Context) ([]usermodel.User, map[string]int64, error) {
	var out struct {
		Users  []usermodel.User `json:"users"`
		Unseen map[string]int64 `json:"unseenMessages"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/messages/users", nil, &out); err != nil {
		return nil, nil, err
	}
	return out.Users, out.Unseen, nil
}

func (a *RestAPI) GetConversation(ctx context.Context, peerID string) ([]chatmodel.Message, error) {
	var out struct {
		Messages []chatmodel.Message `json:"messages"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/messages/"+url.PathEscape(peerID), nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (a *RestAPI) SendMessage(ctx context.Context, peerID, text, image string) (*chatmodel.Message, error) {
	var out struct {
		NewMessage chatmodel.Message `json:"newMessage"`
	}
	body := map[string]string{"text": text, "image": image}
	if err := a.do(ctx, http.MethodPost, "/api/messages/send/"+url.PathEscape(peerID), body, &out); err != nil {
		return nil, err
	}
	return &out.NewMessage, nil
}

func (a *RestAPI) MarkSeen(ctx context.Context, messageID string) error {
	return a.do(ctx, http.MethodPut, "/api/messages/mark/"+url.PathEscape(messageID), nil, nil)
}

// WSDialer opens the realtime channel against /ws.
type WSDialer struct {
	BaseURL string // ws:// or wss://
	Token   string
}

func (d *WSDialer) Dial(ctx context.Context, userID string) (Stream, error) {
	u := fmt.Sprintf("%s/ws?userId=%s&token=%s", d.BaseURL, url.QueryEscape(userID), url.QueryEscape(d.Token))
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	s := &wsStream{conn: conn, events: make(chan chat.Event, 64)}
	go s.readLoop()
	return s, nil
}

type wsStream struct {
	conn   *websocket.Conn
	events chan chat.Event
}

func (s *wsStream) Events() <-chan chat.Event { return s.events }

func (s *wsStream) Close() error { return s.conn.Close() }

func (s *wsStream) readLoop() {
	defer close(s.events)
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		ev, err := chat.DecodeEvent(raw)
		if err != nil {
			logger.Warnf("[stream] bad event frame: %v", err)
			continue
		}
		s.events <- *ev
	}
}
