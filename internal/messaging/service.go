package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"eduhub-realtime/internal/notice"
	"eduhub-realtime/internal/optimistic"
	"eduhub-realtime/internal/realtime"
	"eduhub-realtime/pkg/log"
)

// Service is the messaging feature: optimistic sends reconciled against the
// durable write, remote echoes de-duplicated by id, read receipts, and a
// conversation room per watched thread.
type Service struct {
	bus     realtime.Bus
	api     Poster
	notices *notice.Center
	logger  log.Logger
	userID  string

	store *optimistic.Store[Message]

	mu       sync.Mutex
	onUpdate func()
	unsubs   []func()
}

func NewService(bus realtime.Bus, api Poster, notices *notice.Center, userID string, logger log.Logger) *Service {
	s := &Service{
		bus:     bus,
		api:     api,
		notices: notices,
		logger:  logger,
		userID:  userID,
		store: optimistic.New(optimistic.Config[Message]{
			Key: func(m Message) string { return m.ID },
			// A later copy of the same message wins (e.g. an edit
			// rebroadcast); same-or-older copies are dropped.
			Supersede: func(local, remote Message) bool {
				return remote.SentAt.After(local.SentAt)
			},
		}),
	}
	s.unsubs = append(s.unsubs,
		bus.Subscribe(realtime.EventMessageNew, s.handleNew),
		bus.Subscribe(realtime.EventMessageRead, s.handleRead),
	)
	return s
}

// OnUpdate sets a redraw hook invoked whenever visible state changes. May be
// called from the receive path or a persistence goroutine.
func (s *Service) OnUpdate(fn func()) {
	s.mu.Lock()
	s.onUpdate = fn
	s.mu.Unlock()
}

// conversationRoom is the scoped topic all of a conversation's events travel on.
func conversationRoom(conversationID string) string {
	return "conversation:" + conversationID
}

// Watch joins the conversation's room so scoped events reach this client.
func (s *Service) Watch(conversationID string) {
	s.bus.JoinRoom(conversationRoom(conversationID))
}

// Unwatch leaves the conversation's room.
func (s *Service) Unwatch(conversationID string) {
	s.bus.LeaveRoom(conversationRoom(conversationID))
}

// Send inserts an optimistic message, emits it, and issues the durable write
// in parallel. Returns the temporary id. The message is visible immediately;
// it is replaced by the confirmed record or removed with a notice when the
// write fails.
func (s *Service) Send(ctx context.Context, conversationID, body string) string {
	tempID := "tmp_" + uuid.New().String()
	msg := Message{
		ID:             tempID,
		ConversationID: conversationID,
		SenderID:       s.userID,
		Body:           body,
		SentAt:         time.Now(),
		Pending:        true,
	}
	s.store.Insert(msg)
	s.update()

	s.bus.EmitToRoom(realtime.EventMessageNew, conversationRoom(conversationID), tempID, toWire(msg))

	go s.persist(context.WithoutCancel(ctx), tempID, msg)
	return tempID
}

// persist is the durable half of the optimistic send. Exactly one of
// Confirm or Fail runs for every insert.
func (s *Service) persist(ctx context.Context, tempID string, msg Message) {
	var confirmed messageWire
	err := s.api.Post(ctx, "/messages", sendRequest{
		ConversationID: msg.ConversationID,
		Body:           msg.Body,
		ClientRef:      tempID,
	}, &confirmed)

	if err != nil {
		if _, ok := s.store.Fail(tempID); ok {
			s.notices.Push(notice.LevelError, "message could not be sent")
		}
		s.logger.Warnf(ctx, "messaging: durable write for %s failed: %v", tempID, err)
		s.update()
		return
	}

	s.store.Confirm(tempID, confirmed.toMessage())
	s.update()
}

// MarkRead emits a read receipt, scoped to the message's conversation when
// the message is known locally, and applies it.
func (s *Service) MarkRead(messageID string) {
	room := ""
	if m, ok := s.store.Get(messageID); ok {
		room = conversationRoom(m.ConversationID)
	}
	s.bus.EmitToRoom(realtime.EventMessageRead, room, "", readWire{MessageID: messageID, UserID: s.userID})
	s.applyRead(messageID, s.userID)
}

// Messages returns the visible messages of a conversation in order.
func (s *Service) Messages(conversationID string) []Message {
	all := s.store.List()
	out := make([]Message, 0, len(all))
	for _, m := range all {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out
}

// PendingCount reports unresolved optimistic sends.
func (s *Service) PendingCount() int {
	return s.store.PendingCount()
}

// Close releases the event subscriptions.
func (s *Service) Close() {
	for _, unsub := range s.unsubs {
		unsub()
	}
}

func (s *Service) handleNew(e realtime.Event) {
	var w messageWire
	if err := json.Unmarshal(e.Payload, &w); err != nil || w.ID == "" {
		s.logger.Warnf(context.Background(), "messaging: dropping malformed message:new: %v", err)
		return
	}
	if s.store.ApplyRemote(e.Ref, w.toMessage()) {
		s.update()
	}
}

func (s *Service) handleRead(e realtime.Event) {
	var w readWire
	if err := json.Unmarshal(e.Payload, &w); err != nil || w.MessageID == "" {
		return
	}
	s.applyRead(w.MessageID, w.UserID)
}

func (s *Service) applyRead(messageID, userID string) {
	changed := s.store.Update(messageID, func(m Message) Message {
		for _, r := range m.ReadBy {
			if r == userID {
				return m
			}
		}
		m.ReadBy = append(append([]string(nil), m.ReadBy...), userID)
		return m
	})
	if changed {
		s.update()
	}
}

func (s *Service) update() {
	s.mu.Lock()
	fn := s.onUpdate
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}
