// Package chat implements per-consultation text chat on top of the room registry.
package chat

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"vhrealtime/service/identity"
	"vhrealtime/service/room"
	"vhrealtime/service/storage"
	"vhrealtime/tools/errs"
)

// Publisher is notified after a message was persisted. It must not block.
type Publisher interface {
	MessageCreated(m storage.ChatMessage)
}

type nopPublisher struct{}

func (nopPublisher) MessageCreated(storage.ChatMessage) {}

type Options struct {
	PersistTimeout  time.Duration
	TimestampLayout string
	Location        *time.Location
	Clock           func() time.Time
}

func (o *Options) norm() {
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = 3 * time.Second
	}
	if o.TimestampLayout == "" {
		o.TimestampLayout = "03:04 PM"
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

type Service struct {
	reg   *room.Registry
	store storage.MessageStore
	pub   Publisher
	opts  Options
	log   *zap.Logger
}

func NewService(reg *room.Registry, store storage.MessageStore, pub Publisher, opts Options, log *zap.Logger) *Service {
	opts.norm()
	if pub == nil {
		pub = nopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{reg: reg, store: store, pub: pub, opts: opts, log: log.Named("chat")}
}

func (s *Service) stamp(t time.Time) string {
	return t.In(s.opts.Location).Format(s.opts.TimestampLayout)
}

func (s *Service) broadcast(roomID string, f Frame, exclude room.Conn) {
	b, err := json.Marshal(f)
	if err != nil {
		s.log.Error("encode frame", zap.Error(err))
		return
	}
	s.reg.Broadcast(roomID, b, exclude)
}

func (s *Service) system(roomID, text string) {
	s.broadcast(roomID, Frame{Type: FrameSystem, Message: text, Timestamp: s.stamp(s.opts.Clock())}, nil)
}

// Join registers m and tells the whole room, m included.
func (s *Service) Join(_ context.Context, appointmentID int64, m room.Member) error {
	roomID := room.ChatRoom(appointmentID)
	if _, err := s.reg.Join(roomID, m); err != nil {
		return err
	}
	s.system(roomID, m.Identity().Name+" joined the chat")
	return nil
}

// Receive handles one client frame. Blank messages are ignored. A store failure does
// not stop delivery; the message goes out with the current time instead.
func (s *Service) Receive(ctx context.Context, appointmentID int64, m room.Member, raw []byte) error {
	in, err := ParseInbound(raw)
	if err != nil {
		return err
	}
	body := strings.TrimSpace(in.Message)
	if body == "" {
		return nil
	}

	who := m.Identity()
	ts := s.opts.Clock()
	pctx, cancel := context.WithTimeout(ctx, s.opts.PersistTimeout)
	saved, err := s.store.Persist(pctx, storage.NewMessage{
		AppointmentID: appointmentID,
		SenderID:      who.UserID,
		SenderName:    who.Name,
		SenderRole:    who.Role,
		Body:          body,
	})
	cancel()
	if err != nil {
		s.log.Warn("persist failed, delivering anyway",
			zap.Int64("appointment", appointmentID), zap.Int64("sender", who.UserID),
			zap.Error(errs.ErrPersistenceFailure.WrapMsg(err.Error())))
	} else {
		ts = saved.Timestamp
		s.pub.MessageCreated(storage.ChatMessage{
			ID:            saved.ID,
			AppointmentID: appointmentID,
			SenderID:      who.UserID,
			SenderName:    who.Name,
			SenderRole:    who.Role,
			Body:          body,
			Timestamp:     saved.Timestamp,
		})
	}

	s.broadcast(room.ChatRoom(appointmentID), Frame{
		Type:       FrameChat,
		Sender:     who.Name,
		SenderRole: who.Role,
		SenderID:   who.UserID,
		Message:    body,
		Timestamp:  s.stamp(ts),
	}, nil)
	return nil
}

// Leave unregisters m and tells whoever is left.
func (s *Service) Leave(_ context.Context, appointmentID int64, m room.Member) {
	roomID := room.ChatRoom(appointmentID)
	if s.reg.Leave(roomID, m) == 0 {
		return
	}
	s.system(roomID, m.Identity().Name+" left the chat")
}

// History is the persisted conversation of an appointment, oldest first.
func (s *Service) History(ctx context.Context, appointmentID int64) ([]storage.ChatMessage, error) {
	return s.store.History(ctx, appointmentID)
}

var ErrEmptyMessage = errs.NewCodeError(400, "message may not be blank")

// Post stores a message sent over the REST side-channel. Live rooms are not told; the
// message shows up in their history and on the event bus.
func (s *Service) Post(ctx context.Context, appointmentID int64, who identity.Identity, text string) (storage.ChatMessage, error) {
	body := strings.TrimSpace(text)
	if body == "" {
		return storage.ChatMessage{}, ErrEmptyMessage.Wrap()
	}
	pctx, cancel := context.WithTimeout(ctx, s.opts.PersistTimeout)
	defer cancel()
	saved, err := s.store.Persist(pctx, storage.NewMessage{
		AppointmentID: appointmentID,
		SenderID:      who.UserID,
		SenderName:    who.Name,
		SenderRole:    who.Role,
		Body:          body,
	})
	if err != nil {
		return storage.ChatMessage{}, errs.ErrPersistenceFailure.WrapMsg(err.Error())
	}
	msg := storage.ChatMessage{
		ID:            saved.ID,
		AppointmentID: appointmentID,
		SenderID:      who.UserID,
		SenderName:    who.Name,
		SenderRole:    who.Role,
		Body:          body,
		Timestamp:     saved.Timestamp,
	}
	s.pub.MessageCreated(msg)
	return msg, nil
}
