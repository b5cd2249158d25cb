// Package signal relays WebRTC signaling between the peers of a video call. Media
// never passes through here, only offers, answers and ICE candidates.
package signal

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"vhrealtime/service/room"
)

type PeerJoined struct {
	Type      string `json:"type"`
	UserID    int64  `json:"user_id"`
	UserName  string `json:"user_name"`
	Role      string `json:"role"`
	PeerCount int    `json:"peer_count"`
}

type PeerLeft struct {
	Type      string `json:"type"`
	UserID    int64  `json:"user_id"`
	UserName  string `json:"user_name"`
	PeerCount int    `json:"peer_count"`
}

type CallEnded struct {
	Type     string `json:"type"`
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name"`
}

type Relay struct {
	reg *room.Registry
	log *zap.Logger
}

func NewRelay(reg *room.Registry, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{reg: reg, log: log.Named("signal")}
}

func (r *Relay) send(roomID string, v any, exclude room.Conn) {
	b, err := json.Marshal(v)
	if err != nil {
		r.log.Error("encode frame", zap.Error(err))
		return
	}
	r.reg.Broadcast(roomID, b, exclude)
}

// Join registers m and announces it to the peers already in the call.
func (r *Relay) Join(_ context.Context, appointmentID int64, m room.Member) error {
	roomID := room.SignalRoom(appointmentID)
	n, err := r.reg.Join(roomID, m)
	if err != nil {
		return err
	}
	who := m.Identity()
	r.send(roomID, PeerJoined{Type: "peer-joined", UserID: who.UserID, UserName: who.Name, Role: who.Role, PeerCount: n}, m)
	return nil
}

// Receive forwards one frame to every other peer. The sender never gets its own
// frame back.
func (r *Relay) Receive(_ context.Context, appointmentID int64, m room.Member, raw []byte) error {
	env, err := ParseEnvelope(raw)
	if err != nil {
		return err
	}
	roomID := room.SignalRoom(appointmentID)
	who := m.Identity()

	switch {
	case env.Kind.Relayed():
		env.Fields["from_user_id"] = who.UserID
		env.Fields["from_user_name"] = who.Name
		r.send(roomID, env.Fields, m)
	case env.Kind == KindCallEnded:
		r.send(roomID, CallEnded{Type: "call-ended", UserID: who.UserID, UserName: who.Name}, m)
	default:
		// peer-joined/peer-left are server announcements, a client may not forge them
		r.log.Debug("ignored frame", zap.String("room", roomID), zap.String("type", env.Type), zap.Stringer("kind", env.Kind))
	}
	return nil
}

// Leave unregisters m and tells the remaining peers.
func (r *Relay) Leave(_ context.Context, appointmentID int64, m room.Member) {
	roomID := room.SignalRoom(appointmentID)
	n := r.reg.Leave(roomID, m)
	who := m.Identity()
	r.send(roomID, PeerLeft{Type: "peer-left", UserID: who.UserID, UserName: who.Name, PeerCount: n}, nil)
}
