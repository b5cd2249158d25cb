// Package room keeps the in-process membership of chat and signaling rooms and fans
// payloads out to their members.
package room

import (
	"errors"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"vhrealtime/service/identity"
)

var ErrRegistryClosed = errors.New("room registry closed")

// Conn is the registry's view of a connection. Send must not block; the websocket
// client enqueues onto its writer and fails fast when the queue is full.
type Conn interface {
	ID() string
	Send(payload []byte) error
}

// Member is a Conn with the identity resolved at connect time.
type Member interface {
	Conn
	Identity() identity.Identity
}

func ChatRoom(appointmentID int64) string {
	return "chat_" + strconv.FormatInt(appointmentID, 10)
}

func SignalRoom(appointmentID int64) string {
	return "signal_" + strconv.FormatInt(appointmentID, 10)
}

type room struct {
	mu      sync.Mutex
	members map[string]Conn
	dead    bool // removed from the registry, must not take new members
}

// Registry maps room keys to their members. The map lock is only held for lookups and
// insert/delete; each room's own lock serializes membership changes against broadcast.
type Registry struct {
	name string
	log  *zap.Logger

	mu     sync.RWMutex
	rooms  map[string]*room
	closed bool
}

func NewRegistry(name string, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		name:  name,
		log:   log.Named("room").With(zap.String("registry", name)),
		rooms: make(map[string]*room),
	}
}

func (g *Registry) Name() string { return g.name }

func (g *Registry) lookup(roomID string) *room {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rooms[roomID]
}

func (g *Registry) getOrCreate(roomID string) (*room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, ErrRegistryClosed
	}
	r, ok := g.rooms[roomID]
	if !ok {
		r = &room{members: make(map[string]Conn)}
		g.rooms[roomID] = r
	}
	return r, nil
}

// Join adds conn to roomID, creating the room on first join, and returns the member
// count after the join. Joining twice is a no-op.
func (g *Registry) Join(roomID string, conn Conn) (int, error) {
	for {
		r, err := g.getOrCreate(roomID)
		if err != nil {
			return 0, err
		}
		r.mu.Lock()
		if r.dead {
			// lost a race with the last Leave, retry on a fresh room
			r.mu.Unlock()
			continue
		}
		r.members[conn.ID()] = conn
		n := len(r.members)
		r.mu.Unlock()
		g.log.Debug("join", zap.String("room", roomID), zap.String("conn", conn.ID()), zap.Int("members", n))
		return n, nil
	}
}

// Leave removes conn and returns how many members remain. The room entry is deleted
// when the last member leaves. Leaving a room you are not in is a no-op.
func (g *Registry) Leave(roomID string, conn Conn) int {
	r := g.lookup(roomID)
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, conn.ID())
	n := len(r.members)
	if n == 0 && !r.dead {
		r.dead = true
		g.mu.Lock()
		if g.rooms[roomID] == r {
			delete(g.rooms, roomID)
		}
		g.mu.Unlock()
	}
	g.log.Debug("leave", zap.String("room", roomID), zap.String("conn", conn.ID()), zap.Int("members", n))
	return n
}

func (g *Registry) Count(roomID string) int {
	r := g.lookup(roomID)
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Broadcast hands payload to every member of roomID except exclude (nil excludes
// nobody) and returns how many deliveries were accepted. A failing member only loses
// its own delivery.
func (g *Registry) Broadcast(roomID string, payload []byte, exclude Conn) int {
	r := g.lookup(roomID)
	if r == nil {
		return 0
	}
	skip := ""
	if exclude != nil {
		skip = exclude.ID()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	sent := 0
	for id, c := range r.members {
		if id == skip {
			continue
		}
		if err := c.Send(payload); err != nil {
			g.log.Debug("delivery dropped", zap.String("room", roomID), zap.String("conn", id), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

// Rooms is the number of live rooms.
func (g *Registry) Rooms() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// Close drops every room. Later joins fail with ErrRegistryClosed; connections are
// owned by the gateway and are not closed here.
func (g *Registry) Close() {
	g.mu.Lock()
	rooms := g.rooms
	g.rooms = make(map[string]*room)
	g.closed = true
	g.mu.Unlock()

	for _, r := range rooms {
		r.mu.Lock()
		r.dead = true
		r.members = make(map[string]Conn)
		r.mu.Unlock()
	}
	g.log.Info("registry closed", zap.Int("rooms", len(rooms)))
}
