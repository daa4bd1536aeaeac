package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrServerFull rejects connections that would create a room beyond the
// tracked-room ceiling.
var ErrServerFull = errors.New("server at capacity")

const (
	userIDLength = 8

	// CloseCapacity and CloseTimeout are the reasons carried on the 1008
	// close frame; clients tell the two apart by reason string.
	CloseCapacity = "server at capacity"
	CloseTimeout  = "room closed for inactivity"
)

// Transport is one client's live link. The hub is the only owner of
// transports; everything else addresses members by (room, user) key.
//
// Send must apply its own short write deadline so a stalled peer cannot
// block a broadcast pass. A deadline miss is reported as an error and
// handled like any other dead connection.
type Transport interface {
	Send(v any) error
	CloseWith(code int, reason string) error
}

// CodeSaver persists the final code buffer when a room is torn down. The
// sqlite room store satisfies it; tests pass nil.
type CodeSaver interface {
	UpdateRoomCode(roomID, code string) error
}

type member struct {
	userID      string
	displayName string
	conn        Transport
}

type room struct {
	members map[string]*member
	order   []string // userIDs in join order, drives the roster
	state   roomState
}

// Hub owns the room registry: which connections are in which room, each
// room's authoritative state, and all fan-out. Connect, Disconnect and the
// reaper are the only paths that create or destroy room entries.
type Hub struct {
	log      *slog.Logger
	saver    CodeSaver
	maxRooms int
	now      func() time.Time

	mu    sync.RWMutex
	rooms map[string]*room
}

func NewHub(log *slog.Logger, saver CodeSaver, maxRooms int) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:      log,
		saver:    saver,
		maxRooms: maxRooms,
		now:      time.Now,
		rooms:    make(map[string]*room),
	}
}

func newUserID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:userIDLength]
}

// Connect registers a new connection, seeds it with the room snapshot and
// announces it to the whole room (the newcomer included). Connecting to an
// unseen room creates its state; if that would exceed the room ceiling the
// transport is closed with the capacity reason and ErrServerFull returned.
func (h *Hub) Connect(conn Transport, roomID, displayName string) (string, error) {
	if displayName == "" {
		displayName = "Anonymous"
	}

	h.mu.Lock()
	r, ok := h.rooms[roomID]
	if !ok {
		if len(h.rooms) >= h.maxRooms {
			h.mu.Unlock()
			_ = conn.CloseWith(1008, CloseCapacity)
			return "", ErrServerFull
		}
		r = &room{
			members: make(map[string]*member),
			state:   roomState{language: DefaultLanguage},
		}
		h.rooms[roomID] = r
	}

	userID := newUserID()
	for r.members[userID] != nil {
		userID = newUserID()
	}
	r.members[userID] = &member{userID: userID, displayName: displayName, conn: conn}
	r.order = append(r.order, userID)
	r.state.touch(h.now())

	snapshot := RoomStatePayload{
		Code:           r.state.code,
		Language:       r.state.language,
		UserCount:      len(r.members),
		ConnectedUsers: r.roster(),
	}
	h.mu.Unlock()

	// Best-effort personal seed; a failure here surfaces on the first
	// broadcast instead.
	h.sendTo(roomID, userID, Outbound{
		Type:   TypeRoomState,
		RoomID: roomID,
		Data:   snapshot,
	})

	h.Broadcast(roomID, Outbound{
		Type:   TypeUserJoined,
		RoomID: roomID,
		UserID: userID,
		Data: PresencePayload{
			UserCount:      snapshot.UserCount,
			ConnectedUsers: snapshot.ConnectedUsers,
			DisplayName:    displayName,
		},
	}, "")

	h.log.Info("client connected", "room", roomID, "user", userID, "members", snapshot.UserCount)
	return userID, nil
}

// Disconnect removes a connection. Unknown (room, user) pairs are a no-op.
// When the last member leaves, all room state is purged synchronously (the
// final buffer is persisted first); otherwise the remaining members get a
// user_left broadcast.
func (h *Hub) Disconnect(roomID, userID string) {
	h.mu.Lock()
	r, ok := h.rooms[roomID]
	if !ok || r.members[userID] == nil {
		h.mu.Unlock()
		return
	}

	delete(r.members, userID)
	for i, id := range r.order {
		if id == userID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	var code string
	empty := len(r.members) == 0
	remaining := len(r.members)
	var roster []string
	if empty {
		code = r.state.code
		delete(h.rooms, roomID)
	} else {
		roster = r.roster()
	}
	h.mu.Unlock()

	if empty {
		h.persistCode(roomID, code)
		h.log.Info("room closed", "room", roomID, "reason", "empty")
		return
	}

	h.log.Info("client disconnected", "room", roomID, "user", userID, "remaining", remaining)
	h.Broadcast(roomID, Outbound{
		Type:   TypeUserLeft,
		RoomID: roomID,
		UserID: userID,
		Data: PresencePayload{
			UserCount:      remaining,
			ConnectedUsers: roster,
		},
	}, "")
}

func (h *Hub) persistCode(roomID, code string) {
	if h.saver == nil || code == "" {
		return
	}
	if err := h.saver.UpdateRoomCode(roomID, code); err != nil {
		h.log.Warn("persist room code failed", "room", roomID, "err", err)
	}
}

// Broadcast delivers msg to every member of the room except excludeUserID.
// Membership is snapshotted at the start of the pass: members joining
// mid-pass miss this one message. Failed sends never reach the caller;
// the dead members are disconnected after the pass completes, which is the
// hub's only failure-detection path.
func (h *Hub) Broadcast(roomID string, msg Outbound, excludeUserID string) {
	h.mu.RLock()
	r, ok := h.rooms[roomID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	targets := make([]*member, 0, len(r.members))
	for _, m := range r.members {
		if m.userID != excludeUserID {
			targets = append(targets, m)
		}
	}
	h.mu.RUnlock()

	var failed []string
	for _, m := range targets {
		if err := m.conn.Send(msg); err != nil {
			failed = append(failed, m.userID)
		}
	}

	for _, userID := range failed {
		h.log.Warn("send failed, dropping member", "room", roomID, "user", userID)
		h.Disconnect(roomID, userID)
	}
}

// sendTo is best-effort personal delivery by (room, user) key; transport
// failures are swallowed here and detected by the next broadcast instead.
func (h *Hub) sendTo(roomID, userID string, msg Outbound) {
	h.mu.RLock()
	var conn Transport
	if r, ok := h.rooms[roomID]; ok {
		if m := r.members[userID]; m != nil {
			conn = m.conn
		}
	}
	h.mu.RUnlock()

	if conn != nil {
		_ = conn.Send(msg)
	}
}

// Dispatch routes one inbound message from (roomID, userID). The room a
// message applies to is the room the connection joined; the roomId field
// of the envelope is informational only. A returned error means the
// payload was structurally invalid and the sender should get a personal
// error reply.
func (h *Hub) Dispatch(roomID, userID string, env Envelope) error {
	switch env.Type {
	case TypeCodeUpdate:
		var p CodeUpdatePayload
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &p); err != nil {
				return fmt.Errorf("invalid code_update payload: %w", err)
			}
		}
		h.applyUpdate(roomID, p)
		h.Broadcast(roomID, Outbound{
			Type:   TypeCodeUpdate,
			RoomID: roomID,
			UserID: userID,
			Data:   env.Data,
		}, userID)

	case TypeCursorUpdate:
		// Ephemeral: relayed to the others, never stored, never
		// counted as room activity.
		h.Broadcast(roomID, Outbound{
			Type:   TypeCursorUpdate,
			RoomID: roomID,
			UserID: userID,
			Data:   env.Data,
		}, userID)

	default:
		// Unrecognized types are accepted and dropped.
	}
	return nil
}

func (h *Hub) applyUpdate(roomID string, p CodeUpdatePayload) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[roomID]; ok {
		r.state.apply(p, h.now())
	}
}

// ExpireIdle force-closes every room whose last activity is older than
// cutoff and purges its state. Returns the ids of evicted rooms. A failure
// on one room is logged and does not stop the sweep.
func (h *Hub) ExpireIdle(cutoff time.Time) []string {
	type eviction struct {
		roomID string
		code   string
		conns  []Transport
	}

	h.mu.Lock()
	var evictions []eviction
	for roomID, r := range h.rooms {
		if !r.state.lastActivity.Before(cutoff) {
			continue
		}
		ev := eviction{roomID: roomID, code: r.state.code}
		for _, m := range r.members {
			ev.conns = append(ev.conns, m.conn)
		}
		delete(h.rooms, roomID)
		evictions = append(evictions, ev)
	}
	h.mu.Unlock()

	evicted := make([]string, 0, len(evictions))
	for _, ev := range evictions {
		for _, conn := range ev.conns {
			if err := conn.CloseWith(1008, CloseTimeout); err != nil {
				h.log.Warn("force close failed", "room", ev.roomID, "err", err)
			}
		}
		h.persistCode(ev.roomID, ev.code)
		h.log.Info("room closed", "room", ev.roomID, "reason", "idle timeout")
		evicted = append(evicted, ev.roomID)
	}
	return evicted
}

// Count returns the number of live connections in a room, 0 if unknown.
func (h *Hub) Count(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.rooms[roomID]; ok {
		return len(r.members)
	}
	return 0
}

// Roster returns display names in join order. The snapshot is not stable
// across churn.
func (h *Hub) Roster(roomID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.rooms[roomID]; ok {
		return r.roster()
	}
	return nil
}

func (r *room) roster() []string {
	names := make([]string, 0, len(r.members))
	for _, id := range r.order {
		if m := r.members[id]; m != nil {
			names = append(names, m.displayName)
		}
	}
	return names
}

// State returns the current code and language for a room.
func (h *Hub) State(roomID string) (code, language string, ok bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, found := h.rooms[roomID]; found {
		return r.state.code, r.state.language, true
	}
	return "", "", false
}

// RoomCount returns how many rooms are currently tracked.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// ClientCount returns the total number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, r := range h.rooms {
		total += len(r.members)
	}
	return total
}
