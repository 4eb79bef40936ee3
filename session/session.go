package session

import (
	"errors"
	"regexp"
	"sync"

	"github.com/sirupsen/logrus"
)

// Mode identifies how the current pairing was established.
type Mode uint8

const (
	ModeNone Mode = iota
	ModeRandom
	ModeFriend
)

// String returns a human-readable mode name.
func (m Mode) String() string {
	switch m {
	case ModeRandom:
		return "random"
	case ModeFriend:
		return "friend"
	default:
		return "none"
	}
}

// Stage identifies where in its lifecycle the session is.
type Stage uint8

const (
	StageIdle Stage = iota
	StageSearching
	StageActive
	StageEnding
)

// String returns a human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageSearching:
		return "searching"
	case StageActive:
		return "active"
	case StageEnding:
		return "ending"
	default:
		return "idle"
	}
}

var (
	// ErrNotIdle is returned when an operation requires an idle session.
	ErrNotIdle = errors.New("session: not idle")
	// ErrNotSearching is returned when an operation requires the searching stage.
	ErrNotSearching = errors.New("session: not searching")
	// ErrNotActive is returned when an operation requires an active session.
	ErrNotActive = errors.New("session: not active")
	// ErrInvalidPartnerID is returned when a partner id fails validation.
	ErrInvalidPartnerID = errors.New("session: invalid partner id")
)

// partnerIDPattern matches the id format the server hands out. Anything
// else is treated as a corrupt match event.
var partnerIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidID reports whether id is a well-formed participant id.
func ValidID(id string) bool {
	return partnerIDPattern.MatchString(id)
}

// Room id separators. Each mode gets its own so the random room and the
// friend room for the same pair never collide.
const (
	randomRoomSep = "#"
	friendRoomSep = "@"
)

// RoomID derives the shared room identifier for a pairing. The two ids
// are sorted lexicographically so both participants derive the same room
// regardless of argument order.
func RoomID(a, b string, mode Mode) string {
	if b < a {
		a, b = b, a
	}
	sep := randomRoomSep
	if mode == ModeFriend {
		sep = friendRoomSep
	}
	return a + sep + b
}

// Snapshot is a read-only copy of the session state handed to views.
type Snapshot struct {
	Mode        Mode
	Stage       Stage
	PartnerID   string
	PartnerName string
}

// Manager owns the session state machine. At most one mode is non-none at
// a time; the partner identity is populated only while a pairing exists.
type Manager struct {
	mode        Mode
	stage       Stage
	partnerID   string
	partnerName string
	mu          sync.Mutex
}

// NewManager creates an idle session manager.
func NewManager() *Manager {
	return &Manager{}
}

// StartSearching moves an idle session into the searching stage. Calling
// it while already searching is a no-op.
func (m *Manager) StartSearching() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.stage {
	case StageSearching:
		return nil
	case StageIdle:
	default:
		return ErrNotIdle
	}

	m.stage = StageSearching
	m.mode = ModeRandom

	logrus.WithField("function", "StartSearching").Info("Session searching for a partner")
	return nil
}

// StopSearching cancels an in-progress search and returns to idle.
func (m *Manager) StopSearching() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stage != StageSearching {
		return ErrNotSearching
	}

	m.stage = StageIdle
	m.mode = ModeNone

	logrus.WithField("function", "StopSearching").Info("Search cancelled")
	return nil
}

// BeginMatch activates a random session for a partner the server matched.
// An invalid partner id aborts the match and drops the session back to
// idle so a corrupt event cannot strand it in searching.
func (m *Manager) BeginMatch(localID, partnerID, partnerName string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stage != StageSearching {
		return "", ErrNotSearching
	}
	if !ValidID(partnerID) {
		m.stage = StageIdle
		m.mode = ModeNone
		logrus.WithFields(logrus.Fields{
			"function":   "BeginMatch",
			"partner_id": partnerID,
		}).Error("Match aborted: malformed partner id")
		return "", ErrInvalidPartnerID
	}

	m.stage = StageActive
	m.mode = ModeRandom
	m.partnerID = partnerID
	m.partnerName = partnerName

	room := RoomID(localID, partnerID, ModeRandom)
	logrus.WithFields(logrus.Fields{
		"function":     "BeginMatch",
		"partner_id":   partnerID,
		"partner_name": partnerName,
		"room_id":      room,
	}).Info("Random match activated")
	return room, nil
}

// OpenFriend activates a friend session. Only valid from idle; the caller
// is responsible for confirming the friend exists.
func (m *Manager) OpenFriend(localID, friendID, friendName string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stage != StageIdle {
		return "", ErrNotIdle
	}
	if !ValidID(friendID) {
		return "", ErrInvalidPartnerID
	}

	m.stage = StageActive
	m.mode = ModeFriend
	m.partnerID = friendID
	m.partnerName = friendName

	room := RoomID(localID, friendID, ModeFriend)
	logrus.WithFields(logrus.Fields{
		"function":  "OpenFriend",
		"friend_id": friendID,
		"room_id":   room,
	}).Info("Friend session opened")
	return room, nil
}

// End terminates an active session. The transition through ending back to
// idle happens locally and immediately; it never waits for the server.
// The caller decides whether a leave event is emitted (local leave) or
// not (the partner already left).
func (m *Manager) End() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stage != StageActive {
		return ErrNotActive
	}

	m.stage = StageEnding
	logrus.WithFields(logrus.Fields{
		"function":   "End",
		"mode":       m.mode.String(),
		"partner_id": m.partnerID,
	}).Info("Session ending")

	m.stage = StageIdle
	m.mode = ModeNone
	m.partnerID = ""
	m.partnerName = ""
	return nil
}

// Reset forces the session back to idle regardless of stage.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stage = StageIdle
	m.mode = ModeNone
	m.partnerID = ""
	m.partnerName = ""
}

// Active reports whether a pairing is currently live.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stage == StageActive
}

// Stage returns the current lifecycle stage.
func (m *Manager) Stage() Stage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stage
}

// Mode returns the current session mode.
func (m *Manager) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// PartnerID returns the current partner id, or "" when no pairing exists.
func (m *Manager) PartnerID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.partnerID
}

// PartnerName returns the current partner display name.
func (m *Manager) PartnerName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.partnerName
}

// Snapshot returns a read-only copy of the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Mode:        m.mode,
		Stage:       m.stage,
		PartnerID:   m.partnerID,
		PartnerName: m.partnerName,
	}
}

// Room returns the room id for the current pairing, or "" when idle.
func (m *Manager) Room(localID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.partnerID == "" {
		return ""
	}
	return RoomID(localID, m.partnerID, m.mode)
}
