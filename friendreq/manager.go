package friendreq

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// Status tracks where the session's friend request stands.
type Status uint8

const (
	StatusNone Status = iota
	StatusReceivedPending
	StatusSentPending
	StatusAccepted
	StatusRejected
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusReceivedPending:
		return "receivedPending"
	case StatusSentPending:
		return "sentPending"
	case StatusAccepted:
		return "accepted"
	case StatusRejected:
		return "rejected"
	default:
		return "none"
	}
}

var (
	// ErrAlreadyPending is returned when a request between the pair is
	// already outstanding in either direction.
	ErrAlreadyPending = errors.New("friendreq: request already pending")
	// ErrNoPendingRequest is returned when accept/reject has no received
	// request to act on.
	ErrNoPendingRequest = errors.New("friendreq: no pending request")
)

// Record is the friend-request state for the current session. FromID and
// FromName identify the requester.
type Record struct {
	FromID   string
	FromName string
	Status   Status
}

// Manager owns the single friend-request record of a session.
type Manager struct {
	record Record
	mu     sync.Mutex
}

// NewManager creates a manager with no outstanding request.
func NewManager() *Manager {
	return &Manager{}
}

// MarkSent records an outgoing request from the local user. It fails with
// ErrAlreadyPending when a request is already outstanding in either
// direction.
func (m *Manager) MarkSent(localID, localName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.record.Status == StatusSentPending || m.record.Status == StatusReceivedPending {
		return ErrAlreadyPending
	}

	m.record = Record{FromID: localID, FromName: localName, Status: StatusSentPending}
	logrus.WithFields(logrus.Fields{
		"function": "MarkSent",
		"from_id":  localID,
	}).Info("Friend request sent")
	return nil
}

// MarkReceived records an incoming request. A duplicate receipt for an
// already-pending request from the same sender is suppressed; it reports
// whether the record changed.
func (m *Manager) MarkReceived(fromID, fromName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.record.Status == StatusReceivedPending && m.record.FromID == fromID {
		logrus.WithFields(logrus.Fields{
			"function": "MarkReceived",
			"from_id":  fromID,
		}).Debug("Duplicate friend request suppressed")
		return false
	}
	if m.record.Status == StatusSentPending {
		// Both sides requested at once; keep the outgoing record, the
		// server resolves the pair with a single status event.
		return false
	}

	m.record = Record{FromID: fromID, FromName: fromName, Status: StatusReceivedPending}
	logrus.WithFields(logrus.Fields{
		"function":  "MarkReceived",
		"from_id":   fromID,
		"from_name": fromName,
	}).Info("Friend request received")
	return true
}

// Accept resolves a received request positively and clears the record.
// It returns the resolved record.
func (m *Manager) Accept() (Record, error) {
	return m.resolveReceived(StatusAccepted)
}

// Reject resolves a received request negatively and clears the record.
func (m *Manager) Reject() (Record, error) {
	return m.resolveReceived(StatusRejected)
}

func (m *Manager) resolveReceived(status Status) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.record.Status != StatusReceivedPending {
		return Record{}, ErrNoPendingRequest
	}

	resolved := m.record
	resolved.Status = status
	m.record = Record{}

	logrus.WithFields(logrus.Fields{
		"function": "resolveReceived",
		"from_id":  resolved.FromID,
		"status":   status.String(),
	}).Info("Friend request resolved locally")
	return resolved, nil
}

// ResolveRemote applies the counterpart's accept/reject of the request
// this client sent, clearing the record. It reports whether a sent
// request was actually outstanding.
func (m *Manager) ResolveRemote(status Status) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.record.Status != StatusSentPending {
		return Record{}, false
	}

	resolved := m.record
	resolved.Status = status
	m.record = Record{}

	logrus.WithFields(logrus.Fields{
		"function": "ResolveRemote",
		"status":   status.String(),
	}).Info("Friend request resolved by counterpart")
	return resolved, true
}

// Restore reinstates a record, used to roll back an optimistic update
// whose persistence call failed.
func (m *Manager) Restore(rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = rec
}

// Pending reports whether a request is outstanding in either direction.
func (m *Manager) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record.Status == StatusSentPending || m.record.Status == StatusReceivedPending
}

// Snapshot returns a copy of the current record.
func (m *Manager) Snapshot() Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record
}

// Clear drops any outstanding record. Called on session teardown.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = Record{}
}
