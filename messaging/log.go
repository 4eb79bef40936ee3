package messaging

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Log is the ordered message log for one session. All methods are safe
// for concurrent use.
type Log struct {
	entries     []Message
	dedupWindow time.Duration
	mu          sync.Mutex
}

// NewLog creates an empty log with the given dedup window.
func NewLog(dedupWindow time.Duration) *Log {
	return &Log{dedupWindow: dedupWindow}
}

// AppendLocal appends an optimistic local message before the network has
// confirmed it. The caller rolls it back with RollbackLocal if the send
// fails.
func (l *Log) AppendLocal(senderID, text string, timestamp int64) Message {
	msg := Message{
		ID:        CompositeID(senderID, timestamp),
		Text:      text,
		Role:      RoleLocal,
		Kind:      KindNormal,
		Timestamp: timestamp,
	}

	l.mu.Lock()
	l.entries = append(l.entries, msg)
	l.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":  "AppendLocal",
		"id":        msg.ID,
		"timestamp": timestamp,
	}).Debug("Optimistic local message appended")
	return msg
}

// RollbackLocal removes the most recent local message with the given
// timestamp. It reports whether an entry was removed.
func (l *Log) RollbackLocal(timestamp int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if e.Role == RoleLocal && e.Timestamp == timestamp {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			logrus.WithFields(logrus.Fields{
				"function":  "RollbackLocal",
				"id":        e.ID,
				"timestamp": timestamp,
			}).Info("Optimistic message rolled back after send failure")
			return true
		}
	}
	return false
}

// IngestRemote appends an inbound partner message unless the dedup filter
// classifies it as a replay. A replay is a remote entry already in the log
// with identical text and a timestamp within the dedup window of the
// incoming one. Returns the appended message and whether it was appended.
func (l *Log) IngestRemote(senderID, text string, timestamp int64) (Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if e.Role != RoleRemote || e.Text != text {
			continue
		}
		delta := timestamp - e.Timestamp
		if delta < 0 {
			delta = -delta
		}
		if time.Duration(delta)*time.Millisecond <= l.dedupWindow {
			logrus.WithFields(logrus.Fields{
				"function":  "IngestRemote",
				"timestamp": timestamp,
				"delta_ms":  delta,
			}).Warn("Duplicate remote message discarded")
			return Message{}, false
		}
	}

	msg := Message{
		ID:        CompositeID(senderID, timestamp),
		Text:      text,
		Role:      RoleRemote,
		Kind:      KindNormal,
		Timestamp: timestamp,
	}
	l.entries = append(l.entries, msg)
	return msg, true
}

// MarkSeen flips the most recent unseen local message with the given
// timestamp to seen. It reports whether an entry was updated.
func (l *Log) MarkSeen(timestamp int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.entries) - 1; i >= 0; i-- {
		e := &l.entries[i]
		if e.Role == RoleLocal && e.Timestamp == timestamp && !e.Seen {
			e.Seen = true
			return true
		}
	}
	return false
}

// AppendSystem appends a coordinator-generated notice.
func (l *Log) AppendSystem(id, text string, kind Kind, timestamp int64) Message {
	msg := Message{
		ID:        id,
		Text:      text,
		Role:      RoleSystem,
		Kind:      kind,
		Timestamp: timestamp,
	}

	l.mu.Lock()
	l.entries = append(l.entries, msg)
	l.mu.Unlock()
	return msg
}

// RemoveByID removes the entry with the given id. Used to roll back a
// friend-request notice whose persistence call failed.
func (l *Log) RemoveByID(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].ID == id {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Preload inserts durable-history entries at the front of the log,
// skipping ids already present. The live realtime log stays authoritative;
// history only backfills what happened before this session instance.
func (l *Log) Preload(history []Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing := make(map[string]struct{}, len(l.entries))
	for _, e := range l.entries {
		existing[e.ID] = struct{}{}
	}

	var merged []Message
	for _, h := range history {
		if _, ok := existing[h.ID]; ok {
			continue
		}
		merged = append(merged, h)
	}
	l.entries = append(merged, l.entries...)

	logrus.WithFields(logrus.Fields{
		"function": "Preload",
		"loaded":   len(merged),
		"total":    len(l.entries),
	}).Info("Chat history reconciled into log")
}

// Snapshot returns a copy of the log for view consumption.
func (l *Log) Snapshot() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Message, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Reset clears the log. Called when the session is torn down.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}
