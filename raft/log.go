package raft

// LogEntry is a single replicated command tagged with the term it was proposed
// in. Indexes start at 1 and are contiguous; 0 means "no entry".
type LogEntry struct {
	Index uint64
	Term  uint64
	Cmd   []byte
}

// Log is the ordered command history for one node. It is owned exclusively by
// that node, which serializes all access; the log itself holds no lock.
type Log struct {
	entries []LogEntry
}

// LastIndex returns the index of the newest entry, or 0 for an empty log.
func (l *Log) LastIndex() uint64 {
	if len(l.entries) == 0 {
		return 0
	}

	return l.entries[len(l.entries)-1].Index
}

// LastTerm returns the term of the newest entry, or 0 for an empty log.
func (l *Log) LastTerm() uint64 {
	if len(l.entries) == 0 {
		return 0
	}

	return l.entries[len(l.entries)-1].Term
}

// Entry returns the entry at index, if present.
func (l *Log) Entry(index uint64) (LogEntry, bool) {
	if index == 0 || index > l.LastIndex() {
		return LogEntry{}, false
	}

	return l.entries[index-1], true
}

// Term returns the term of the entry at index, if present.
func (l *Log) Term(index uint64) (uint64, bool) {
	e, ok := l.Entry(index)
	if !ok {
		return 0, false
	}

	return e.Term, true
}

// Append adds a new entry at the next index. Used on the leader path, where
// commands always go at the tail.
func (l *Log) Append(term uint64, cmd []byte) LogEntry {
	e := LogEntry{
		Index: l.LastIndex() + 1,
		Term:  term,
		Cmd:   cmd,
	}

	l.entries = append(l.entries, e)

	return e
}

// From returns a copy of all entries at index and after. An index past the
// tail yields nil, which doubles as a pure heartbeat payload.
func (l *Log) From(index uint64) []LogEntry {
	if index == 0 {
		index = 1
	}

	if index > l.LastIndex() {
		return nil
	}

	out := make([]LogEntry, l.LastIndex()-index+1)
	copy(out, l.entries[index-1:])

	return out
}

// TruncateFrom discards the entry at index and everything after it.
func (l *Log) TruncateFrom(index uint64) {
	if index == 0 {
		l.entries = nil
		return
	}

	if index > l.LastIndex() {
		return
	}

	l.entries = l.entries[:index-1]
}

// AppendAt reconciles entries from a leader against the local history.
//
// It fails when the log has no entry matching (prevIndex, prevTerm), which
// tells the leader to back its cursor up. Otherwise entries already present
// with the same term are left alone, the first conflicting entry causes a
// truncation from that point, and everything new is appended. Replaying the
// same call is a no-op after the first success.
func (l *Log) AppendAt(prevIndex, prevTerm uint64, entries []LogEntry) bool {
	if prevIndex > 0 {
		t, ok := l.Term(prevIndex)
		if !ok || t != prevTerm {
			return false
		}
	}

	for i, e := range entries {
		t, ok := l.Term(e.Index)
		if ok && t == e.Term {
			continue
		}

		if ok {
			// Same index, different term: everything from here on is from a
			// dead leader's line and gets dropped.
			l.TruncateFrom(e.Index)
		}

		l.entries = append(l.entries, entries[i:]...)
		break
	}

	return true
}
