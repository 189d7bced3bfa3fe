package raft

import (
	"reflect"
	"testing"
)

func entry(index, term uint64, cmd string) LogEntry {
	return LogEntry{Index: index, Term: term, Cmd: []byte(cmd)}
}

func TestLogAppend(t *testing.T) {
	l := &Log{}

	e := l.Append(1, []byte("a"))
	if e.Index != 1 || e.Term != 1 {
		t.Errorf("first append got index=%d term=%d, want 1/1", e.Index, e.Term)
	}

	e = l.Append(3, []byte("b"))
	if e.Index != 2 || e.Term != 3 {
		t.Errorf("second append got index=%d term=%d, want 2/3", e.Index, e.Term)
	}

	if l.LastIndex() != 2 || l.LastTerm() != 3 {
		t.Errorf("lastIndex=%d lastTerm=%d, want 2/3", l.LastIndex(), l.LastTerm())
	}
}

func TestLogTruncateFrom(t *testing.T) {
	l := &Log{entries: []LogEntry{entry(1, 1, "a"), entry(2, 1, "b"), entry(3, 2, "c")}}

	l.TruncateFrom(2)

	if l.LastIndex() != 1 {
		t.Errorf("lastIndex=%d, want 1", l.LastIndex())
	}

	if _, ok := l.Entry(2); ok {
		t.Error("entry 2 still present after truncate")
	}

	// Truncating past the tail is a no-op.
	l.TruncateFrom(10)
	if l.LastIndex() != 1 {
		t.Errorf("lastIndex=%d after oversized truncate, want 1", l.LastIndex())
	}
}

func TestLogFrom(t *testing.T) {
	l := &Log{entries: []LogEntry{entry(1, 1, "a"), entry(2, 1, "b"), entry(3, 2, "c")}}

	got := l.From(2)
	want := []LogEntry{entry(2, 1, "b"), entry(3, 2, "c")}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("From(2)=%+v, want %+v", got, want)
	}

	if got := l.From(4); got != nil {
		t.Errorf("From(4)=%+v, want nil", got)
	}
}

func TestLogAppendAt(t *testing.T) {
	cases := []struct {
		name      string
		initial   []LogEntry
		prevIndex uint64
		prevTerm  uint64
		entries   []LogEntry
		want      bool
		wantLog   []LogEntry
	}{
		{
			name:    "first append into empty log",
			entries: []LogEntry{entry(1, 1, "a")},
			want:    true,
			wantLog: []LogEntry{entry(1, 1, "a")},
		},
		{
			name:      "append at tail",
			initial:   []LogEntry{entry(1, 1, "a")},
			prevIndex: 1,
			prevTerm:  1,
			entries:   []LogEntry{entry(2, 1, "b")},
			want:      true,
			wantLog:   []LogEntry{entry(1, 1, "a"), entry(2, 1, "b")},
		},
		{
			name:      "missing prev entry",
			initial:   []LogEntry{entry(1, 1, "a")},
			prevIndex: 3,
			prevTerm:  1,
			entries:   []LogEntry{entry(4, 2, "d")},
			want:      false,
			wantLog:   []LogEntry{entry(1, 1, "a")},
		},
		{
			name:      "prev term mismatch",
			initial:   []LogEntry{entry(1, 1, "a"), entry(2, 1, "b")},
			prevIndex: 2,
			prevTerm:  2,
			entries:   []LogEntry{entry(3, 2, "c")},
			want:      false,
			wantLog:   []LogEntry{entry(1, 1, "a"), entry(2, 1, "b")},
		},
		{
			name:      "conflict truncates dead tail",
			initial:   []LogEntry{entry(1, 1, "a"), entry(2, 1, "b"), entry(3, 1, "c")},
			prevIndex: 1,
			prevTerm:  1,
			entries:   []LogEntry{entry(2, 2, "x"), entry(3, 2, "y")},
			want:      true,
			wantLog:   []LogEntry{entry(1, 1, "a"), entry(2, 2, "x"), entry(3, 2, "y")},
		},
		{
			name:      "duplicate replay is a no-op",
			initial:   []LogEntry{entry(1, 1, "a"), entry(2, 1, "b")},
			prevIndex: 1,
			prevTerm:  1,
			entries:   []LogEntry{entry(2, 1, "b")},
			want:      true,
			wantLog:   []LogEntry{entry(1, 1, "a"), entry(2, 1, "b")},
		},
		{
			name:      "overlap keeps matching prefix and appends the rest",
			initial:   []LogEntry{entry(1, 1, "a"), entry(2, 1, "b")},
			prevIndex: 1,
			prevTerm:  1,
			entries:   []LogEntry{entry(2, 1, "b"), entry(3, 1, "c")},
			want:      true,
			wantLog:   []LogEntry{entry(1, 1, "a"), entry(2, 1, "b"), entry(3, 1, "c")},
		},
		{
			name:    "heartbeat with empty log",
			entries: nil,
			want:    true,
			wantLog: nil,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			l := &Log{entries: c.initial}

			if got := l.AppendAt(c.prevIndex, c.prevTerm, c.entries); got != c.want {
				t.Errorf("AppendAt returned %v, want %v", got, c.want)
			}

			if !reflect.DeepEqual(l.entries, c.wantLog) {
				t.Errorf("log entries incorrect.\nExpected = %+v\nGot = %+v", c.wantLog, l.entries)
			}
		})
	}
}
