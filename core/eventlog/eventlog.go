// Package eventlog is a structured event log for shell sessions. Events are
// stored as newline delimited JSON objects so they can be replayed into
// reports later.
package eventlog

import (
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Keys present on every entry.
const (
	KeyTimestamp = "timestamp_micros"
	KeySession   = "session_id"
	KeyType      = "type"
)

// Event types written by the shell.
const (
	SessionStart = "session_start"
	Pipeline     = "pipeline"
	SpawnError   = "spawn_error"
	JobStart     = "job_start"
	JobDone      = "job_done"
	JobKill      = "job_kill"
	JobUntracked = "job_untracked"
	Builtin      = "builtin"
)

// Recorder is a callback that stores entries in an external datastore.
type Recorder func(entry *structpb.Struct) error

// Logger captures shell events.
type Logger struct {
	Record Recorder
}

// NewJSONLinesLogger creates a Logger that writes entries to w in newline
// delimited JSON object format.
func NewJSONLinesLogger(w io.Writer) *Logger {
	var mu sync.Mutex

	return &Logger{
		Record: func(entry *structpb.Struct) error {
			b, err := protojson.Marshal(entry)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			_, err = fmt.Fprintln(w, string(b))
			return err
		},
	}
}

// Discard returns a Logger that drops every entry.
func Discard() *Logger {
	return &Logger{
		Record: func(*structpb.Struct) error { return nil },
	}
}

// NewSession creates a logger with attached session ID.
func (l *Logger) NewSession() *SessionLogger {
	return &SessionLogger{logger: l, sessionID: fmt.Sprintf("%d", rand.Uint64())}
}

// SessionLogger logs events with a shared session ID.
type SessionLogger struct {
	logger    *Logger
	sessionID string
	now       func() time.Time
}

// SessionID returns the identifier stamped on every entry.
func (s *SessionLogger) SessionID() string {
	return s.sessionID
}

// Record writes one event. Field values may be strings, bools, numbers,
// string slices, errors or anything implementing fmt.Stringer.
func (s *SessionLogger) Record(event string, fields map[string]interface{}) error {
	now := time.Now
	if s.now != nil {
		now = s.now
	}

	values := make(map[string]interface{}, len(fields)+3)
	for k, v := range fields {
		values[k] = normalize(v)
	}
	values[KeyTimestamp] = now().UnixMicro()
	values[KeySession] = s.sessionID
	values[KeyType] = event

	entry, err := structpb.NewStruct(values)
	if err != nil {
		return fmt.Errorf("event %s: %w", event, err)
	}
	return s.logger.Record(entry)
}

// normalize converts values structpb doesn't know about.
func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case []string:
		out := make([]interface{}, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case error:
		return val.Error()
	case fmt.Stringer:
		return val.String()
	default:
		return v
	}
}
