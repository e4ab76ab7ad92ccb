package eventlog

import (
	"encoding/json"
	"io"
	"sort"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ReadJSONLinesLog parses a newline delimited JSON log.
func ReadJSONLinesLog(r io.Reader, handler func(entry *structpb.Struct)) error {
	decoder := json.NewDecoder(r)
	for decoder.More() {
		var rawEntry json.RawMessage
		if err := decoder.Decode(&rawEntry); err != nil {
			return err
		}

		var entry structpb.Struct
		if err := protojson.Unmarshal(rawEntry, &entry); err != nil {
			return err
		}

		handler(&entry)
	}
	return nil
}

// Type returns the event type of an entry.
func Type(entry *structpb.Struct) string {
	return entry.GetFields()[KeyType].GetStringValue()
}

// Report holds statistics about the logged events.
type Report struct {
	LogEntries     int        `json:"log_entries"`
	Sessions       StrCounter `json:"sessions"`
	InvalidEntries StrCounter `json:"unknown_log_entries,omitempty"`

	Pipeline   PipelineReport   `json:"pipeline_report"`
	SpawnError SpawnErrorReport `json:"spawn_error_report"`
	Jobs       JobReport        `json:"job_report"`
	Builtin    BuiltinReport    `json:"builtin_report"`
}

// NewReport creates an empty report.
func NewReport() *Report {
	return &Report{
		SpawnError: SpawnErrorReport{
			Failures: NewPathCounter("command", "status"),
		},
	}
}

// Update folds one entry into the report.
func (r *Report) Update(entry *structpb.Struct) {
	r.LogEntries++
	fields := entry.GetFields()

	switch event := Type(entry); event {
	case SessionStart:
		r.Sessions.Increment(fields[KeySession].GetStringValue())
	case Pipeline:
		r.Pipeline.update(fields)
	case SpawnError:
		r.SpawnError.update(fields)
	case JobStart, JobDone, JobKill, JobUntracked:
		r.Jobs.update(event, fields)
	case Builtin:
		r.Builtin.update(fields)
	default:
		r.InvalidEntries.Increment(event)
	}
}

type PipelineReport struct {
	Count      int `json:"count"`
	Background int `json:"background"`
	// Number of pipelines by stage count.
	Stages StrCounter `json:"stages"`
	// Commands run in any stage.
	CommandNames StrCounter `json:"command_names"`
}

func (r *PipelineReport) update(fields map[string]*structpb.Value) {
	r.Count++
	if fields["background"].GetBoolValue() {
		r.Background++
	}
	r.Stages.Increment(formatNumber(fields["stages"]))
	for _, name := range fields["commands"].GetListValue().GetValues() {
		r.CommandNames.Increment(name.GetStringValue())
	}
}

type SpawnErrorReport struct {
	Failures *PathCounter `json:"failures"`
}

func (r *SpawnErrorReport) update(fields map[string]*structpb.Value) {
	r.Failures.Increment(fields["command"].GetStringValue(), formatNumber(fields["status"]))
}

type JobReport struct {
	Started   int `json:"started"`
	Done      int `json:"done"`
	Killed    int `json:"killed"`
	Untracked int `json:"untracked"`
	// Exit statuses of jobs that finished on their own.
	Statuses StrCounter `json:"statuses"`
}

func (r *JobReport) update(event string, fields map[string]*structpb.Value) {
	switch event {
	case JobStart:
		r.Started++
	case JobDone:
		r.Done++
		r.Statuses.Increment(fields["status"].GetStringValue())
	case JobKill:
		r.Killed++
	case JobUntracked:
		r.Untracked++
	}
}

type BuiltinReport struct {
	CommandNames StrCounter `json:"command_names"`
}

func (r *BuiltinReport) update(fields map[string]*structpb.Value) {
	r.CommandNames.Increment(fields["command"].GetStringValue())
}

func formatNumber(v *structpb.Value) string {
	b, _ := json.Marshal(v.GetNumberValue())
	return string(b)
}

// StrCounter counts the number of strings seen.
type StrCounter struct {
	internal map[string]int
}

// Increment adds one to the given key.
func (s *StrCounter) Increment(toAdd string) {
	if s.internal == nil {
		s.internal = make(map[string]int)
	}

	s.internal[toAdd]++
}

// Get returns the count for key.
func (s *StrCounter) Get(key string) int {
	return s.internal[key]
}

// MarshalJSON implements a custom JSON marshaler.
func (s StrCounter) MarshalJSON() ([]byte, error) {
	if s.internal == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.internal)
}

func NewPathCounter(cols ...string) *PathCounter {
	return &PathCounter{
		cols:     cols,
		internal: make(map[string]int),
	}
}

// PathCounter counts tuples of strings.
type PathCounter struct {
	cols     []string
	internal map[string]int
}

// Increment adds one to the given tuple.
func (ctr *PathCounter) Increment(toAdd ...string) {
	if len(toAdd) != len(ctr.cols) {
		panic("wrong number of columns to add")
	}

	ctr.internal[toKey(toAdd...)]++
}

// MarshalJSON implements a custom JSON marshaler, the most frequent tuples
// come first.
func (ctr *PathCounter) MarshalJSON() ([]byte, error) {
	type Count struct {
		Count  int               `json:"count"`
		Fields map[string]string `json:"event"`
		Path   string            `json:"-"`
	}

	out := []Count{}
	for k, v := range ctr.internal {
		count := Count{
			Count:  v,
			Path:   k,
			Fields: make(map[string]string),
		}

		splitPath := fromKey(k)
		for colNum, colVal := range ctr.cols {
			count.Fields[colVal] = splitPath[colNum]
		}

		out = append(out, count)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Path < out[j].Path
		}
		return out[i].Count > out[j].Count
	})

	return json.Marshal(out)
}

func toKey(vals ...string) string {
	key, _ := json.Marshal(vals)
	return string(key)
}

func fromKey(key string) (out []string) {
	json.Unmarshal([]byte(key), &out)
	return
}
