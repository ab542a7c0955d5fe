package logging

import "sync"

// Record is one captured log call
type Record struct {
	Level   Level
	Message string
	Fields  map[string]any
}

// Recorder keeps log calls in memory. Tests use it to assert which
// warnings and errors a component emitted.
type Recorder struct {
	fields []Field
	shared *recorderState
}

type recorderState struct {
	mu      sync.Mutex
	records []Record
}

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{shared: &recorderState{}}
}

func (r *Recorder) record(level Level, msg string, fields []Field) {
	fm := make(map[string]any, len(r.fields)+len(fields))
	for _, f := range r.fields {
		fm[f.Key] = f.Value
	}
	for _, f := range fields {
		fm[f.Key] = f.Value
	}

	r.shared.mu.Lock()
	r.shared.records = append(r.shared.records, Record{Level: level, Message: msg, Fields: fm})
	r.shared.mu.Unlock()
}

func (r *Recorder) Debug(msg string, fields ...Field) { r.record(DebugLevel, msg, fields) }
func (r *Recorder) Info(msg string, fields ...Field)  { r.record(InfoLevel, msg, fields) }
func (r *Recorder) Warn(msg string, fields ...Field)  { r.record(WarnLevel, msg, fields) }
func (r *Recorder) Error(msg string, fields ...Field) { r.record(ErrorLevel, msg, fields) }

// With returns a Recorder sharing the same record buffer
func (r *Recorder) With(fields ...Field) Logger {
	merged := make([]Field, 0, len(r.fields)+len(fields))
	merged = append(merged, r.fields...)
	merged = append(merged, fields...)
	return &Recorder{fields: merged, shared: r.shared}
}

// Records returns a snapshot of everything logged so far
func (r *Recorder) Records() []Record {
	r.shared.mu.Lock()
	defer r.shared.mu.Unlock()
	out := make([]Record, len(r.shared.records))
	copy(out, r.shared.records)
	return out
}

// Count returns how many records were logged at the given level
func (r *Recorder) Count(level Level) int {
	n := 0
	for _, rec := range r.Records() {
		if rec.Level == level {
			n++
		}
	}
	return n
}

// Messages returns the messages logged at the given level, in order
func (r *Recorder) Messages(level Level) []string {
	var msgs []string
	for _, rec := range r.Records() {
		if rec.Level == level {
			msgs = append(msgs, rec.Message)
		}
	}
	return msgs
}
