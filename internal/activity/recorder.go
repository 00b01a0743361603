package activity

// Recorder receives fire-and-forget session events (finish logs, incorrect
// answers, corrected mistakes, lecture views). Implementations must not
// block; the client routes these through the outbox.
type Recorder interface {
	Record(eventType string, payload map[string]any)
}

// record tolerates a nil recorder so engines can run detached in tests.
func record(rec Recorder, eventType string, payload map[string]any) {
	if rec != nil {
		rec.Record(eventType, payload)
	}
}
