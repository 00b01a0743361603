package activity

// ItemDetail is one line of the per-item result breakdown.
type ItemDetail struct {
	ItemID  string `json:"itemId"`
	Chosen  string `json:"chosenAnswer"` // NoAnswer for timed-out items
	Correct bool   `json:"correct"`
}

// Result is the single completion contract shared by every engine, so the
// presentation layer renders one results screen for all of them.
type Result struct {
	SessionID  string       `json:"sessionId"`
	Kind       Kind         `json:"kind"`
	Title      string       `json:"title"`
	Score      int          `json:"score"`
	Total      int          `json:"total"`
	Reviewable bool         `json:"reviewable"`
	Details    []ItemDetail `json:"details"`
}
