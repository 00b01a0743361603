// Package content defines the shared study material: the versioned snapshot
// and its typed records, plus the strict parse boundary that turns loosely
// structured service rows into validated records.
package content

import "time"

// Snapshot is the versioned bundle of all shared content. It is either fully
// present or absent, never partially cached, and is read-only once built.
type Snapshot struct {
	Version   string    `json:"version"`
	FetchedAt time.Time `json:"fetchedAt"`

	Questions     []Question     `json:"questions"`
	Lectures      []Lecture      `json:"lectures"`
	OSCECases     []OSCECase     `json:"osceCases"`
	OSCEQuestions []OSCEQuestion `json:"osceQuestions"`
	Books         []Book         `json:"books"`
	Announcements []Announcement `json:"announcements"`
	Roles         []Role         `json:"roles"`
	ChapterNames  []string       `json:"chapterNames"`
}

// AnswerOption is one selectable answer of a practice question.
type AnswerOption struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
	Rationale string `json:"rationale,omitempty"`
}

// Question is a normalized practice-question record.
type Question struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"` // "single" or "multiple"
	Chapter  string         `json:"chapter"`
	Source   string         `json:"source,omitempty"`
	Prompt   string         `json:"question"`
	ImageURL string         `json:"imageUrl,omitempty"`
	Options  []AnswerOption `json:"answers"`
	Hint     string         `json:"hint,omitempty"`
	Keywords []string       `json:"keywords,omitempty"`
}

// Lecture is one entry of the lecture library.
type Lecture struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Chapter string `json:"chapter"`
	URL     string `json:"url,omitempty"`
}

// OSCECase is a clinical scenario grouping one or more OSCE questions.
type OSCECase struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

// OSCEQuestionKind distinguishes auto-graded MCQ sub-questions from
// reveal-then-self-report essays.
type OSCEQuestionKind string

const (
	OSCEKindMCQ   OSCEQuestionKind = "mcq"
	OSCEKindEssay OSCEQuestionKind = "essay"
)

// OSCEQuestion is one sub-question of an OSCE case.
type OSCEQuestion struct {
	ID          string           `json:"id"`
	CaseID      string           `json:"caseId"`
	Kind        OSCEQuestionKind `json:"kind"`
	Prompt      string           `json:"question"`
	Options     []AnswerOption   `json:"answers,omitempty"`     // mcq only
	ModelAnswer string           `json:"modelAnswer,omitempty"` // essay only
}

// Book is one entry of the reference library.
type Book struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// Announcement is a dated broadcast message.
type Announcement struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Date string `json:"date,omitempty"`
}

// Role maps a role name to its feature permission set.
type Role struct {
	Name        string          `json:"name"`
	Permissions map[string]bool `json:"permissions"`
}
