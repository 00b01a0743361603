package content

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RowDiagnostic describes one rejected source row. Diagnostics are collected
// into the load report so operators can fix the sheet instead of content
// silently disappearing.
type RowDiagnostic struct {
	Collection string `json:"collection"`
	Index      int    `json:"index"`
	ID         string `json:"id,omitempty"`
	Reason     string `json:"reason"`
}

func (d RowDiagnostic) String() string {
	return fmt.Sprintf("%s[%d] id=%q: %s", d.Collection, d.Index, d.ID, d.Reason)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// questionRow mirrors the duck-typed service row for a practice question.
type questionRow struct {
	ID       string         `json:"id" validate:"required"`
	Type     string         `json:"type" validate:"omitempty,oneof=single multiple"`
	Chapter  string         `json:"chapter" validate:"required"`
	Source   string         `json:"source"`
	Prompt   string         `json:"question" validate:"required"`
	ImageURL string         `json:"imageUrl" validate:"omitempty,url"`
	Options  []AnswerOption `json:"answers" validate:"required,min=2,dive"`
	Hint     string         `json:"hint"`
	Keywords []string       `json:"keywords"`
}

// rawSnapshot is the wire shape of the contentData read.
type rawSnapshot struct {
	Version       string            `json:"version"`
	Questions     []json.RawMessage `json:"questions"`
	Lectures      []Lecture         `json:"lectures"`
	OSCECases     []OSCECase        `json:"osceCases"`
	OSCEQuestions []OSCEQuestion    `json:"osceQuestions"`
	Books         []Book            `json:"books"`
	Announcements []Announcement    `json:"announcements"`
	Roles         []Role            `json:"roles"`
	ChapterNames  []string          `json:"chapterNames"`
}

// ParseSnapshot builds a Snapshot from the raw contentData body. Rows failing
// validation are dropped from the snapshot and reported as diagnostics; a
// malformed body as a whole is an error.
func ParseSnapshot(raw json.RawMessage) (*Snapshot, []RowDiagnostic, error) {
	var rs rawSnapshot
	if err := json.Unmarshal(raw, &rs); err != nil {
		return nil, nil, fmt.Errorf("content body: %w", err)
	}

	snap := &Snapshot{
		Version:       rs.Version,
		Lectures:      rs.Lectures,
		Books:         rs.Books,
		Announcements: rs.Announcements,
		Roles:         rs.Roles,
		ChapterNames:  rs.ChapterNames,
	}

	var diags []RowDiagnostic
	for i, row := range rs.Questions {
		q, err := parseQuestion(row)
		if err != nil {
			diags = append(diags, RowDiagnostic{
				Collection: "questions",
				Index:      i,
				ID:         peekID(row),
				Reason:     err.Error(),
			})
			continue
		}
		snap.Questions = append(snap.Questions, q)
	}

	snap.OSCEQuestions, snap.OSCECases = rs.OSCEQuestions, rs.OSCECases
	diags = append(diags, validateOSCE(snap)...)

	return snap, diags, nil
}

// parseQuestion validates one raw row and normalizes it into a Question.
func parseQuestion(raw json.RawMessage) (Question, error) {
	var row questionRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return Question{}, fmt.Errorf("malformed row: %w", err)
	}
	if row.Type == "" {
		row.Type = "single"
	}
	if err := validate.Struct(row); err != nil {
		return Question{}, fmt.Errorf("invalid row: %s", flattenValidation(err))
	}
	correct := 0
	for _, opt := range row.Options {
		if opt.IsCorrect {
			correct++
		}
	}
	if correct == 0 {
		return Question{}, fmt.Errorf("no correct answer option")
	}
	if row.Type == "single" && correct > 1 {
		return Question{}, fmt.Errorf("single-answer question with %d correct options", correct)
	}

	return Question{
		ID:       row.ID,
		Type:     row.Type,
		Chapter:  row.Chapter,
		Source:   row.Source,
		Prompt:   row.Prompt,
		ImageURL: row.ImageURL,
		Options:  row.Options,
		Hint:     row.Hint,
		Keywords: row.Keywords,
	}, nil
}

// validateOSCE drops OSCE questions with a dangling case reference and
// reports them, so engines can assume referential integrity.
func validateOSCE(snap *Snapshot) []RowDiagnostic {
	cases := make(map[string]bool, len(snap.OSCECases))
	for _, c := range snap.OSCECases {
		cases[c.ID] = true
	}
	var diags []RowDiagnostic
	kept := snap.OSCEQuestions[:0]
	for i, q := range snap.OSCEQuestions {
		switch {
		case q.ID == "" || q.Prompt == "":
			diags = append(diags, RowDiagnostic{Collection: "osceQuestions", Index: i, ID: q.ID, Reason: "missing id or prompt"})
		case !cases[q.CaseID]:
			diags = append(diags, RowDiagnostic{Collection: "osceQuestions", Index: i, ID: q.ID, Reason: fmt.Sprintf("unknown case %q", q.CaseID)})
		case q.Kind != OSCEKindMCQ && q.Kind != OSCEKindEssay:
			diags = append(diags, RowDiagnostic{Collection: "osceQuestions", Index: i, ID: q.ID, Reason: fmt.Sprintf("unknown kind %q", q.Kind)})
		default:
			kept = append(kept, q)
		}
	}
	snap.OSCEQuestions = kept
	return diags
}

// QuestionsForCase returns the sub-questions of one case, in source order.
func (s *Snapshot) QuestionsForCase(caseID string) []OSCEQuestion {
	var out []OSCEQuestion
	for _, q := range s.OSCEQuestions {
		if q.CaseID == caseID {
			out = append(out, q)
		}
	}
	return out
}

// PermissionsForRole resolves a role name to its permission map. Unknown
// roles get an empty map, which denies every gated feature.
func (s *Snapshot) PermissionsForRole(role string) map[string]bool {
	for _, r := range s.Roles {
		if r.Name == role {
			perms := make(map[string]bool, len(r.Permissions))
			for k, v := range r.Permissions {
				perms[k] = v
			}
			return perms
		}
	}
	return map[string]bool{}
}

func peekID(raw json.RawMessage) string {
	var probe struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(raw, &probe)
	return probe.ID
}

func flattenValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s fails %q", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}
