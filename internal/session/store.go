// Package session holds the in-memory state of a signed-in user: identity,
// the loaded content snapshot, active activity runs, and annotation state.
// A Store is created per client and injected into the components that need
// it; there is no package-level instance.
package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/studykit/studykit/internal/activity"
	"github.com/studykit/studykit/internal/content"
)

// User identifies the signed-in account.
type User struct {
	ID          string
	Name        string
	Role        string
	Permissions map[string]bool
}

// AnnotationKind distinguishes free-text notes from lecture markers.
type AnnotationKind string

const (
	AnnotationNote   AnnotationKind = "note"
	AnnotationMarker AnnotationKind = "marker"
)

// Annotation is a user-authored note or marker attached to a target
// (question, lecture, or book section).
type Annotation struct {
	UserID    string
	TargetID  string
	Kind      AnnotationKind
	Text      string
	UpdatedAt time.Time
}

type annKey struct {
	userID   string
	targetID string
	kind     AnnotationKind
}

// Store is the mutable session state. All methods are safe for concurrent
// use.
type Store struct {
	mu sync.Mutex

	user        *User
	snapshot    *content.Snapshot
	active      map[activity.Kind]activity.Activity
	annotations map[annKey]Annotation
	viewed      map[string]struct{}
	bookmarks   map[string]struct{}
	lastResult  *activity.Result
	score       int

	log zerolog.Logger
	now func() time.Time
}

// NewStore returns an empty session store.
func NewStore(log zerolog.Logger) *Store {
	return &Store{
		active:      make(map[activity.Kind]activity.Activity),
		annotations: make(map[annKey]Annotation),
		viewed:      make(map[string]struct{}),
		bookmarks:   make(map[string]struct{}),
		log:         log,
		now:         time.Now,
	}
}

// SetUser records the signed-in user.
func (s *Store) SetUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &u
}

// User returns the signed-in user, if any.
func (s *Store) User() (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

// HasPermission reports whether the signed-in user's role grants perm.
func (s *Store) HasPermission(perm string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user != nil && s.user.Permissions[perm]
}

// SetSnapshot installs the loaded content snapshot. Role permissions live in
// the snapshot, so a signed-in user's permission map is re-derived here; sign
// in and content load may happen in either order.
func (s *Store) SetSnapshot(snap *content.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snap
	if s.user != nil && snap != nil {
		s.user.Permissions = snap.PermissionsForRole(s.user.Role)
	}
}

// Snapshot returns the loaded content snapshot, if any.
func (s *Store) Snapshot() (*content.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return nil, false
	}
	return s.snapshot, true
}

// SetActive installs act as the running activity of its kind. A previous
// run of the same kind is terminated first, so at most one run per kind is
// live at any time.
func (s *Store) SetActive(act activity.Activity) {
	s.mu.Lock()
	prev := s.active[act.ActivityKind()]
	s.active[act.ActivityKind()] = act
	s.mu.Unlock()

	if prev != nil && !prev.Completed() {
		s.log.Debug().Str("kind", string(act.ActivityKind())).Msg("terminating replaced activity")
		prev.Terminate()
	}
}

// Active returns the running activity of the given kind, if any.
func (s *Store) Active(kind activity.Kind) (activity.Activity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	act, ok := s.active[kind]
	return act, ok
}

// ClearActive removes the activity of the given kind, terminating it if
// still running.
func (s *Store) ClearActive(kind activity.Kind) {
	s.mu.Lock()
	act := s.active[kind]
	delete(s.active, kind)
	s.mu.Unlock()

	if act != nil && !act.Completed() {
		act.Terminate()
	}
}

// SetLastResult records the most recently completed run for review.
func (s *Store) SetLastResult(res activity.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastResult = &res
}

// LastResult returns the most recently completed run, if any.
func (s *Store) LastResult() (activity.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastResult == nil {
		return activity.Result{}, false
	}
	return *s.lastResult, true
}

// AddScore bumps the running score counter by the points of one completed
// run and returns the new value.
func (s *Store) AddScore(points int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.score += points
	return s.score
}

// Score returns the running score accumulated this session.
func (s *Store) Score() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.score
}

// SetAnnotation upserts an annotation keyed by (user, target, kind).
func (s *Store) SetAnnotation(userID, targetID string, kind AnnotationKind, text string) Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	ann := Annotation{
		UserID:    userID,
		TargetID:  targetID,
		Kind:      kind,
		Text:      text,
		UpdatedAt: s.now(),
	}
	s.annotations[annKey{userID, targetID, kind}] = ann
	return ann
}

// Annotation looks up an annotation by its key.
func (s *Store) Annotation(userID, targetID string, kind AnnotationKind) (Annotation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ann, ok := s.annotations[annKey{userID, targetID, kind}]
	return ann, ok
}

// DeleteAnnotation removes an annotation; deleting a missing one is a no-op.
func (s *Store) DeleteAnnotation(userID, targetID string, kind AnnotationKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.annotations, annKey{userID, targetID, kind})
}

// AnnotationsFor lists a user's annotations of one kind.
func (s *Store) AnnotationsFor(userID string, kind AnnotationKind) []Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Annotation
	for k, ann := range s.annotations {
		if k.userID == userID && k.kind == kind {
			out = append(out, ann)
		}
	}
	return out
}

// MarkLectureViewed records lectureID as viewed and reports whether this is
// the first view.
func (s *Store) MarkLectureViewed(lectureID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.viewed[lectureID]; seen {
		return false
	}
	s.viewed[lectureID] = struct{}{}
	return true
}

// LectureViewed reports whether lectureID has been viewed this account.
func (s *Store) LectureViewed(lectureID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.viewed[lectureID]
	return ok
}

// ViewedLectures returns the viewed lecture ids.
func (s *Store) ViewedLectures() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return keys(s.viewed)
}

// LoadViewedLectures seeds the viewed set, replacing the current one.
func (s *Store) LoadViewedLectures(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewed = toSet(ids)
}

// ToggleBookmark flips the bookmark on targetID and reports the new state.
func (s *Store) ToggleBookmark(targetID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookmarks[targetID]; ok {
		delete(s.bookmarks, targetID)
		return false
	}
	s.bookmarks[targetID] = struct{}{}
	return true
}

// Bookmarked reports whether targetID is bookmarked.
func (s *Store) Bookmarked(targetID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.bookmarks[targetID]
	return ok
}

// Bookmarks returns the bookmarked target ids.
func (s *Store) Bookmarks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return keys(s.bookmarks)
}

// LoadBookmarks seeds the bookmark set, replacing the current one.
func (s *Store) LoadBookmarks(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookmarks = toSet(ids)
}

// Reset clears all session state. Running activities are terminated. The
// content snapshot is kept; it is account-independent.
func (s *Store) Reset() {
	s.mu.Lock()
	running := make([]activity.Activity, 0, len(s.active))
	for _, act := range s.active {
		running = append(running, act)
	}
	s.user = nil
	s.active = make(map[activity.Kind]activity.Activity)
	s.annotations = make(map[annKey]Annotation)
	s.viewed = make(map[string]struct{})
	s.bookmarks = make(map[string]struct{})
	s.lastResult = nil
	s.score = 0
	s.mu.Unlock()

	for _, act := range running {
		if !act.Completed() {
			act.Terminate()
		}
	}
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
