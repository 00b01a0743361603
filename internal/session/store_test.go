package session

import (
	"sort"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/studykit/studykit/internal/activity"
	"github.com/studykit/studykit/internal/content"
)

// fakeActivity satisfies activity.Activity for replacement tests.
type fakeActivity struct {
	kind       activity.Kind
	terminated bool
}

func (f *fakeActivity) ActivityKind() activity.Kind { return f.kind }
func (f *fakeActivity) Completed() bool             { return f.terminated }
func (f *fakeActivity) Terminate()                  { f.terminated = true }

func newTestStore() *Store { return NewStore(zerolog.Nop()) }

func TestStore_UserLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestStore()

	_, ok := s.User()
	require.False(t, ok)

	s.SetUser(User{ID: "u1", Name: "Dina", Role: "student",
		Permissions: map[string]bool{"osce": true}})
	u, ok := s.User()
	require.True(t, ok)
	require.Equal(t, "Dina", u.Name)
	require.True(t, s.HasPermission("osce"))
	require.False(t, s.HasPermission("admin"))

	s.Reset()
	_, ok = s.User()
	require.False(t, ok)
}

// Signing in before content loads must not leave the user permissionless:
// installing the snapshot re-derives the permission map from the role.
func TestStore_SetSnapshotRefreshesPermissions(t *testing.T) {
	t.Parallel()
	s := newTestStore()

	s.SetUser(User{ID: "u1", Role: "student"})
	require.False(t, s.HasPermission("osce"), "no permissions before content")

	s.SetSnapshot(&content.Snapshot{Roles: []content.Role{
		{Name: "student", Permissions: map[string]bool{"osce": true}},
	}})
	require.True(t, s.HasPermission("osce"))
	require.False(t, s.HasPermission("admin"))

	// A newer snapshot can revoke as well as grant.
	s.SetSnapshot(&content.Snapshot{Roles: []content.Role{
		{Name: "student", Permissions: map[string]bool{"osce": false}},
	}})
	require.False(t, s.HasPermission("osce"))
}

func TestStore_RunningScoreAccumulatesAndResets(t *testing.T) {
	t.Parallel()
	s := newTestStore()

	require.Zero(t, s.Score())
	require.Equal(t, 3, s.AddScore(3))
	require.Equal(t, 8, s.AddScore(5))
	require.Equal(t, 8, s.Score())

	s.Reset()
	require.Zero(t, s.Score(), "score is session state and resets on logout")
}

// Replacing a running activity of the same kind terminates the old run.
func TestStore_SetActiveTerminatesReplaced(t *testing.T) {
	t.Parallel()
	s := newTestStore()

	first := &fakeActivity{kind: activity.KindQuiz}
	second := &fakeActivity{kind: activity.KindQuiz}
	other := &fakeActivity{kind: activity.KindTheory}

	s.SetActive(first)
	s.SetActive(other)
	s.SetActive(second)

	require.True(t, first.terminated)
	require.False(t, second.terminated)
	require.False(t, other.terminated, "different kinds run independently")

	act, ok := s.Active(activity.KindQuiz)
	require.True(t, ok)
	require.Same(t, second, act)
}

func TestStore_ClearActiveTerminates(t *testing.T) {
	t.Parallel()
	s := newTestStore()
	act := &fakeActivity{kind: activity.KindMatching}
	s.SetActive(act)

	s.ClearActive(activity.KindMatching)
	require.True(t, act.terminated)
	_, ok := s.Active(activity.KindMatching)
	require.False(t, ok)
}

func TestStore_AnnotationsKeyedPerUserTargetKind(t *testing.T) {
	t.Parallel()
	s := newTestStore()

	s.SetAnnotation("u1", "q9", AnnotationNote, "first draft")
	s.SetAnnotation("u1", "q9", AnnotationNote, "hello") // upsert
	s.SetAnnotation("u1", "q9", AnnotationMarker, "yellow")
	s.SetAnnotation("u2", "q9", AnnotationNote, "someone else")

	ann, ok := s.Annotation("u1", "q9", AnnotationNote)
	require.True(t, ok)
	require.Equal(t, "hello", ann.Text)

	notes := s.AnnotationsFor("u1", AnnotationNote)
	require.Len(t, notes, 1)

	s.DeleteAnnotation("u1", "q9", AnnotationNote)
	s.DeleteAnnotation("u1", "q9", AnnotationNote) // idempotent
	_, ok = s.Annotation("u1", "q9", AnnotationNote)
	require.False(t, ok)

	// Marker and the other user's note are untouched.
	_, ok = s.Annotation("u1", "q9", AnnotationMarker)
	require.True(t, ok)
	_, ok = s.Annotation("u2", "q9", AnnotationNote)
	require.True(t, ok)
}

func TestStore_ViewedLecturesAndBookmarks(t *testing.T) {
	t.Parallel()
	s := newTestStore()

	require.True(t, s.MarkLectureViewed("l1"))
	require.False(t, s.MarkLectureViewed("l1"), "second view is not a first view")
	require.True(t, s.LectureViewed("l1"))

	s.LoadViewedLectures([]string{"l2", "l3"})
	got := s.ViewedLectures()
	sort.Strings(got)
	require.Equal(t, []string{"l2", "l3"}, got)
	require.False(t, s.LectureViewed("l1"), "load replaces the set")

	require.True(t, s.ToggleBookmark("b1"))
	require.True(t, s.Bookmarked("b1"))
	require.False(t, s.ToggleBookmark("b1"))
	require.False(t, s.Bookmarked("b1"))
}

func TestStore_ResetTerminatesAndKeepsSnapshot(t *testing.T) {
	t.Parallel()
	s := newTestStore()
	act := &fakeActivity{kind: activity.KindQuiz}
	s.SetActive(act)
	s.SetLastResult(activity.Result{SessionID: "r1"})
	s.SetAnnotation("u1", "q1", AnnotationNote, "x")
	s.SetSnapshot(&content.Snapshot{Version: "1.2.3"})

	s.Reset()

	require.True(t, act.terminated)
	snap, ok := s.Snapshot()
	require.True(t, ok, "content is account-independent and survives reset")
	require.Equal(t, "1.2.3", snap.Version)
	_, ok = s.Active(activity.KindQuiz)
	require.False(t, ok)
	_, ok = s.LastResult()
	require.False(t, ok)
	require.Empty(t, s.AnnotationsFor("u1", AnnotationNote))
}
