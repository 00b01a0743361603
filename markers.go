package studykit

import (
	"context"

	"github.com/studykit/studykit/internal/annotate"
	"github.com/studykit/studykit/internal/gateway"
	"github.com/studykit/studykit/internal/localstore"
	"github.com/studykit/studykit/internal/session"
)

// Notes, bookmarks, and per-user local markers. Notes reconcile with the
// remote service; bookmarks and the remaining markers are local-only.

// SaveQuestionNote upserts the user's note on a question. The note is
// visible locally at once; the remote write happens in the background and
// is never rolled back. Returns the outbox write id.
func (c *Client) SaveQuestionNote(ctx context.Context, questionID, text string) (string, error) {
	u, err := c.currentUser()
	if err != nil {
		return "", err
	}
	return c.notes.SaveNote(ctx, u.ID, annotate.TargetQuestion, questionID, text)
}

// SaveLectureNote upserts the user's note on a lecture.
func (c *Client) SaveLectureNote(ctx context.Context, lectureID, text string) (string, error) {
	u, err := c.currentUser()
	if err != nil {
		return "", err
	}
	return c.notes.SaveNote(ctx, u.ID, annotate.TargetLecture, lectureID, text)
}

// DeleteQuestionNote removes the user's note on a question, locally first.
func (c *Client) DeleteQuestionNote(ctx context.Context, questionID string) (string, error) {
	u, err := c.currentUser()
	if err != nil {
		return "", err
	}
	return c.notes.DeleteNote(ctx, u.ID, annotate.TargetQuestion, questionID)
}

// DeleteLectureNote removes the user's note on a lecture, locally first.
func (c *Client) DeleteLectureNote(ctx context.Context, lectureID string) (string, error) {
	u, err := c.currentUser()
	if err != nil {
		return "", err
	}
	return c.notes.DeleteNote(ctx, u.ID, annotate.TargetLecture, lectureID)
}

// Note returns the user's note on a target, if any.
func (c *Client) Note(targetID string) (string, bool) {
	u, ok := c.store.User()
	if !ok {
		return "", false
	}
	ann, ok := c.store.Annotation(u.ID, targetID, session.AnnotationNote)
	if !ok {
		return "", false
	}
	return ann.Text, true
}

// ToggleBookmark flips the bookmark on a question and persists the set.
// Bookmarks are local-only. Returns the new state.
func (c *Client) ToggleBookmark(questionID string) (bool, error) {
	u, err := c.currentUser()
	if err != nil {
		return false, err
	}
	marked := c.store.ToggleBookmark(questionID)
	if err := c.persistSet(localstore.BookmarksKey(u.ID), c.store.Bookmarks()); err != nil {
		return marked, err
	}
	return marked, nil
}

// Bookmarks returns the user's bookmarked question ids.
func (c *Client) Bookmarks() []string {
	return c.store.Bookmarks()
}

// MarkLectureViewed records a standalone lecture view (outside a learning
// run), persists it, and logs the first view remotely.
func (c *Client) MarkLectureViewed(lectureID string) error {
	u, err := c.currentUser()
	if err != nil {
		return err
	}
	if !c.store.MarkLectureViewed(lectureID) {
		return nil // already viewed
	}
	if err := c.persistSet(localstore.ViewedLecturesKey(u.ID), c.store.ViewedLectures()); err != nil {
		return err
	}
	c.submit("activity/"+gateway.EventViewLecture, gateway.EventViewLecture, map[string]any{
		"userId":    u.ID,
		"lectureId": lectureID,
	})
	return nil
}

// LectureViewed reports whether the user has viewed a lecture.
func (c *Client) LectureViewed(lectureID string) bool {
	return c.store.LectureViewed(lectureID)
}

// MarkAnnouncementSeen persists that the user dismissed an announcement.
func (c *Client) MarkAnnouncementSeen(announcementID string) error {
	u, err := c.currentUser()
	if err != nil {
		return err
	}
	return c.local.PutString(localstore.SeenAnnouncementKey(u.ID), announcementID)
}

// AnnouncementSeen reports whether the user already dismissed the given
// announcement.
func (c *Client) AnnouncementSeen(announcementID string) bool {
	u, ok := c.store.User()
	if !ok {
		return false
	}
	seen, ok, err := c.local.GetString(localstore.SeenAnnouncementKey(u.ID))
	return err == nil && ok && seen == announcementID
}

// MarkTourSeen persists that the user finished the feature tour.
func (c *Client) MarkTourSeen() error {
	u, err := c.currentUser()
	if err != nil {
		return err
	}
	return c.local.PutString(localstore.TourSeenKey(u.ID), "1")
}

// TourSeen reports whether the user finished the feature tour.
func (c *Client) TourSeen() bool {
	u, ok := c.store.User()
	if !ok {
		return false
	}
	v, ok, err := c.local.GetString(localstore.TourSeenKey(u.ID))
	return err == nil && ok && v == "1"
}

func (c *Client) persistSet(key string, ids []string) error {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return c.local.PutStringSet(key, set)
}
