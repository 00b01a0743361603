// Package annotate reconciles user annotations (notes on questions and
// lectures) between the in-memory session and the remote service. Local
// state is updated first and never rolled back; the remote write is
// dispatched asynchronously and tracked through the outbox.
package annotate

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/studykit/studykit/internal/gateway"
	"github.com/studykit/studykit/internal/outbox"
	"github.com/studykit/studykit/internal/session"
)

// Target says what kind of object a note is attached to.
type Target string

const (
	TargetQuestion Target = "question"
	TargetLecture  Target = "lecture"
)

// Sender sends one write event; satisfied by *gateway.Gateway.
type Sender interface {
	Send(ctx context.Context, eventType string, payload map[string]any) (json.RawMessage, error)
}

// Dispatcher enqueues asynchronous writes; satisfied by outbox.Outbox.
type Dispatcher interface {
	Submit(ctx context.Context, key, eventType string, job outbox.Job) (string, error)
}

// Reconciler applies annotation changes optimistically and pushes them to
// the remote service in the background.
type Reconciler struct {
	store  *session.Store
	remote Sender
	box    Dispatcher
	log    zerolog.Logger
}

// New returns a reconciler writing through store and dispatching remote
// writes via box.
func New(store *session.Store, remote Sender, box Dispatcher, log zerolog.Logger) *Reconciler {
	return &Reconciler{store: store, remote: remote, box: box, log: log}
}

// SaveNote upserts the user's note on a target. The in-memory note is
// visible immediately; the remote write may still fail, in which case the
// local value stays and the failure is reported through the outbox status.
// Returns the outbox write id.
func (r *Reconciler) SaveNote(ctx context.Context, userID string, target Target, targetID, text string) (string, error) {
	r.store.SetAnnotation(userID, targetID, session.AnnotationNote, text)

	event := gateway.EventSaveQuizNote
	if target == TargetLecture {
		event = gateway.EventSaveLectureNote
	}
	payload := map[string]any{
		"userId": userID,
		"id":     targetID,
		"note":   text,
	}
	id, err := r.box.Submit(ctx, noteKey(userID, targetID), event,
		outbox.JobFunc(func(ctx context.Context) error {
			_, err := r.remote.Send(ctx, event, payload)
			return err
		}))
	if err != nil {
		// Local state already updated; surface the enqueue failure only.
		r.log.Warn().Err(err).Str("target", targetID).Msg("note write not enqueued")
		return "", err
	}
	return id, nil
}

// DeleteNote removes the user's note on a target, locally first.
func (r *Reconciler) DeleteNote(ctx context.Context, userID string, target Target, targetID string) (string, error) {
	r.store.DeleteAnnotation(userID, targetID, session.AnnotationNote)

	event := gateway.EventDeleteQuizNote
	if target == TargetLecture {
		event = gateway.EventDeleteLectureNote
	}
	payload := map[string]any{
		"userId": userID,
		"id":     targetID,
	}
	id, err := r.box.Submit(ctx, noteKey(userID, targetID), event,
		outbox.JobFunc(func(ctx context.Context) error {
			_, err := r.remote.Send(ctx, event, payload)
			return err
		}))
	if err != nil {
		r.log.Warn().Err(err).Str("target", targetID).Msg("note delete not enqueued")
		return "", err
	}
	return id, nil
}

// noteKey orders all writes for one (user, target) pair behind each other,
// so a save followed by a delete cannot land out of order.
func noteKey(userID, targetID string) string {
	return userID + "/" + targetID
}
