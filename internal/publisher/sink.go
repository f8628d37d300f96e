package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"plan-engine/internal/plan"
)

// syncedPlan is the document other devices read.
type syncedPlan struct {
	Plan        plan.Plan `firestore:"plan"`
	Version     int64     `firestore:"version"`
	PublishedAt time.Time `firestore:"publishedAt,serverTimestamp"`
}

// FirestoreSink writes plans to users/{uid}/plans/current.
type FirestoreSink struct {
	client *firestore.Client
}

// NewFirestoreSink creates a FirestoreSink on client.
func NewFirestoreSink(client *firestore.Client) *FirestoreSink {
	return &FirestoreSink{client: client}
}

func (s *FirestoreSink) doc(userID string) *firestore.DocumentRef {
	return s.client.Collection("users").Doc(userID).Collection("plans").Doc("current")
}

// Push stores version unless the document already holds the same or a newer
// version of the same plan. A recreated plan always replaces the old one.
func (s *FirestoreSink) Push(ctx context.Context, userID string, p plan.Plan, version int64) error {
	ref := s.doc(userID)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return fmt.Errorf("publisher: failed to read synced plan: %w", err)
		}
		if snap != nil && snap.Exists() {
			var stored syncedPlan
			if err := snap.DataTo(&stored); err != nil {
				return fmt.Errorf("publisher: failed to decode synced plan: %w", err)
			}
			if stored.Plan.CreatedAt.Equal(p.CreatedAt) && stored.Version >= version {
				slog.DebugContext(ctx, "publisher: synced plan is newer, skipping", "user_id", userID, "stored", stored.Version, "version", version)
				return nil
			}
		}
		if err := tx.Set(ref, syncedPlan{Plan: p, Version: version}); err != nil {
			return fmt.Errorf("publisher: failed to set synced plan: %w", err)
		}
		return nil
	})
}

// Remove deletes the synced plan. Removing a missing plan succeeds.
func (s *FirestoreSink) Remove(ctx context.Context, userID string) error {
	if _, err := s.doc(userID).Delete(ctx); err != nil {
		return fmt.Errorf("publisher: failed to delete synced plan: %w", err)
	}
	return nil
}

// LogSink only logs. It stands in when no sync layer is configured.
type LogSink struct{}

func (LogSink) Push(ctx context.Context, userID string, p plan.Plan, version int64) error {
	slog.InfoContext(ctx, "publisher: plan committed", "user_id", userID, "version", version, "weeks", len(p.Weeks))
	return nil
}

func (LogSink) Remove(ctx context.Context, userID string) error {
	slog.InfoContext(ctx, "publisher: plan removed", "user_id", userID)
	return nil
}
