package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"watrack/backend/internal/notification/domain"
)

type fakeRepo struct {
	mu      sync.Mutex
	created []*domain.Notification
	err     error
}

func (f *fakeRepo) Create(ctx context.Context, n *domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, n)
	return nil
}

func (f *fakeRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Notification, error) {
	return nil, nil
}

func (f *fakeRepo) MarkRead(ctx context.Context, userID, id string) (bool, error) { return false, nil }
func (f *fakeRepo) MarkAllRead(ctx context.Context, userID string) error          { return nil }

func (f *fakeRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type fakeEmitter struct {
	mu      sync.Mutex
	emitted []*domain.Notification
	err     error
}

func (f *fakeEmitter) Emit(ctx context.Context, n *domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.emitted = append(f.emitted, n)
	return nil
}

func (f *fakeEmitter) Close() error { return nil }

func (f *fakeEmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.emitted)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestNotifyAsync(t *testing.T) {
	repo := &fakeRepo{}
	emitter := &fakeEmitter{}
	n := NewNotifier(repo, emitter)

	n.NotifyAsync("user-1", 7, "919876543210", "available")

	waitFor(t, func() bool { return repo.count() == 1 && emitter.count() == 1 })

	repo.mu.Lock()
	got := repo.created[0]
	repo.mu.Unlock()
	if got.UserID != "user-1" || got.TrackingID != 7 || got.PhoneNumber != "919876543210" || got.Status != "available" {
		t.Errorf("unexpected notification: %+v", got)
	}
	if got.ID == "" {
		t.Error("notification should get an id")
	}
	if got.IsRead {
		t.Error("new notification must be unread")
	}
}

func TestNotifyAsync_NilEmitter(t *testing.T) {
	repo := &fakeRepo{}
	n := NewNotifier(repo, nil)

	n.NotifyAsync("user-1", 7, "919876543210", "unavailable")

	waitFor(t, func() bool { return repo.count() == 1 })
}

func TestNotifyAsync_PersistFailureStillEmits(t *testing.T) {
	repo := &fakeRepo{err: errors.New("db down")}
	emitter := &fakeEmitter{}
	n := NewNotifier(repo, emitter)

	n.NotifyAsync("user-1", 7, "919876543210", "available")

	waitFor(t, func() bool { return emitter.count() == 1 })
}
