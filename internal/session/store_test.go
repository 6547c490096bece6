package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/supportd/internal/domain"
	"github.com/ashureev/supportd/internal/kv"
)

func newTestStore(t *testing.T, maxHistory int) *Store {
	t.Helper()
	backend, err := kv.OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { backend.Close() })
	return NewStore(backend, time.Hour, maxHistory)
}

func TestCreateAndGet(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, 50)
	ctx := context.Background()

	created, err := store.Create(ctx, "s1", map[string]string{"name": "Dana"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.CreatedAt.IsZero() || created.LastActivityAt.IsZero() {
		t.Error("Create left timestamps unset")
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SessionID != "s1" || got.UserData["name"] != "Dana" {
		t.Errorf("Get = %+v, want session s1 with user data", got)
	}
}

func TestCreateRejectsEmptyID(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, 50)

	_, err := store.Create(context.Background(), "", nil)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Create(\"\"): err = %v, want ErrInvalidInput", err)
	}
}

func TestTouchMissingSession(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, 50)

	_, err := store.Touch(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Touch missing session: err = %v, want ErrNotFound", err)
	}
}

func TestTouchUpdatesLastActivity(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, 50)
	ctx := context.Background()

	created, err := store.Create(ctx, "s1", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	store.now = func() time.Time { return created.CreatedAt.Add(10 * time.Minute) }
	touched, err := store.Touch(ctx, "s1")
	if err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if !touched.LastActivityAt.After(created.LastActivityAt) {
		t.Errorf("Touch did not advance LastActivityAt: %v -> %v",
			created.LastActivityAt, touched.LastActivityAt)
	}
	if !touched.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("Touch changed CreatedAt: %v -> %v", created.CreatedAt, touched.CreatedAt)
	}
}

func TestHistoryIsChronological(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, 50)
	ctx := context.Background()

	if _, err := store.Create(ctx, "s1", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}

	contents := []string{"first", "second", "third"}
	for _, c := range contents {
		err := store.AppendMessage(ctx, "s1", domain.ConversationMessage{Role: domain.RoleUser, Content: c})
		if err != nil {
			t.Fatalf("AppendMessage %q: %v", c, err)
		}
	}

	history, err := store.History(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("History length = %d, want 3", len(history))
	}
	for i, want := range contents {
		if history[i].Content != want {
			t.Errorf("history[%d] = %q, want %q", i, history[i].Content, want)
		}
	}
}

func TestHistoryLimitReturnsMostRecent(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, 50)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		err := store.AppendMessage(ctx, "s1", domain.ConversationMessage{
			Role:    domain.RoleUser,
			Content: fmt.Sprintf("msg %d", i),
		})
		if err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	history, err := store.History(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("History length = %d, want 2", len(history))
	}
	if history[0].Content != "msg 4" || history[1].Content != "msg 5" {
		t.Errorf("History(limit=2) = [%q, %q], want the two most recent in order",
			history[0].Content, history[1].Content)
	}
}

func TestHistoryTrimsOldestBeyondBound(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, 3)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		err := store.AppendMessage(ctx, "s1", domain.ConversationMessage{
			Role:    domain.RoleUser,
			Content: fmt.Sprintf("msg %d", i),
		})
		if err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	history, err := store.History(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("History length = %d, want 3", len(history))
	}
	if history[0].Content != "msg 3" || history[2].Content != "msg 5" {
		t.Errorf("trim kept wrong window: first=%q last=%q", history[0].Content, history[2].Content)
	}
}

func TestHistoryOfUnknownSessionIsEmpty(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, 50)

	history, err := store.History(context.Background(), "ghost", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("History of unknown session = %v, want empty", history)
	}
}

func TestAppendRejectsEmptyContent(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, 50)

	err := store.AppendMessage(context.Background(), "s1", domain.ConversationMessage{Role: domain.RoleUser})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("AppendMessage empty content: err = %v, want ErrInvalidInput", err)
	}
}

func TestClearHistoryKeepsSession(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, 50)
	ctx := context.Background()

	if _, err := store.Create(ctx, "s1", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := store.AppendMessage(ctx, "s1", domain.ConversationMessage{Role: domain.RoleUser, Content: "hi"})
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	removed, err := store.ClearHistory(ctx, "s1")
	if err != nil {
		t.Fatalf("ClearHistory: %v", err)
	}
	if !removed {
		t.Error("ClearHistory = false, want true for an existing conversation")
	}

	history, err := store.History(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("History after clear = %v, want empty", history)
	}
	if _, err := store.Get(ctx, "s1"); err != nil {
		t.Errorf("Get after clear: %v, session should survive", err)
	}

	// A second clear finds nothing left to remove.
	removed, err = store.ClearHistory(ctx, "s1")
	if err != nil {
		t.Fatalf("second ClearHistory: %v", err)
	}
	if removed {
		t.Error("second ClearHistory = true, want false")
	}
}

func TestReapDropsLocksOfDeadSessions(t *testing.T) {
	t.Parallel()
	backend, err := kv.OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { backend.Close() })
	store := NewStore(backend, time.Hour, 50)
	ctx := context.Background()

	for _, id := range []string{"s1", "s2"} {
		if _, err := store.Create(ctx, id, nil); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
		err := store.AppendMessage(ctx, id, domain.ConversationMessage{Role: domain.RoleUser, Content: "hi"})
		if err != nil {
			t.Fatalf("AppendMessage %s: %v", id, err)
		}
	}

	// s2 expires out from under the store.
	if _, err := backend.Delete(ctx, "session:s2", "conversation:s2"); err != nil {
		t.Fatalf("Delete backend keys: %v", err)
	}

	store.Reap(ctx)

	store.mu.Lock()
	_, liveKept := store.locks["s1"]
	_, deadKept := store.locks["s2"]
	store.mu.Unlock()
	if !liveKept {
		t.Error("lock for live session s1 was reaped")
	}
	if deadKept {
		t.Error("lock for dead session s2 survived the reap")
	}
}

func TestDeleteRemovesSessionAndHistory(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, 50)
	ctx := context.Background()

	if _, err := store.Create(ctx, "s1", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := store.AppendMessage(ctx, "s1", domain.ConversationMessage{Role: domain.RoleUser, Content: "hi"})
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "s1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get after delete: err = %v, want ErrNotFound", err)
	}
	history, err := store.History(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("History after delete: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("History after delete = %v, want empty", history)
	}
}

func TestListActive(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, 50)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if _, err := store.Create(ctx, id, nil); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}

	ids, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(ids) != 3 {
		t.Errorf("ListActive = %v, want 3 ids", ids)
	}
}

func TestConcurrentAppendsLoseNothing(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, 100)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.AppendMessage(ctx, "s1", domain.ConversationMessage{
				Role:    domain.RoleUser,
				Content: fmt.Sprintf("msg %d", i),
			})
			if err != nil {
				t.Errorf("concurrent AppendMessage: %v", err)
			}
		}(i)
	}
	wg.Wait()

	n, err := store.MessageCount(ctx, "s1")
	if err != nil {
		t.Fatalf("MessageCount: %v", err)
	}
	if n != 20 {
		t.Errorf("MessageCount = %d, want 20", n)
	}
}
