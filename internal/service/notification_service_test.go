package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classsync/classsync-api/internal/models"
	"github.com/classsync/classsync-api/pkg/config"
	appErrors "github.com/classsync/classsync-api/pkg/errors"
)

type mockNotificationRepo struct {
	mu       sync.Mutex
	items    map[string]models.Notification
	inserted chan string
}

func newMockNotificationRepo() *mockNotificationRepo {
	return &mockNotificationRepo{
		items:    make(map[string]models.Notification),
		inserted: make(chan string, 16),
	}
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.CreatedAt = time.Now().UTC()
	m.items[n.ID] = *n
	select {
	case m.inserted <- n.ID:
	default:
	}
	return nil
}

func (m *mockNotificationRepo) ListByRecipient(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	for _, n := range m.items {
		if n.RecipientID != filter.RecipientID {
			continue
		}
		if filter.UnreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	return out, len(out), nil
}

func (m *mockNotificationRepo) CountUnread(ctx context.Context, recipientID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.items {
		if n.RecipientID == recipientID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (m *mockNotificationRepo) MarkRead(ctx context.Context, id, recipientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok || n.RecipientID != recipientID {
		return sql.ErrNoRows
	}
	n.Read = true
	m.items[id] = n
	return nil
}

func (m *mockNotificationRepo) MarkAllRead(ctx context.Context, recipientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, n := range m.items {
		if n.RecipientID == recipientID {
			n.Read = true
			m.items[id] = n
		}
	}
	return nil
}

func (m *mockNotificationRepo) Delete(ctx context.Context, id, recipientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok || n.RecipientID != recipientID {
		return sql.ErrNoRows
	}
	delete(m.items, id)
	return nil
}

type mockUnreadCache struct {
	mu      sync.Mutex
	values  map[string]int
	deletes []string
}

func newMockUnreadCache() *mockUnreadCache {
	return &mockUnreadCache{values: make(map[string]int)}
}

func (m *mockUnreadCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	if p, ok := dest.(*int); ok {
		*p = v
	}
	return nil
}

func (m *mockUnreadCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := value.(int); ok {
		m.values[key] = v
	}
	return nil
}

func (m *mockUnreadCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	m.deletes = append(m.deletes, key)
	return nil
}

func newNotificationServiceMock(t *testing.T) (*NotificationService, *mockNotificationRepo, *mockUnreadCache) {
	t.Helper()
	repo := newMockNotificationRepo()
	cache := newMockUnreadCache()
	svc := NewNotificationService(repo, cache, config.NotificationsConfig{
		Workers:        1,
		BufferSize:     16,
		MaxRetries:     1,
		RetryDelay:     time.Millisecond,
		UnreadCacheTTL: time.Minute,
	}, nil, nil)
	return svc, repo, cache
}

func TestDispatchPersistsThroughQueue(t *testing.T) {
	svc, repo, _ := newNotificationServiceMock(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	svc.Dispatch(models.Notification{
		RecipientID: "t2",
		Type:        models.NotificationTypeSubstitution,
		Title:       "Substitution Assignment",
		Message:     "You are assigned to cover Math for class 5A on 2026-01-05, period 2.",
	})

	select {
	case id := <-repo.inserted:
		repo.mu.Lock()
		stored := repo.items[id]
		repo.mu.Unlock()
		assert.Equal(t, "t2", stored.RecipientID)
		assert.NotEmpty(t, stored.ID)
		assert.False(t, stored.Read)
	case <-time.After(2 * time.Second):
		t.Fatal("notification was never persisted")
	}
}

func TestUnreadCountUsesCache(t *testing.T) {
	svc, repo, cache := newNotificationServiceMock(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Notification{ID: "n1", RecipientID: "t2"}))
	require.NoError(t, repo.Create(ctx, &models.Notification{ID: "n2", RecipientID: "t2"}))

	count, err := svc.UnreadCount(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// A direct insert bypassing the service is invisible until the cache
	// entry expires or is invalidated.
	require.NoError(t, repo.Create(ctx, &models.Notification{ID: "n3", RecipientID: "t2"}))
	count, err = svc.UnreadCount(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, svc.MarkRead(ctx, "n1", "t2"))
	assert.Contains(t, cache.deletes, "notifications:unread:t2")

	count, err = svc.UnreadCount(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestUnreadCountRecordsCacheMetrics(t *testing.T) {
	repo := newMockNotificationRepo()
	cache := newMockUnreadCache()
	metrics := NewMetricsService()
	svc := NewNotificationService(repo, cache, config.NotificationsConfig{UnreadCacheTTL: time.Minute}, metrics, nil)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Notification{ID: "n1", RecipientID: "t2"}))

	// Cold cache: one miss, then the count is stored.
	count, err := svc.UnreadCount(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.cacheHits))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.cacheMisses))

	// Warm cache: served without touching the repository.
	_, err = svc.UnreadCount(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.cacheHits))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.cacheMisses))
}

func TestMarkReadIsRecipientScoped(t *testing.T) {
	svc, repo, _ := newNotificationServiceMock(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &models.Notification{ID: "n1", RecipientID: "t2"}))

	err := svc.MarkRead(ctx, "n1", "somebody-else")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Status, appErrors.FromError(err).Status)

	require.NoError(t, svc.MarkRead(ctx, "n1", "t2"))
	assert.True(t, repo.items["n1"].Read)
}

func TestMarkAllRead(t *testing.T) {
	svc, repo, _ := newNotificationServiceMock(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &models.Notification{ID: "n1", RecipientID: "t2"}))
	require.NoError(t, repo.Create(ctx, &models.Notification{ID: "n2", RecipientID: "t2"}))
	require.NoError(t, repo.Create(ctx, &models.Notification{ID: "n3", RecipientID: "t9"}))

	require.NoError(t, svc.MarkAllRead(ctx, "t2"))

	count, err := svc.UnreadCount(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.False(t, repo.items["n3"].Read)
}

func TestDeleteNotification(t *testing.T) {
	svc, repo, _ := newNotificationServiceMock(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &models.Notification{ID: "n1", RecipientID: "t2"}))

	err := svc.Delete(ctx, "ghost", "t2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Status, appErrors.FromError(err).Status)

	require.NoError(t, svc.Delete(ctx, "n1", "t2"))
	assert.Empty(t, repo.items)
}
