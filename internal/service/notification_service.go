package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classsync/classsync-api/internal/models"
	"github.com/classsync/classsync-api/pkg/config"
	appErrors "github.com/classsync/classsync-api/pkg/errors"
	"github.com/classsync/classsync-api/pkg/jobs"
)

type notificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByRecipient(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	MarkRead(ctx context.Context, id, recipientID string) error
	MarkAllRead(ctx context.Context, recipientID string) error
	Delete(ctx context.Context, id, recipientID string) error
}

type notificationCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

const jobTypeNotification = "notification.create"

// NotificationService persists and lists in-app notifications. Dispatch is
// asynchronous: messages go through a background queue so that a slow or
// failing insert never blocks the caller (the substitution engine in
// particular must not fail because a notification could not be written).
type NotificationService struct {
	repo      notificationRepository
	cache     notificationCache
	queue     *jobs.Queue
	unreadTTL time.Duration
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewNotificationService constructs a NotificationService and its backing
// queue.
func NewNotificationService(repo notificationRepository, cache notificationCache, cfg config.NotificationsConfig, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{
		repo:      repo,
		cache:     cache,
		unreadTTL: cfg.UnreadCacheTTL,
		metrics:   metrics,
		logger:    logger,
	}
	s.queue = jobs.NewQueue("notifications", s.handleJob, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the dispatcher workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the dispatcher.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Dispatch enqueues a notification for background persistence. Errors are
// logged, not returned: notification delivery is best-effort from the
// caller's point of view.
func (s *NotificationService) Dispatch(n models.Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	job := jobs.Job{ID: n.ID, Type: jobTypeNotification, Payload: n}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Sugar().Errorw("failed to enqueue notification",
			"recipient_id", n.RecipientID, "type", n.Type, "error", err)
	}
}

func (s *NotificationService) handleJob(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(models.Notification)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for job %s", job.Payload, job.ID)
	}
	if err := s.repo.Create(ctx, &n); err != nil {
		return err
	}
	s.invalidateUnread(ctx, n.RecipientID)
	return nil
}

// List returns the recipient's notifications plus pagination data.
func (s *NotificationService) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, error) {
	notifications, total, err := s.repo.ListByRecipient(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return notifications, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// UnreadCount returns the recipient's unread total, cached briefly to keep
// badge polling off the database.
func (s *NotificationService) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	key := unreadCacheKey(recipientID)
	if s.cache != nil {
		var cached int
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.metrics.RecordCacheOperation(true)
			return cached, nil
		}
		s.metrics.RecordCacheOperation(false)
	}

	count, err := s.repo.CountUnread(ctx, recipientID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count unread notifications")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, count, s.unreadTTL); err != nil {
			s.logger.Sugar().Warnw("failed to cache unread count", "recipient_id", recipientID, "error", err)
		}
	}
	return count, nil
}

// MarkRead flags one notification as read.
func (s *NotificationService) MarkRead(ctx context.Context, id, recipientID string) error {
	if err := s.repo.MarkRead(ctx, id, recipientID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	s.invalidateUnread(ctx, recipientID)
	return nil
}

// MarkAllRead flags the recipient's entire inbox as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, recipientID string) error {
	if err := s.repo.MarkAllRead(ctx, recipientID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	s.invalidateUnread(ctx, recipientID)
	return nil
}

// Delete removes one notification from the recipient's inbox.
func (s *NotificationService) Delete(ctx context.Context, id, recipientID string) error {
	if err := s.repo.Delete(ctx, id, recipientID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete notification")
	}
	s.invalidateUnread(ctx, recipientID)
	return nil
}

func (s *NotificationService) invalidateUnread(ctx context.Context, recipientID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, unreadCacheKey(recipientID)); err != nil {
		s.logger.Sugar().Warnw("failed to invalidate unread cache", "recipient_id", recipientID, "error", err)
	}
}

func unreadCacheKey(recipientID string) string {
	return "notifications:unread:" + recipientID
}
