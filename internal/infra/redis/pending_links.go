package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"telegram-media-downloader/internal/domain"
)

// PendingLinkStore holds the locator a user most recently sent, while they
// pick a quality from the inline keyboard. Entries expire on their own, so an
// abandoned selection never leaks.
type PendingLinkStore struct {
	client RedisClient
	ttl    time.Duration
}

func NewPendingLinkStore(client RedisClient, ttl time.Duration) *PendingLinkStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &PendingLinkStore{client: client, ttl: ttl}
}

func pendingKey(userID int64) string {
	return "pending_link:" + strconv.FormatInt(userID, 10)
}

func (s *PendingLinkStore) Set(ctx context.Context, userID int64, sourceURL string) error {
	return s.client.Set(ctx, pendingKey(userID), sourceURL, s.ttl)
}

func (s *PendingLinkStore) Get(ctx context.Context, userID int64) (string, error) {
	v, err := s.client.Get(ctx, pendingKey(userID))
	if err != nil {
		if errors.Is(err, Nil) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return v, nil
}

func (s *PendingLinkStore) Clear(ctx context.Context, userID int64) error {
	return s.client.Del(ctx, pendingKey(userID))
}
