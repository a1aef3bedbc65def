package paste

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavel-fokin/paste-stash/internal/subscription"
)

// FeedFetcher fetches upstream subscription feeds
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) (*subscription.Feed, error)
}

// Service applies the record lifecycle on top of a Store
type Service struct {
	store   Store
	fetcher FeedFetcher
	maxSize int64
	now     func() time.Time
}

// NewService creates a new paste service
func NewService(store Store, fetcher FeedFetcher, maxSize int64) *Service {
	return &Service{
		store:   store,
		fetcher: fetcher,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Delivery is the content and headers returned for a read
type Delivery struct {
	Record      *Record
	ContentType string
	Header      map[string]string
	Body        []byte
}

// Get returns the stored metadata of a record without touching it
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Raw reads a record's content with its original content type. Headers carry
// the subscription overlay when present, otherwise the filename.
func (s *Service) Raw(ctx context.Context, id string) (*Delivery, error) {
	rec, body, err := s.consume(ctx, id, true)
	if err != nil {
		return nil, err
	}

	header := subscription.BuildHeaders(rec.SubscriptionInfo)
	if _, ok := header[subscription.HeaderContentDisposition]; !ok {
		header[subscription.HeaderContentDisposition] = disposition(rec)
	}

	contentType := rec.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &Delivery{
		Record:      rec,
		ContentType: contentType,
		Header:      header,
		Body:        body,
	}, nil
}

// Sub reads a record for subscription clients. Subscriptions are fetched
// from upstream and merged with the custom overlay, other kinds are returned
// as stored.
func (s *Service) Sub(ctx context.Context, id string) (*Delivery, error) {
	rec, body, err := s.consume(ctx, id, false)
	if err != nil {
		return nil, err
	}
	content := string(body)

	if rec.Kind != KindSubscription {
		return &Delivery{
			Record:      rec,
			ContentType: "text/plain; charset=utf-8",
			Header:      map[string]string{},
			Body:        body,
		}, nil
	}

	feed, err := s.fetcher.Fetch(ctx, content)
	if err != nil {
		return nil, err
	}

	return &Delivery{
		Record:      rec,
		ContentType: "text/plain; charset=utf-8",
		Header:      subscription.Merge(rec.SubscriptionInfo, feed.Header),
		Body:        []byte(feed.Body),
	}, nil
}

// consume runs the read state machine for id and returns the record with its
// stored content, base64 decoded for files when decode is set. A successful
// read counts one download and then either burns the record or persists the
// new count. Content that fails to decode is not counted.
func (s *Service) consume(ctx context.Context, id string, decode bool) (*Record, []byte, error) {
	rec, err := s.load(ctx, id)
	if err != nil {
		readsTotal.WithLabelValues("not_found").Inc()
		return nil, nil, err
	}

	// Expired records are removed on first access
	if rec.IsExpired(s.now()) {
		if err := s.remove(ctx, id, "expired"); err != nil {
			slog.Warn("Failed to delete expired record", "error", err, "paste_id", id)
		}
		readsTotal.WithLabelValues("expired").Inc()
		return nil, nil, ErrExpired
	}

	// Limited records stay in place, only reads are refused
	if rec.LimitReached() {
		readsTotal.WithLabelValues("limit_reached").Inc()
		return nil, nil, ErrLimitReached
	}

	content, found, err := s.store.Get(ctx, contentKey(id))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load content of %s: %w", id, err)
	}
	if !found {
		slog.Warn("Record has no content", "paste_id", id)
		readsTotal.WithLabelValues("not_found").Inc()
		return nil, nil, ErrNotFound
	}

	data := []byte(content)
	if decode && rec.Kind == KindFile {
		data, err = base64.StdEncoding.DecodeString(content)
		if err != nil {
			readsTotal.WithLabelValues("corrupt").Inc()
			return nil, nil, fmt.Errorf("failed to decode content of %s: %w", id, err)
		}
	}

	rec.DownloadCount++
	if rec.BurnAfterRead {
		if err := s.remove(ctx, id, "burned"); err != nil {
			return nil, nil, err
		}
	} else {
		if err := s.save(ctx, rec); err != nil {
			return nil, nil, err
		}
	}

	readsTotal.WithLabelValues("ok").Inc()
	return rec, data, nil
}

func (s *Service) load(ctx context.Context, id string) (*Record, error) {
	data, found, err := s.store.Get(ctx, metaKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to load record %s: %w", id, err)
	}
	if !found {
		return nil, ErrNotFound
	}

	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", id, err)
	}
	return &rec, nil
}

func (s *Service) save(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", rec.ID, err)
	}
	if err := s.store.Put(ctx, metaKey(rec.ID), string(data)); err != nil {
		return fmt.Errorf("failed to save record %s: %w", rec.ID, err)
	}
	return nil
}

// remove deletes content and metadata of id. Both deletes are attempted even
// if the first one fails.
func (s *Service) remove(ctx context.Context, id, reason string) error {
	err := errors.Join(
		s.store.Delete(ctx, contentKey(id)),
		s.store.Delete(ctx, metaKey(id)),
	)
	if err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	deletedTotal.WithLabelValues(reason).Inc()
	return nil
}

func disposition(rec *Record) string {
	kind := "attachment"
	if rec.Kind == KindText {
		kind = "inline"
	}
	return kind + "; filename*=UTF-8''" + subscription.EncodeFilename(rec.Filename)
}
