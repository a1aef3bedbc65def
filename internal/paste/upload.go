package paste

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/pavel-fokin/paste-stash/internal/subscription"
)

// Media is for sharing elsewhere, this service keeps documents, text and links.
var blockedTypePrefixes = []string{"image/", "video/", "audio/"}

const maxIDAttempts = 5

// UploadRequest represents a paste upload request
type UploadRequest struct {
	Kind             Kind
	Filename         string
	ContentType      string
	Content          []byte
	BurnAfterRead    bool
	ExpiresIn        int // hours, zero means never
	MaxDownloads     int // zero means unlimited
	CustomSlug       string
	SubscriptionInfo *subscription.Info
}

// UploadResult represents the result of an upload
type UploadResult struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Upload validates and stores a new record
func (s *Service) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidUpload, req.Kind)
	}
	if len(req.Content) == 0 {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidUpload)
	}
	if int64(len(req.Content)) > s.maxSize {
		return nil, ErrTooLarge
	}
	if req.ExpiresIn < 0 || req.MaxDownloads < 0 {
		return nil, fmt.Errorf("%w: expiresIn and maxDownloads must not be negative", ErrInvalidUpload)
	}

	contentType := detectContentType(req)
	for _, prefix := range blockedTypePrefixes {
		if strings.HasPrefix(strings.ToLower(contentType), prefix) {
			return nil, fmt.Errorf("%w: %s", ErrBlockedType, contentType)
		}
	}

	// Subscriptions store the upstream URL as their content
	content := string(req.Content)
	switch req.Kind {
	case KindFile:
		content = base64.StdEncoding.EncodeToString(req.Content)
	case KindSubscription:
		content = strings.TrimSpace(content)
		if !isHTTPURL(content) {
			return nil, fmt.Errorf("%w: subscription must be an http(s) url", ErrInvalidUpload)
		}
	}

	id, err := s.assignID(ctx, req.CustomSlug)
	if err != nil {
		return nil, err
	}

	now := s.now()
	rec := &Record{
		ID:               id,
		Filename:         filename(req, id),
		ContentType:      contentType,
		Size:             int64(len(content)),
		Kind:             req.Kind,
		SubscriptionInfo: req.SubscriptionInfo,
		BurnAfterRead:    req.BurnAfterRead,
		CreatedAt:        now,
	}
	if req.ExpiresIn > 0 {
		expiresAt := now.Add(time.Duration(req.ExpiresIn) * time.Hour)
		rec.ExpiresAt = &expiresAt
	}
	if req.MaxDownloads > 0 {
		maxDownloads := req.MaxDownloads
		rec.MaxDownloads = &maxDownloads
	}

	// Content first, so a record never points at missing content
	if err := s.store.Put(ctx, contentKey(id), content); err != nil {
		return nil, fmt.Errorf("failed to save content: %w", err)
	}
	if err := s.save(ctx, rec); err != nil {
		// Clean up content if metadata save fails
		if derr := s.store.Delete(ctx, contentKey(id)); derr != nil {
			slog.Warn("Failed to delete orphaned content", "error", derr, "paste_id", id)
		}
		return nil, err
	}

	uploadsTotal.WithLabelValues(string(rec.Kind)).Inc()

	path := "/raw/"
	if rec.Kind == KindSubscription {
		path = "/sub/"
	}
	return &UploadResult{ID: id, URL: path + id}, nil
}

// assignID validates a custom slug or generates a free random id
func (s *Service) assignID(ctx context.Context, slug string) (string, error) {
	if slug != "" {
		if !validSlug(slug) {
			return "", fmt.Errorf("%w: %q", ErrInvalidSlug, slug)
		}
		taken, err := s.exists(ctx, slug)
		if err != nil {
			return "", err
		}
		if taken {
			return "", ErrSlugTaken
		}
		return slug, nil
	}

	for i := 0; i < maxIDAttempts; i++ {
		id, err := newID()
		if err != nil {
			return "", fmt.Errorf("failed to generate id: %w", err)
		}
		taken, err := s.exists(ctx, id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
	}
	return "", fmt.Errorf("failed to generate a free id after %d attempts", maxIDAttempts)
}

func (s *Service) exists(ctx context.Context, id string) (bool, error) {
	_, found, err := s.store.Get(ctx, metaKey(id))
	if err != nil {
		return false, fmt.Errorf("failed to check id %s: %w", id, err)
	}
	return found, nil
}

// detectContentType returns the declared type, sniffing the payload when the
// declared type says nothing.
func detectContentType(req *UploadRequest) string {
	declared := strings.TrimSpace(req.ContentType)
	switch req.Kind {
	case KindText, KindSubscription:
		if declared == "" {
			return "text/plain; charset=utf-8"
		}
		return declared
	}

	if declared == "" || declared == "application/octet-stream" {
		return mimetype.Detect(req.Content).String()
	}
	return declared
}

func filename(req *UploadRequest, id string) string {
	if name := strings.TrimSpace(req.Filename); name != "" {
		return name
	}
	switch req.Kind {
	case KindText:
		return id + ".txt"
	default:
		return id
	}
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
