package paste

import (
	"context"
	"time"

	"github.com/pavel-fokin/paste-stash/internal/subscription"
)

// Kind is the kind of payload a record holds
type Kind string

const (
	KindFile         Kind = "file"
	KindText         Kind = "text"
	KindSubscription Kind = "subscription"
)

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	switch k {
	case KindFile, KindText, KindSubscription:
		return true
	}
	return false
}

// Record represents the metadata of a stored paste. For subscriptions the
// stored content is the upstream URL, not the feed.
type Record struct {
	ID               string             `json:"id"`
	Filename         string             `json:"filename"`
	ContentType      string             `json:"contentType"`
	Size             int64              `json:"size"`
	Kind             Kind               `json:"type"`
	SubscriptionInfo *subscription.Info `json:"subscriptionInfo,omitempty"`
	BurnAfterRead    bool               `json:"burnAfterRead"`
	ExpiresAt        *time.Time         `json:"expiresAt,omitempty"`
	MaxDownloads     *int               `json:"maxDownloads,omitempty"`
	DownloadCount    int                `json:"downloadCount"`
	CreatedAt        time.Time          `json:"createdAt"`
}

// IsExpired reports whether the record expired before now
func (r *Record) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// LimitReached reports whether the download limit is used up
func (r *Record) LimitReached() bool {
	return r.MaxDownloads != nil && r.DownloadCount >= *r.MaxDownloads
}

// Store is the key-value store holding records and their content. Reads may
// be served from a cache and be slightly stale.
type Store interface {
	// Get returns the value for key and whether it exists
	Get(ctx context.Context, key string) (string, bool, error)

	// Put stores value under key, replacing any previous value
	Put(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// List returns all keys starting with prefix
	List(ctx context.Context, prefix string) ([]string, error)
}

const (
	metaPrefix    = "meta:"
	contentPrefix = "content:"
)

func metaKey(id string) string    { return metaPrefix + id }
func contentKey(id string) string { return contentPrefix + id }
