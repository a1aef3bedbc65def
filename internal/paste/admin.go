package paste

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// ListFilter narrows down the admin listing
type ListFilter struct {
	Kind  Kind
	Query string
}

// BatchResult counts the outcome of a batch delete or cleanup sweep
type BatchResult struct {
	Deleted int `json:"deleted"`
	Errors  int `json:"errors"`
}

// List returns all records matching filter, newest first
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Record, error) {
	keys, err := s.store.List(ctx, metaPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	query := strings.ToLower(strings.TrimSpace(filter.Query))
	records := make([]*Record, 0, len(keys))
	for _, key := range keys {
		rec, err := s.load(ctx, strings.TrimPrefix(key, metaPrefix))
		if err != nil {
			// Deleted since listing, or unreadable
			if !errors.Is(err, ErrNotFound) {
				slog.Warn("Skipping record", "error", err, "key", key)
			}
			continue
		}
		if filter.Kind != "" && rec.Kind != filter.Kind {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(rec.ID), query) &&
			!strings.Contains(strings.ToLower(rec.Filename), query) {
			continue
		}
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// Delete removes a record by ID
func (s *Service) Delete(ctx context.Context, id string) error {
	found, err := s.exists(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	return s.remove(ctx, id, "admin")
}

// DeleteMany removes every listed record. Unknown ids and failed deletes are
// counted as errors without stopping the batch.
func (s *Service) DeleteMany(ctx context.Context, ids []string) BatchResult {
	var result BatchResult
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			slog.Warn("Batch delete failed", "error", err, "paste_id", id)
			result.Errors++
			continue
		}
		result.Deleted++
	}
	return result
}

// Cleanup deletes every expired record. A failing record is counted and the
// sweep carries on with the next one.
func (s *Service) Cleanup(ctx context.Context) (BatchResult, error) {
	var result BatchResult

	keys, err := s.store.List(ctx, metaPrefix)
	if err != nil {
		return result, fmt.Errorf("failed to list records: %w", err)
	}

	now := s.now()
	for _, key := range keys {
		id := strings.TrimPrefix(key, metaPrefix)

		data, found, err := s.store.Get(ctx, key)
		if err != nil {
			slog.Warn("Cleanup failed to load record", "error", err, "paste_id", id)
			result.Errors++
			continue
		}
		if !found {
			continue
		}

		var rec Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			slog.Warn("Cleanup failed to decode record", "error", err, "paste_id", id)
			result.Errors++
			continue
		}
		if !rec.IsExpired(now) {
			continue
		}

		if err := s.remove(ctx, id, "cleanup"); err != nil {
			slog.Warn("Cleanup failed to delete record", "error", err, "paste_id", id)
			result.Errors++
			continue
		}
		result.Deleted++
	}

	return result, nil
}
