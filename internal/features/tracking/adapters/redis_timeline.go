package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"returns-desk/internal/core/kv"
	"returns-desk/internal/features/tracking/domain"
	"returns-desk/internal/features/tracking/ports"
)

const (
	timelineKeyPrefix = "tracking:timeline:"
	seenKeyPrefix     = "tracking:seen:"
	summaryKeyPrefix  = "tracking:summary:"
	activeCodesKey    = "tracking:active"

	maxRecordAttempts = 3
)

func timelineKey(code string) string { return timelineKeyPrefix + code }

func seenKey(code string) string { return seenKeyPrefix + code }

func summaryKey(code string) string { return summaryKeyPrefix + code }

// RedisTimelineStore implements ports.TimelineStore.
//
// Layout per shipping code:
//
//	tracking:timeline:{code}  sorted set of entry JSON scored by carrier time
//	tracking:seen:{code}      set of event dedup keys
//	tracking:summary:{code}   summary JSON
type RedisTimelineStore struct {
	store kv.Store
}

// NewRedisTimelineStore creates a new RedisTimelineStore.
func NewRedisTimelineStore(store kv.Store) *RedisTimelineStore {
	return &RedisTimelineStore{store: store}
}

// Record implements ports.TimelineStore.
func (s *RedisTimelineStore) Record(
	ctx context.Context,
	event domain.CarrierEvent,
	entry *domain.TimelineEntry,
	stage ports.RecordFunc,
	watch ...string,
) (appended, moved bool, err error) {
	code := event.OrderCode
	keys := append([]string{seenKey(code), summaryKey(code)}, watch...)

	data, err := json.Marshal(entry)
	if err != nil {
		return false, false, fmt.Errorf("failed to marshal timeline entry: %w", err)
	}

	for attempt := 1; ; attempt++ {
		appended, moved = false, false

		err = s.store.Update(ctx, func(tx kv.Txn) error {
			seen, err := tx.IsMember(seenKey(code), event.DedupKey())
			if err != nil || seen {
				return err
			}

			summary, err := loadSummary(tx, code)
			if err != nil {
				return err
			}

			tx.AddMember(seenKey(code), event.DedupKey())
			tx.AddRanked(timelineKey(code), float64(entry.CarrierTime.UnixMilli()), string(data))
			appended = true

			if entry.Status.Known() && summary.Supersedes(entry) {
				next, err := json.Marshal(domain.Summary{
					OrderCode:   code,
					Status:      entry.Status,
					RawStatus:   entry.RawStatus,
					Description: entry.Description,
					CarrierTime: entry.CarrierTime,
					UpdatedAt:   entry.RecordedAt,
				})
				if err != nil {
					return err
				}
				tx.Set(summaryKey(code), next)
				moved = true
			}

			if stage != nil {
				return stage(tx, entry, moved)
			}
			return nil
		}, keys...)

		if errors.Is(err, kv.ErrConflict) && attempt < maxRecordAttempts {
			continue
		}
		if err != nil {
			return false, false, fmt.Errorf("failed to record %s for %s: %w", event.RawStatus, code, err)
		}
		return appended, moved, nil
	}
}

// Entries implements ports.TimelineStore.
func (s *RedisTimelineStore) Entries(ctx context.Context, code string, ascending bool) ([]domain.TimelineEntry, error) {
	members, err := s.store.Ranked(ctx, timelineKey(code), !ascending)
	if err != nil {
		return nil, fmt.Errorf("failed to read timeline for %s: %w", code, err)
	}

	entries := make([]domain.TimelineEntry, 0, len(members))
	for _, m := range members {
		var entry domain.TimelineEntry
		if err := json.Unmarshal([]byte(m), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal timeline entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Summary implements ports.TimelineStore. Returns nil when nothing was recorded.
func (s *RedisTimelineStore) Summary(ctx context.Context, code string) (*domain.Summary, error) {
	data, err := s.store.Get(ctx, summaryKey(code))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read summary for %s: %w", code, err)
	}
	return decodeSummary(data)
}

func loadSummary(tx kv.Txn, code string) (*domain.Summary, error) {
	data, err := tx.Get(summaryKey(code))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeSummary(data)
}

func decodeSummary(data []byte) (*domain.Summary, error) {
	var summary domain.Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}
	return &summary, nil
}

// RedisRegistry implements ports.Registry and the orders tracking registry.
type RedisRegistry struct {
	store kv.Store
}

// NewRedisRegistry creates a new RedisRegistry.
func NewRedisRegistry(store kv.Store) *RedisRegistry {
	return &RedisRegistry{store: store}
}

// Register adds code to the polled set.
func (r *RedisRegistry) Register(ctx context.Context, code string) error {
	return r.store.AddMember(ctx, activeCodesKey, code)
}

// Active lists the polled codes.
func (r *RedisRegistry) Active(ctx context.Context) ([]string, error) {
	return r.store.Members(ctx, activeCodesKey)
}

// Unregister queues removal of code on tx.
func (r *RedisRegistry) Unregister(tx kv.Txn, code string) {
	tx.RemoveMember(activeCodesKey, code)
}
