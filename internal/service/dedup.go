package service

import (
	"slices"
	"sort"
	"time"

	"github.com/breezeauth/riskgate/internal/model"
)

// minuteKey truncates t to its UTC minute
func minuteKey(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04")
}

// DedupByMinute keeps the first item per key and minute. Items are expected
// newest first, so the newest row of each minute survives.
func DedupByMinute[T any](items []T, key func(T) string, at func(T) time.Time) []T {
	seen := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, it := range items {
		k := key(it) + "|" + minuteKey(at(it))
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out
}

// DedupEvents collapses events per kind and minute
func DedupEvents(events []*model.Event) []*model.Event {
	return DedupByMinute(events,
		func(e *model.Event) string { return string(e.Kind) },
		func(e *model.Event) time.Time { return e.CreatedAt })
}

// DedupAnalytics collapses analytics rows per minute
func DedupAnalytics(rows []*model.UserAnalytics) []*model.UserAnalytics {
	return DedupByMinute(rows,
		func(*model.UserAnalytics) string { return "" },
		func(a *model.UserAnalytics) time.Time { return a.CreatedAt })
}

// ShopEntry is one shop activity observation, from the log or from an
// analytics row's metadata
type ShopEntry struct {
	SessionID string    `json:"sessionId"`
	UserID    *string   `json:"userId,omitempty"`
	Email     string    `json:"email,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	model.ShopActivity
}

// ShopEntries extracts shop activity from events and analytics, newest first
func ShopEntries(events []*model.Event, rows []*model.UserAnalytics) []ShopEntry {
	var out []ShopEntry
	for _, e := range events {
		if e.Kind != model.EventShopActivity || e.Shop == nil {
			continue
		}
		out = append(out, ShopEntry{
			SessionID:    e.SessionID,
			UserID:       e.UserID,
			Timestamp:    e.CreatedAt,
			ShopActivity: *e.Shop,
		})
	}
	for _, a := range rows {
		if a.Metadata.ShopMetrics == nil {
			continue
		}
		out = append(out, ShopEntry{
			SessionID:    a.SessionID,
			UserID:       a.UserID,
			Email:        a.Metadata.Email,
			Timestamp:    a.CreatedAt,
			ShopActivity: *a.Metadata.ShopMetrics,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// MergeShopEntries folds entries into one summary per session: product views
// are unioned, counters summed, and the latest timestamp kept. Sessions are
// returned in order of first appearance.
func MergeShopEntries(entries []ShopEntry) []ShopEntry {
	index := make(map[string]int)
	var out []ShopEntry
	for _, e := range entries {
		i, ok := index[e.SessionID]
		if !ok {
			e.ProductViews = slices.Clone(e.ProductViews)
			index[e.SessionID] = len(out)
			out = append(out, e)
			continue
		}

		m := &out[i]
		for _, id := range e.ProductViews {
			if !slices.Contains(m.ProductViews, id) {
				m.ProductViews = append(m.ProductViews, id)
			}
		}
		m.CartActions += e.CartActions
		m.WishlistActions += e.WishlistActions
		m.CategoryChanges += e.CategoryChanges
		m.Searches += e.Searches
		if e.Timestamp.After(m.Timestamp) {
			m.Timestamp = e.Timestamp
		}
		if m.UserID == nil {
			m.UserID = e.UserID
		}
		if m.Email == "" {
			m.Email = e.Email
		}
	}
	return out
}
