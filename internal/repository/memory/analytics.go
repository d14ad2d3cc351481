package memory

import (
	"context"
	"sort"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/google/uuid"
)

// AnalyticsRepository реализация repository.AnalyticsRepository в памяти
type AnalyticsRepository struct{ s *Store }

// Analytics возвращает репозиторий аналитики
func (s *Store) Analytics() *AnalyticsRepository { return &AnalyticsRepository{s: s} }

var _ repository.AnalyticsRepository = (*AnalyticsRepository)(nil)

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func (r *AnalyticsRepository) InsertEvents(ctx context.Context, events []domain.AnalyticsEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range events {
		ensureID(&e.ID)
		if e.CreatedAt.IsZero() {
			e.CreatedAt = r.s.now()
		}
		r.s.events = append(r.s.events, e)
	}
	return nil
}

func (r *AnalyticsRepository) ListEvents(ctx context.Context, f domain.AnalyticsFilter) ([]domain.AnalyticsEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.AnalyticsEvent
	for _, e := range r.s.events {
		if !inRange(e.CreatedAt, f.From, f.To) {
			continue
		}
		if f.Name != "" && e.Name != f.Name {
			continue
		}
		if f.RestaurantID != nil && (e.RestaurantID == nil || *e.RestaurantID != *f.RestaurantID) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *AnalyticsRepository) CountByName(ctx context.Context, from, to time.Time) ([]domain.NameCount, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	counts := map[string]int{}
	for _, e := range r.s.events {
		if inRange(e.CreatedAt, from, to) {
			counts[e.Name]++
		}
	}
	out := make([]domain.NameCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, domain.NameCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *AnalyticsRepository) DailyCounts(ctx context.Context, from, to time.Time) ([]domain.DailyCount, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	counts := map[time.Time]int{}
	for _, e := range r.s.events {
		if inRange(e.CreatedAt, from, to) {
			day := e.CreatedAt.UTC().Truncate(24 * time.Hour)
			counts[day]++
		}
	}
	out := make([]domain.DailyCount, 0, len(counts))
	for day, n := range counts {
		out = append(out, domain.DailyCount{Day: day, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

func (r *AnalyticsRepository) TopRestaurants(ctx context.Context, eventName string, from, to time.Time, limit int) ([]domain.RestaurantCount, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	counts := map[uuid.UUID]int{}
	for _, e := range r.s.events {
		if e.Name == eventName && e.RestaurantID != nil && inRange(e.CreatedAt, from, to) {
			counts[*e.RestaurantID]++
		}
	}
	out := make([]domain.RestaurantCount, 0, len(counts))
	for id, n := range counts {
		name := ""
		if rest, ok := r.s.restaurants[id]; ok {
			name = rest.Name
		}
		out = append(out, domain.RestaurantCount{RestaurantID: id, Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *AnalyticsRepository) CountForRestaurant(ctx context.Context, eventName string, restaurantID uuid.UUID, from, to time.Time) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, e := range r.s.events {
		if e.Name == eventName && e.RestaurantID != nil && *e.RestaurantID == restaurantID && inRange(e.CreatedAt, from, to) {
			n++
		}
	}
	return n, nil
}

func (r *AnalyticsRepository) UpsertLaunchMetric(ctx context.Context, m *domain.LaunchMetric) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := launchKey{name: m.Name, day: m.Day.Format("2006-01-02")}
	if existing, ok := r.s.launchMetrics[key]; ok {
		m.ID = existing.ID
		m.CreatedAt = existing.CreatedAt
	} else {
		ensureID(&m.ID)
		m.CreatedAt = r.s.now()
	}
	r.s.launchMetrics[key] = *m
	return nil
}

func (r *AnalyticsRepository) ListLaunchMetrics(ctx context.Context, from, to time.Time) ([]domain.LaunchMetric, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.LaunchMetric
	for _, m := range r.s.launchMetrics {
		if inRange(m.Day, from, to) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Day.Equal(out[j].Day) {
			return out[i].Day.Before(out[j].Day)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
