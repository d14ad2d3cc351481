package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/export"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	maxDashboardRange  = 366 * 24 * time.Hour
	topRestaurantLimit = 10
	maxExportEvents    = 100000
	maxProperties      = 20
)

var eventCSVHeaders = []string{"id", "name", "user_id", "session_id", "restaurant_id", "properties", "created_at"}

// AnalyticsPublisher публикует события аналитики в брокер
type AnalyticsPublisher interface {
	PublishAnalyticsEvents(ctx context.Context, events []domain.AnalyticsEvent) error
}

// AnalyticsService события, дашборд и метрики запуска
type AnalyticsService interface {
	Track(ctx context.Context, userID *uuid.UUID, req domain.TrackRequest) error
	// Sink сохраняет пачку событий; используется потребителем Kafka
	Sink(ctx context.Context, events []domain.AnalyticsEvent) error
	Dashboard(ctx context.Context, from, to time.Time) (*domain.Dashboard, error)
	RecordLaunchMetric(ctx context.Context, in domain.LaunchMetricInput) (*domain.LaunchMetric, error)
	LaunchMetrics(ctx context.Context, from, to time.Time) ([]domain.LaunchMetric, error)
	ExportEvents(ctx context.Context, w io.Writer, filter domain.AnalyticsFilter) error
}

// AnalyticsDeps зависимости сервиса аналитики
type AnalyticsDeps struct {
	Events        repository.AnalyticsRepository
	Users         repository.UserRepository
	Restaurants   repository.RestaurantRepository
	Reviews       repository.ReviewRepository
	Favorites     repository.FavoriteRepository
	Subscriptions repository.SubscriptionRepository
	WebhookEvents repository.WebhookEventRepository
	// Tiers может быть nil: MRR тогда считается равным нулю
	Tiers repository.PartnershipTierRepository
	// Publisher может быть nil: события пишутся сразу в хранилище
	Publisher AnalyticsPublisher
}

type analyticsService struct {
	deps AnalyticsDeps
	now  func() time.Time
	log  *logger.Logger
}

// NewAnalyticsService создает сервис аналитики
func NewAnalyticsService(deps AnalyticsDeps, log *logger.Logger) AnalyticsService {
	return &analyticsService{deps: deps, now: time.Now, log: log}
}

func (s *analyticsService) Track(ctx context.Context, userID *uuid.UUID, req domain.TrackRequest) error {
	name := strings.TrimSpace(req.Name)
	if !domain.IsKnownEvent(name) {
		return fmt.Errorf("%w: unknown event %q", domain.ErrInvalidInput, req.Name)
	}
	if len(req.Properties) > maxProperties {
		return fmt.Errorf("%w: too many properties", domain.ErrInvalidInput)
	}
	event := domain.AnalyticsEvent{
		ID:         uuid.New(),
		Name:       name,
		UserID:     userID,
		SessionID:  strings.TrimSpace(req.SessionID),
		Properties: req.Properties,
		CreatedAt:  s.now().UTC(),
	}
	if req.RestaurantID != "" {
		id, err := uuid.Parse(req.RestaurantID)
		if err != nil {
			return fmt.Errorf("%w: restaurant_id", domain.ErrInvalidInput)
		}
		event.RestaurantID = &id
	}

	events := []domain.AnalyticsEvent{event}
	if s.deps.Publisher != nil {
		err := s.deps.Publisher.PublishAnalyticsEvents(ctx, events)
		if err == nil {
			return nil
		}
		s.log.Warnw("Failed to publish analytics event, storing directly", "event", name, "error", err)
	}
	return s.Sink(ctx, events)
}

func (s *analyticsService) Sink(ctx context.Context, events []domain.AnalyticsEvent) error {
	if len(events) == 0 {
		return nil
	}
	if err := s.deps.Events.InsertEvents(ctx, events); err != nil {
		return fmt.Errorf("insert analytics events: %w", err)
	}
	return nil
}

func (s *analyticsService) window(from, to time.Time) (time.Time, time.Time, error) {
	if to.IsZero() {
		to = s.now().UTC()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}
	if !from.Before(to) {
		return from, to, fmt.Errorf("%w: from must be before to", domain.ErrInvalidInput)
	}
	if to.Sub(from) > maxDashboardRange {
		return from, to, fmt.Errorf("%w: range is longer than a year", domain.ErrInvalidInput)
	}
	return from, to, nil
}

func (s *analyticsService) Dashboard(ctx context.Context, from, to time.Time) (*domain.Dashboard, error) {
	from, to, err := s.window(from, to)
	if err != nil {
		return nil, err
	}
	d := &domain.Dashboard{From: from, To: to}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if d.Totals.Users, err = s.deps.Users.Count(gctx); err != nil {
			return fmt.Errorf("count users: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if d.Totals.Restaurants, err = s.deps.Restaurants.Count(gctx); err != nil {
			return fmt.Errorf("count restaurants: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if d.Totals.Reviews, err = s.deps.Reviews.Count(gctx); err != nil {
			return fmt.Errorf("count reviews: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if d.Totals.Favorites, err = s.deps.Favorites.Count(gctx); err != nil {
			return fmt.Errorf("count favorites: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if d.EventsByName, err = s.deps.Events.CountByName(gctx, from, to); err != nil {
			return fmt.Errorf("events by name: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if d.DailyEvents, err = s.deps.Events.DailyCounts(gctx, from, to); err != nil {
			return fmt.Errorf("daily events: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		d.TopRestaurants, err = s.deps.Events.TopRestaurants(gctx, domain.EventRestaurantView, from, to, topRestaurantLimit)
		if err != nil {
			return fmt.Errorf("top restaurants: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if d.LaunchMetrics, err = s.deps.Events.ListLaunchMetrics(gctx, from, to); err != nil {
			return fmt.Errorf("launch metrics: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if s.deps.WebhookEvents == nil {
			return nil
		}
		var err error
		if d.FailedWebhooks, err = s.deps.WebhookEvents.CountByStatus(gctx, domain.WebhookEventStatusFailed); err != nil {
			return fmt.Errorf("count failed webhooks: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		counts, err := s.deps.Subscriptions.CountLiveByTier(gctx)
		if err != nil {
			return fmt.Errorf("subscriptions by tier: %w", err)
		}
		d.Subscriptions = counts
		d.MRRCents, err = s.mrr(gctx, counts)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return d, nil
}

// mrr месячная выручка по ценам партнерских тарифов
func (s *analyticsService) mrr(ctx context.Context, counts []domain.TierCount) (int64, error) {
	if s.deps.Tiers == nil {
		return 0, nil
	}
	tiers, err := s.deps.Tiers.List(ctx, false)
	if err != nil {
		return 0, fmt.Errorf("list tiers: %w", err)
	}
	prices := make(map[domain.Tier]int64, len(tiers))
	for _, t := range tiers {
		prices[t.Tier] = t.MonthlyPriceCents
	}
	var total int64
	for _, c := range counts {
		total += prices[c.Tier] * int64(c.Count)
	}
	return total, nil
}

func (s *analyticsService) RecordLaunchMetric(ctx context.Context, in domain.LaunchMetricInput) (*domain.LaunchMetric, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	day := s.now().UTC().Truncate(24 * time.Hour)
	if strings.TrimSpace(in.Day) != "" {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(in.Day))
		if err != nil {
			return nil, fmt.Errorf("%w: day must be YYYY-MM-DD", domain.ErrInvalidInput)
		}
		day = parsed
	}
	m := &domain.LaunchMetric{Name: name, Value: in.Value, Day: day, Notes: strings.TrimSpace(in.Notes)}
	if err := s.deps.Events.UpsertLaunchMetric(ctx, m); err != nil {
		return nil, fmt.Errorf("record launch metric: %w", err)
	}
	return m, nil
}

func (s *analyticsService) LaunchMetrics(ctx context.Context, from, to time.Time) ([]domain.LaunchMetric, error) {
	from, to, err := s.window(from, to)
	if err != nil {
		return nil, err
	}
	metrics, err := s.deps.Events.ListLaunchMetrics(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = []domain.LaunchMetric{}
	}
	return metrics, nil
}

func (s *analyticsService) ExportEvents(ctx context.Context, w io.Writer, filter domain.AnalyticsFilter) error {
	from, to, err := s.window(filter.From, filter.To)
	if err != nil {
		return err
	}
	filter.From, filter.To = from, to
	if filter.Limit <= 0 || filter.Limit > maxExportEvents {
		filter.Limit = maxExportEvents
	}
	events, err := s.deps.Events.ListEvents(ctx, filter)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(events))
	for _, e := range events {
		rows = append(rows, []string{
			e.ID.String(),
			e.Name,
			optionalID(e.UserID),
			e.SessionID,
			optionalID(e.RestaurantID),
			formatProperties(e.Properties),
			e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return export.WriteCSV(w, eventCSVHeaders, rows)
}

func optionalID(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

// formatProperties key=value через точку с запятой в порядке ключей
func formatProperties(props map[string]string) string {
	if len(props) == 0 {
		return ""
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strconv.Quote(props[k]))
	}
	return strings.Join(parts, ";")
}
