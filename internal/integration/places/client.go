// Package places клиент Google Places (Text Search и Place Details).
package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Dhoini/ekaty/internal/config"
	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/metrics"
	"github.com/Dhoini/ekaty/internal/resilience"
	"github.com/Dhoini/ekaty/pkg/logger"
	"golang.org/x/time/rate"
)

const serviceName = "google_places"

const detailFields = "place_id,name,formatted_address,formatted_phone_number,website,geometry,rating," +
	"user_ratings_total,price_level,types,business_status"

// Place ресторан из ответа Places API
type Place struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	FormattedAddress string   `json:"formatted_address"`
	Phone            string   `json:"formatted_phone_number"`
	Website          string   `json:"website"`
	Rating           float64  `json:"rating"`
	UserRatingsTotal int      `json:"user_ratings_total"`
	PriceLevel       int      `json:"price_level"`
	Types            []string `json:"types"`
	BusinessStatus   string   `json:"business_status"`
	Geometry         struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
}

// Closed сообщает, что заведение закрыто навсегда
func (p Place) Closed() bool {
	return p.BusinessStatus == "CLOSED_PERMANENTLY"
}

type searchResponse struct {
	Status        string  `json:"status"`
	ErrorMessage  string  `json:"error_message"`
	Results       []Place `json:"results"`
	NextPageToken string  `json:"next_page_token"`
}

type detailsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Result       Place  `json:"result"`
}

// Client клиент Places API с ограничением частоты, повторами и выключателем
type Client struct {
	http      *http.Client
	cfg       config.PlacesConfig
	limiter   *rate.Limiter
	breaker   *resilience.Breaker
	policy    resilience.RetryPolicy
	metrics   metrics.IntegrationMetrics
	log       *logger.Logger
	pageDelay time.Duration
}

// Option настраивает клиент
type Option func(*Client)

// WithHTTPClient подменяет HTTP клиент
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRetryPolicy задает политику повторов
func WithRetryPolicy(p resilience.RetryPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// WithPageDelay задает паузу перед запросом следующей страницы.
// Google активирует next_page_token через пару секунд после выдачи.
func WithPageDelay(d time.Duration) Option {
	return func(c *Client) { c.pageDelay = d }
}

// WithMetrics подключает метрики
func WithMetrics(m metrics.IntegrationMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient создает клиент Places
func NewClient(cfg config.PlacesConfig, log *logger.Logger, opts ...Option) *Client {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	c := &Client{
		http:      &http.Client{Timeout: 15 * time.Second},
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
		breaker:   resilience.NewBreaker(serviceName, 5, 30*time.Second, log),
		policy:    resilience.DefaultRetryPolicy,
		metrics:   metrics.Nop{},
		log:       log,
		pageDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured сообщает, задан ли API ключ
func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

// TextSearch ищет заведения по запросу, следуя next_page_token не более maxPages страниц
func (c *Client) TextSearch(ctx context.Context, query string, maxPages int) ([]Place, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("places: %w", domain.ErrNotConfigured)
	}
	if maxPages <= 0 {
		maxPages = c.cfg.MaxPages
	}
	if maxPages <= 0 {
		maxPages = 1
	}

	var (
		places []Place
		token  string
	)
	for page := 0; page < maxPages; page++ {
		params := url.Values{}
		if token != "" {
			params.Set("pagetoken", token)
			if err := sleep(ctx, c.pageDelay); err != nil {
				return places, err
			}
		} else {
			params.Set("query", query)
			params.Set("type", "restaurant")
			if c.cfg.Location != "" {
				params.Set("location", c.cfg.Location)
			}
			if c.cfg.RadiusMeters > 0 {
				params.Set("radius", strconv.Itoa(c.cfg.RadiusMeters))
			}
		}

		var resp searchResponse
		if err := c.get(ctx, "/textsearch/json", params, &resp, func() (string, string) {
			return resp.Status, resp.ErrorMessage
		}); err != nil {
			return places, err
		}
		places = append(places, resp.Results...)
		c.log.Debugw("Places text search page fetched", "query", query, "page", page+1, "results", len(resp.Results))

		if resp.NextPageToken == "" {
			break
		}
		token = resp.NextPageToken
	}
	return places, nil
}

// Details возвращает подробности заведения. Неизвестный place_id дает domain.ErrNotFound.
func (c *Client) Details(ctx context.Context, placeID string) (*Place, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("places: %w", domain.ErrNotConfigured)
	}
	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", detailFields)

	var resp detailsResponse
	if err := c.get(ctx, "/details/json", params, &resp, func() (string, string) {
		return resp.Status, resp.ErrorMessage
	}); err != nil {
		return nil, err
	}
	return &resp.Result, nil
}

// get выполняет GET и разбирает ответ в out; status возвращает поле status ответа
func (c *Client) get(ctx context.Context, path string, params url.Values, out any, status func() (string, string)) error {
	params.Set("key", c.cfg.APIKey)
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + path + "?" + params.Encode()

	start := time.Now()
	err := resilience.Retry(ctx, c.policy, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return resilience.Permanent(err)
		}
		err := c.breaker.Do(func() error {
			return c.do(ctx, endpoint, out, status)
		}, isTransient)
		if err != nil && !isTransient(err) {
			return resilience.Permanent(err)
		}
		return err
	}, func(err error, wait time.Duration) {
		c.log.Warnw("Places request failed, retrying", "path", path, "wait", wait, "error", err)
	})

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.metrics.ObserveExternalCall(serviceName, outcome, time.Since(start))
	return err
}

func (c *Client) do(ctx context.Context, endpoint string, out any, status func() (string, string)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return domain.NewExternalServiceError(serviceName, "transport", "request failed", 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return domain.NewExternalServiceError(serviceName, "transport", "read body", 0, err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.NewExternalServiceError(serviceName, "http", strings.TrimSpace(string(body)), resp.StatusCode, nil)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return domain.NewExternalServiceError(serviceName, "decode", "invalid JSON", resp.StatusCode, err)
	}

	st, msg := status()
	switch st {
	case "OK", "ZERO_RESULTS":
		return nil
	case "NOT_FOUND":
		return fmt.Errorf("place: %w", domain.ErrNotFound)
	case "OVER_QUERY_LIMIT", "UNKNOWN_ERROR":
		return domain.NewExternalServiceError(serviceName, st, msg, http.StatusTooManyRequests, nil)
	default:
		return domain.NewExternalServiceError(serviceName, st, msg, http.StatusBadRequest, nil)
	}
}

// isTransient ошибки, которые имеет смысл повторить и которые размыкают выключатель
func isTransient(err error) bool {
	var ext *domain.ExternalServiceError
	if errors.As(err, &ext) {
		return ext.Temporary()
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
