package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/integration/anthropic"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

const (
	defaultWordCount = 800
	maxFeatured      = 10
	maxTags          = 8

	generatedByManual    = "manual"
	generatedByAnthropic = "anthropic"
)

const blogSystemPrompt = `You write articles for eKaty, a local guide to restaurants in Katy, Texas.
Write in American English for local readers. Only mention restaurants that are listed in the prompt.
Respond with a single JSON object and nothing else:
{"title": string, "excerpt": string (max 300 chars), "content": string (HTML using p, h2, h3, ul, li, strong, em, a), "tags": [string]}`

// Completer генерирует текст по запросу
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (*anthropic.Completion, error)
}

// BlogService статьи блога
type BlogService interface {
	ListPublished(ctx context.Context, tag string, limit, offset int) ([]domain.BlogArticle, int, error)
	GetPublished(ctx context.Context, slug string) (*domain.BlogArticle, error)

	List(ctx context.Context, filter domain.BlogFilter) ([]domain.BlogArticle, int, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.BlogArticle, error)
	// Generate пишет черновик статьи с помощью модели
	Generate(ctx context.Context, authorID uuid.UUID, req domain.BlogGenerateRequest) (*domain.BlogArticle, error)
	Create(ctx context.Context, authorID uuid.UUID, in domain.BlogArticleInput) (*domain.BlogArticle, error)
	Update(ctx context.Context, id uuid.UUID, in domain.BlogArticleInput) (*domain.BlogArticle, error)
	SetPublished(ctx context.Context, id uuid.UUID, published bool) (*domain.BlogArticle, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type blogService struct {
	repo        repository.BlogRepository
	restaurants repository.RestaurantRepository
	ai          Completer
	policy      *bluemonday.Policy
	plain       *bluemonday.Policy
	now         func() time.Time
	log         *logger.Logger
}

// NewBlogService создает сервис блога. ai может быть nil: генерация тогда недоступна.
func NewBlogService(repo repository.BlogRepository, restaurants repository.RestaurantRepository, ai Completer, log *logger.Logger) BlogService {
	return &blogService{
		repo:        repo,
		restaurants: restaurants,
		ai:          ai,
		policy:      bluemonday.UGCPolicy(),
		plain:       bluemonday.StrictPolicy(),
		now:         time.Now,
		log:         log,
	}
}

type generatedArticle struct {
	Title   string   `json:"title"`
	Excerpt string   `json:"excerpt"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

func (s *blogService) ListPublished(ctx context.Context, tag string, limit, offset int) ([]domain.BlogArticle, int, error) {
	return s.List(ctx, domain.BlogFilter{Status: domain.ArticleStatusPublished, Tag: tag, Limit: limit, Offset: offset})
}

func (s *blogService) GetPublished(ctx context.Context, slug string) (*domain.BlogArticle, error) {
	a, err := s.repo.GetBySlug(ctx, strings.ToLower(strings.TrimSpace(slug)))
	if err != nil {
		return nil, err
	}
	if a.Status != domain.ArticleStatusPublished {
		return nil, repository.ErrNotFound
	}
	return a, nil
}

func (s *blogService) List(ctx context.Context, filter domain.BlogFilter) ([]domain.BlogArticle, int, error) {
	if filter.Limit <= 0 || filter.Limit > maxSearchLimit {
		filter.Limit = defaultSearchLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []domain.BlogArticle{}
	}
	return items, total, nil
}

func (s *blogService) Get(ctx context.Context, id uuid.UUID) (*domain.BlogArticle, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *blogService) Generate(ctx context.Context, authorID uuid.UUID, req domain.BlogGenerateRequest) (*domain.BlogArticle, error) {
	if s.ai == nil {
		return nil, fmt.Errorf("%w: anthropic", domain.ErrNotConfigured)
	}
	topic := strings.TrimSpace(req.Topic)
	if len(topic) < 3 {
		return nil, fmt.Errorf("%w: topic is too short", domain.ErrInvalidInput)
	}
	if len(req.RestaurantIDs) > maxFeatured {
		return nil, fmt.Errorf("%w: at most %d restaurants can be featured", domain.ErrInvalidInput, maxFeatured)
	}

	featured := make([]domain.Restaurant, 0, len(req.RestaurantIDs))
	for _, id := range req.RestaurantIDs {
		rest, err := s.restaurants.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("featured restaurant %s: %w", id, err)
		}
		featured = append(featured, *rest)
	}

	start := time.Now()
	completion, err := s.ai.Complete(ctx, blogSystemPrompt, buildBlogPrompt(topic, req, featured))
	if err != nil {
		return nil, err
	}
	raw, err := anthropic.ExtractJSON(completion.Text)
	if err != nil {
		return nil, err
	}
	var out generatedArticle
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("%w: model returned invalid JSON: %v", domain.ErrInvalidOperation, err)
	}
	if strings.TrimSpace(out.Title) == "" || strings.TrimSpace(out.Content) == "" {
		return nil, fmt.Errorf("%w: model returned an empty article", domain.ErrInvalidOperation)
	}

	article := &domain.BlogArticle{
		Title:       s.plainText(out.Title),
		Excerpt:     truncate(s.plainText(out.Excerpt), 300),
		Content:     s.policy.Sanitize(out.Content),
		Tags:        normalizeTags(out.Tags),
		Status:      domain.ArticleStatusDraft,
		GeneratedBy: generatedByAnthropic,
	}
	if authorID != uuid.Nil {
		id := authorID
		article.AuthorID = &id
	}
	if err := s.save(ctx, article); err != nil {
		return nil, err
	}
	s.log.Infow("Blog article generated",
		"articleID", article.ID,
		"slug", article.Slug,
		"inputTokens", completion.InputTokens,
		"outputTokens", completion.OutputTokens,
		"duration", time.Since(start),
	)
	return article, nil
}

func buildBlogPrompt(topic string, req domain.BlogGenerateRequest, featured []domain.Restaurant) string {
	words := req.WordCount
	if words <= 0 {
		words = defaultWordCount
	}
	tone := strings.TrimSpace(req.Tone)
	if tone == "" {
		tone = "friendly and informative"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", topic)
	fmt.Fprintf(&b, "Tone: %s\n", tone)
	fmt.Fprintf(&b, "Length: about %d words\n", words)
	if len(req.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords to include: %s\n", strings.Join(req.Keywords, ", "))
	}
	if len(featured) > 0 {
		b.WriteString("Restaurants to feature:\n")
		for _, r := range featured {
			fmt.Fprintf(&b, "- %s (%s), %s, %s. Google rating %.1f.", r.Name, r.Cuisine, r.Address, r.City, r.Rating)
			if r.Description != "" {
				fmt.Fprintf(&b, " %s", r.Description)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (s *blogService) Create(ctx context.Context, authorID uuid.UUID, in domain.BlogArticleInput) (*domain.BlogArticle, error) {
	article := &domain.BlogArticle{Status: domain.ArticleStatusDraft, GeneratedBy: generatedByManual}
	s.apply(article, in)
	if article.Title == "" || article.Content == "" {
		return nil, fmt.Errorf("%w: title and content are required", domain.ErrInvalidInput)
	}
	if authorID != uuid.Nil {
		id := authorID
		article.AuthorID = &id
	}
	if err := s.save(ctx, article); err != nil {
		return nil, err
	}
	s.log.Infow("Blog article created", "articleID", article.ID, "slug", article.Slug)
	return article, nil
}

// save выбирает свободный slug и сохраняет статью
func (s *blogService) save(ctx context.Context, article *domain.BlogArticle) error {
	slug, err := uniqueSlug(ctx, domain.Slugify(article.Title), s.repo.SlugExists)
	if err != nil {
		return err
	}
	article.Slug = slug
	if err := s.repo.Create(ctx, article); err != nil {
		return fmt.Errorf("create article: %w", err)
	}
	return nil
}

func (s *blogService) apply(article *domain.BlogArticle, in domain.BlogArticleInput) {
	if in.Title != nil {
		article.Title = s.plainText(*in.Title)
	}
	if in.Excerpt != nil {
		article.Excerpt = truncate(s.plainText(*in.Excerpt), 300)
	}
	if in.Content != nil {
		article.Content = s.policy.Sanitize(*in.Content)
	}
	if in.Tags != nil {
		article.Tags = normalizeTags(in.Tags)
	}
}

func (s *blogService) Update(ctx context.Context, id uuid.UUID, in domain.BlogArticleInput) (*domain.BlogArticle, error) {
	article, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.apply(article, in)
	if article.Title == "" || article.Content == "" {
		return nil, fmt.Errorf("%w: title and content are required", domain.ErrInvalidInput)
	}
	if err := s.repo.Update(ctx, article); err != nil {
		return nil, fmt.Errorf("update article: %w", err)
	}
	return article, nil
}

func (s *blogService) SetPublished(ctx context.Context, id uuid.UUID, published bool) (*domain.BlogArticle, error) {
	article, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if published {
		article.Status = domain.ArticleStatusPublished
		if article.PublishedAt == nil {
			now := s.now().UTC()
			article.PublishedAt = &now
		}
	} else {
		article.Status = domain.ArticleStatusDraft
	}
	if err := s.repo.Update(ctx, article); err != nil {
		return nil, fmt.Errorf("update article: %w", err)
	}
	s.log.Infow("Blog article status changed", "articleID", article.ID, "status", article.Status)
	return article, nil
}

func (s *blogService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *blogService) plainText(v string) string {
	return strings.TrimSpace(s.plain.Sanitize(v))
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == maxTags {
			break
		}
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
