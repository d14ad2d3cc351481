package memory

import (
	"context"
	"sort"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/google/uuid"
)

// BlogRepository реализация repository.BlogRepository в памяти
type BlogRepository struct{ s *Store }

// Blog возвращает репозиторий статей
func (s *Store) Blog() *BlogRepository { return &BlogRepository{s: s} }

var _ repository.BlogRepository = (*BlogRepository)(nil)

func (r *BlogRepository) Create(ctx context.Context, a *domain.BlogArticle) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.articles {
		if existing.Slug == a.Slug {
			return repository.ErrDuplicate
		}
	}
	ensureID(&a.ID)
	now := r.s.now()
	a.CreatedAt, a.UpdatedAt = now, now
	r.s.articles[a.ID] = *a
	return nil
}

func (r *BlogRepository) Update(ctx context.Context, a *domain.BlogArticle) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.articles[a.ID]; !ok {
		return repository.ErrNotFound
	}
	a.UpdatedAt = r.s.now()
	r.s.articles[a.ID] = *a
	return nil
}

func (r *BlogRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.articles[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.articles, id)
	return nil
}

func (r *BlogRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.BlogArticle, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.articles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (r *BlogRepository) GetBySlug(ctx context.Context, slug string) (*domain.BlogArticle, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, a := range r.s.articles {
		if a.Slug == slug {
			return &a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *BlogRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	_, err := r.GetBySlug(ctx, slug)
	if err == repository.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (r *BlogRepository) List(ctx context.Context, f domain.BlogFilter) ([]domain.BlogArticle, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.BlogArticle
	for _, a := range r.s.articles {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Tag != "" && !containsString(a.Tags, f.Tag) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return sortTime(out[i]).After(sortTime(out[j]))
	})
	return paginate(out, f.Limit, f.Offset), len(out), nil
}

func sortTime(a domain.BlogArticle) time.Time {
	if a.PublishedAt != nil {
		return *a.PublishedAt
	}
	return a.CreatedAt
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
