package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BlogRepository реализация репозитория статей через PostgreSQL
type BlogRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewBlogRepository создает репозиторий статей
func NewBlogRepository(db *pgxpool.Pool, log *logger.Logger) *BlogRepository {
	return &BlogRepository{db: db, log: log}
}

var _ repository.BlogRepository = (*BlogRepository)(nil)

const articleColumns = `id, title, slug, excerpt, content, tags, status, author_id, generated_by,
	published_at, created_at, updated_at`

func scanArticle(row rowScanner) (*domain.BlogArticle, error) {
	var a domain.BlogArticle
	err := row.Scan(&a.ID, &a.Title, &a.Slug, &a.Excerpt, &a.Content, &a.Tags, &a.Status,
		&a.AuthorID, &a.GeneratedBy, &a.PublishedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
	return &a, nil
}

// Create сохраняет новую статью
func (r *BlogRepository) Create(ctx context.Context, a *domain.BlogArticle) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	_, err := r.db.Exec(ctx, `
		INSERT INTO blog_articles (`+articleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.Title, a.Slug, a.Excerpt, a.Content, a.Tags, a.Status, a.AuthorID, a.GeneratedBy,
		a.PublishedAt, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return mapError(err, "create article")
	}
	return nil
}

// Update сохраняет изменения статьи
func (r *BlogRepository) Update(ctx context.Context, a *domain.BlogArticle) error {
	a.UpdatedAt = time.Now().UTC()
	if a.Tags == nil {
		a.Tags = []string{}
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE blog_articles SET title = $2, slug = $3, excerpt = $4, content = $5, tags = $6,
			status = $7, published_at = $8, updated_at = $9
		WHERE id = $1`,
		a.ID, a.Title, a.Slug, a.Excerpt, a.Content, a.Tags, a.Status, a.PublishedAt, a.UpdatedAt)
	if err != nil {
		return mapError(err, "update article")
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete удаляет статью
func (r *BlogRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM blog_articles WHERE id = $1`, id)
	if err != nil {
		return mapError(err, "delete article")
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetByID возвращает статью по ID
func (r *BlogRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.BlogArticle, error) {
	a, err := scanArticle(r.db.QueryRow(ctx, `SELECT `+articleColumns+` FROM blog_articles WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, "get article")
	}
	return a, nil
}

// GetBySlug возвращает статью по slug
func (r *BlogRepository) GetBySlug(ctx context.Context, slug string) (*domain.BlogArticle, error) {
	a, err := scanArticle(r.db.QueryRow(ctx, `SELECT `+articleColumns+` FROM blog_articles WHERE slug = $1`, slug))
	if err != nil {
		return nil, mapError(err, "get article")
	}
	return a, nil
}

// SlugExists проверяет занятость slug
func (r *BlogRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM blog_articles WHERE slug = $1)`, slug).Scan(&exists); err != nil {
		return false, mapError(err, "check slug")
	}
	return exists, nil
}

// List возвращает статьи по фильтру, новые первыми
func (r *BlogRepository) List(ctx context.Context, f domain.BlogFilter) ([]domain.BlogArticle, int, error) {
	w := &whereBuilder{}
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	if f.Tag != "" {
		w.add("? = ANY(tags)", f.Tag)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM blog_articles`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, mapError(err, "count articles")
	}

	args := append(w.args, limitOrAll(f.Limit), f.Offset)
	query := fmt.Sprintf(`SELECT %s FROM blog_articles%s
		ORDER BY COALESCE(published_at, created_at) DESC
		LIMIT $%d OFFSET $%d`, articleColumns, w.sql(), len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, mapError(err, "list articles")
	}
	defer rows.Close()

	var out []domain.BlogArticle
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan article: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating articles: %w", err)
	}
	return out, total, nil
}
