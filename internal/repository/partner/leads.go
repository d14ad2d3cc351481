// Package partner содержит репозитории базы партнеров на sqlx.
// Запросы пишутся с плейсхолдерами "?" и переводятся в синтаксис драйвера через Rebind,
// поэтому одни и те же репозитории работают с PostgreSQL и SQLite.
package partner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

func notFound(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	return fmt.Errorf("repository: failed to %s: %w", op, err)
}

// LeadRepository лиды для партнерской рассылки
type LeadRepository struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewLeadRepository создает репозиторий лидов
func NewLeadRepository(db *sqlx.DB, log *logger.Logger) *LeadRepository {
	return &LeadRepository{db: db, log: log}
}

var _ repository.LeadRepository = (*LeadRepository)(nil)

const leadColumns = `id, restaurant_name, contact_name, email, phone, city, cuisine, status, source, notes,
	partner_restaurant_id, last_contacted_at, created_at, updated_at`

// Create сохраняет нового лида
func (r *LeadRepository) Create(ctx context.Context, l *domain.Lead) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Status == "" {
		l.Status = domain.LeadStatusNew
	}
	now := time.Now().UTC()
	l.CreatedAt, l.UpdatedAt = now, now

	query := `
		INSERT INTO restaurant_leads (` + leadColumns + `)
		VALUES (:id, :restaurant_name, :contact_name, :email, :phone, :city, :cuisine, :status, :source, :notes,
			:partner_restaurant_id, :last_contacted_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, l); err != nil {
		r.log.Errorw("Failed to create lead", "error", err, "restaurant", l.RestaurantName)
		return fmt.Errorf("repository: failed to create lead: %w", err)
	}
	return nil
}

// Update сохраняет изменения лида
func (r *LeadRepository) Update(ctx context.Context, l *domain.Lead) error {
	l.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE restaurant_leads SET
			restaurant_name = :restaurant_name, contact_name = :contact_name, email = :email, phone = :phone,
			city = :city, cuisine = :cuisine, status = :status, source = :source, notes = :notes,
			partner_restaurant_id = :partner_restaurant_id, last_contacted_at = :last_contacted_at,
			updated_at = :updated_at
		WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, l)
	if err != nil {
		return fmt.Errorf("repository: failed to update lead: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetByID возвращает лида по ID
func (r *LeadRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Lead, error) {
	var l domain.Lead
	query := r.db.Rebind(`SELECT ` + leadColumns + ` FROM restaurant_leads WHERE id = ?`)
	if err := r.db.GetContext(ctx, &l, query, id); err != nil {
		return nil, notFound(err, "get lead")
	}
	return &l, nil
}

// List возвращает лидов в порядке добавления
func (r *LeadRepository) List(ctx context.Context, f domain.LeadFilter) ([]domain.Lead, int, error) {
	where := ""
	var args []any
	if f.Status != "" {
		where = " WHERE status = ?"
		args = append(args, f.Status)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(`SELECT count(*) FROM restaurant_leads`+where), args...); err != nil {
		return nil, 0, fmt.Errorf("repository: failed to count leads: %w", err)
	}

	query := `SELECT ` + leadColumns + ` FROM restaurant_leads` + where + ` ORDER BY created_at ASC, restaurant_name ASC`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}
	leads := []domain.Lead{}
	if err := r.db.SelectContext(ctx, &leads, r.db.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("repository: failed to list leads: %w", err)
	}
	return leads, total, nil
}

// MarkContacted отмечает лидов как контактированных; статус new меняется на contacted
func (r *LeadRepository) MarkContacted(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`
		UPDATE restaurant_leads SET
			last_contacted_at = ?,
			status = CASE WHEN status = ? THEN ? ELSE status END,
			updated_at = ?
		WHERE id IN (?)`, at, domain.LeadStatusNew, domain.LeadStatusContacted, time.Now().UTC(), ids)
	if err != nil {
		return fmt.Errorf("repository: failed to build query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("repository: failed to mark leads contacted: %w", err)
	}
	return nil
}

// PartnerRestaurantRepository рестораны в базе партнеров
type PartnerRestaurantRepository struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPartnerRestaurantRepository создает репозиторий ресторанов-партнеров
func NewPartnerRestaurantRepository(db *sqlx.DB, log *logger.Logger) *PartnerRestaurantRepository {
	return &PartnerRestaurantRepository{db: db, log: log}
}

var _ repository.PartnerRestaurantRepository = (*PartnerRestaurantRepository)(nil)

const partnerRestaurantColumns = `id, name, email, phone, website, address, cuisine, google_place_id,
	catalog_restaurant_id, created_at, updated_at`

// Create сохраняет ресторан-партнер
func (r *PartnerRestaurantRepository) Create(ctx context.Context, p *domain.PartnerRestaurant) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	query := `
		INSERT INTO restaurants (` + partnerRestaurantColumns + `)
		VALUES (:id, :name, :email, :phone, :website, :address, :cuisine, :google_place_id,
			:catalog_restaurant_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("repository: failed to create partner restaurant: %w", err)
	}
	return nil
}

// List возвращает все рестораны-партнеры по имени
func (r *PartnerRestaurantRepository) List(ctx context.Context) ([]domain.PartnerRestaurant, error) {
	out := []domain.PartnerRestaurant{}
	query := `SELECT ` + partnerRestaurantColumns + ` FROM restaurants ORDER BY name ASC`
	if err := r.db.SelectContext(ctx, &out, query); err != nil {
		return nil, fmt.Errorf("repository: failed to list partner restaurants: %w", err)
	}
	return out, nil
}

// SetCatalogLink связывает ресторан-партнер с рестораном каталога
func (r *PartnerRestaurantRepository) SetCatalogLink(ctx context.Context, id, catalogID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE restaurants SET catalog_restaurant_id = ?, updated_at = ? WHERE id = ?`),
		catalogID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("repository: failed to link partner restaurant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
