package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/export"
	"github.com/Dhoini/ekaty/internal/integration/places"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/Dhoini/ekaty/pkg/logger"
)

// Форматы файлов импорта
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

const maxReportErrors = 50

// PlacesClient операции Google Places
type PlacesClient interface {
	TextSearch(ctx context.Context, query string, maxPages int) ([]places.Place, error)
	Details(ctx context.Context, placeID string) (*places.Place, error)
}

// ImportService наполнение каталога из Google Places и файлов
type ImportService interface {
	// ImportPlaces ищет рестораны в Places и создает или обновляет их по place id
	ImportPlaces(ctx context.Context, query string, maxPages int) (*domain.ImportReport, error)
	// SyncPlaces обновляет данные всех ресторанов, у которых есть place id
	SyncPlaces(ctx context.Context) (*domain.ImportReport, error)
	// ImportFile загружает рестораны из JSON массива или CSV с заголовком
	ImportFile(ctx context.Context, r io.Reader, format string) (*domain.ImportReport, error)
}

type importService struct {
	places PlacesClient
	repo   repository.RestaurantRepository
	log    *logger.Logger
}

// NewImportService создает сервис импорта. places может быть nil, если ключ API не задан.
func NewImportService(placesClient PlacesClient, repo repository.RestaurantRepository, log *logger.Logger) ImportService {
	return &importService{places: placesClient, repo: repo, log: log}
}

func addError(report *domain.ImportReport, format string, args ...any) {
	report.Failed++
	if len(report.Errors) < maxReportErrors {
		report.Errors = append(report.Errors, fmt.Sprintf(format, args...))
	}
}

func (s *importService) ImportPlaces(ctx context.Context, query string, maxPages int) (*domain.ImportReport, error) {
	if s.places == nil {
		return nil, fmt.Errorf("%w: google places", domain.ErrNotConfigured)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", domain.ErrInvalidInput)
	}
	found, err := s.places.TextSearch(ctx, query, maxPages)
	if err != nil {
		return nil, fmt.Errorf("places text search: %w", err)
	}

	report := &domain.ImportReport{}
	for _, p := range found {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if p.PlaceID == "" || p.Closed() {
			report.Skipped++
			continue
		}
		created, err := s.upsertPlace(ctx, p)
		if err != nil {
			addError(report, "%s: %v", p.Name, err)
			continue
		}
		if created {
			report.Created++
		} else {
			report.Updated++
		}
	}
	s.log.Infow("Places import finished",
		"query", query,
		"found", len(found),
		"created", report.Created,
		"updated", report.Updated,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
	return report, nil
}

// upsertPlace создает ресторан по данным Places или обновляет существующий
func (s *importService) upsertPlace(ctx context.Context, p places.Place) (bool, error) {
	existing, err := s.repo.GetByPlaceID(ctx, p.PlaceID)
	switch {
	case err == nil:
		places.ApplyToRestaurant(p, existing)
		if err := s.repo.Update(ctx, existing); err != nil {
			return false, err
		}
		return false, nil
	case !errors.Is(err, repository.ErrNotFound):
		return false, err
	}

	rest := &domain.Restaurant{Active: true, Tier: domain.TierFree}
	places.ApplyToRestaurant(p, rest)
	if err := rest.Validate(); err != nil {
		return false, err
	}
	slug, err := uniqueSlug(ctx, domain.Slugify(rest.Name), s.repo.SlugExists)
	if err != nil {
		return false, err
	}
	rest.Slug = slug
	if err := s.repo.Create(ctx, rest); err != nil {
		return false, err
	}
	return true, nil
}

func (s *importService) SyncPlaces(ctx context.Context) (*domain.ImportReport, error) {
	if s.places == nil {
		return nil, fmt.Errorf("%w: google places", domain.ErrNotConfigured)
	}
	rests, _, err := s.repo.Search(ctx, domain.RestaurantFilter{HasPlaceIDOnly: true, IncludeHidden: true, Sort: domain.SortName})
	if err != nil {
		return nil, fmt.Errorf("list restaurants: %w", err)
	}

	report := &domain.ImportReport{}
	for i := range rests {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		rest := &rests[i]
		p, err := s.places.Details(ctx, rest.GooglePlaceID)
		if err != nil {
			addError(report, "%s: %v", rest.Name, err)
			continue
		}
		if p.Closed() {
			if rest.Active {
				rest.Active = false
				if err := s.repo.Update(ctx, rest); err != nil {
					addError(report, "%s: %v", rest.Name, err)
					continue
				}
				report.Updated++
				s.log.Infow("Restaurant closed permanently, hiding", "restaurantID", rest.ID)
				continue
			}
			report.Skipped++
			continue
		}
		places.ApplyToRestaurant(*p, rest)
		if err := s.repo.Update(ctx, rest); err != nil {
			addError(report, "%s: %v", rest.Name, err)
			continue
		}
		report.Updated++
	}
	s.log.Infow("Places sync finished", "checked", len(rests), "updated", report.Updated, "failed", report.Failed)
	return report, nil
}

// importRecord ресторан в файле импорта
type importRecord struct {
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	Cuisine       string  `json:"cuisine"`
	Address       string  `json:"address"`
	City          string  `json:"city"`
	State         string  `json:"state"`
	Zip           string  `json:"zip"`
	Phone         string  `json:"phone"`
	Website       string  `json:"website"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	PriceLevel    int     `json:"price_level"`
	Rating        float64 `json:"rating"`
	GooglePlaceID string  `json:"google_place_id"`
	ImageURL      string  `json:"image_url"`
}

func (rec importRecord) input() domain.RestaurantInput {
	in := domain.RestaurantInput{
		Name:        &rec.Name,
		Description: &rec.Description,
		Cuisine:     &rec.Cuisine,
		Address:     &rec.Address,
		City:        &rec.City,
		State:       &rec.State,
		Zip:         &rec.Zip,
		Phone:       &rec.Phone,
		Website:     &rec.Website,
		Latitude:    &rec.Latitude,
		Longitude:   &rec.Longitude,
		PriceLevel:  &rec.PriceLevel,
		Rating:      &rec.Rating,
		ImageURL:    &rec.ImageURL,
	}
	if rec.GooglePlaceID != "" {
		in.GooglePlaceID = &rec.GooglePlaceID
	}
	return in
}

func (s *importService) ImportFile(ctx context.Context, r io.Reader, format string) (*domain.ImportReport, error) {
	var (
		records []importRecord
		err     error
	)
	switch strings.ToLower(format) {
	case FormatJSON:
		err = json.NewDecoder(r).Decode(&records)
	case FormatCSV:
		records, err = readCSVRecords(r)
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", domain.ErrInvalidInput, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrInvalidInput, format, err)
	}

	report := &domain.ImportReport{}
	for i, rec := range records {
		if strings.TrimSpace(rec.Name) == "" {
			report.Skipped++
			continue
		}
		created, err := s.upsertRecord(ctx, rec)
		if err != nil {
			addError(report, "record %d (%s): %v", i+1, rec.Name, err)
			continue
		}
		if created {
			report.Created++
		} else {
			report.Updated++
		}
	}
	s.log.Infow("Restaurant file imported",
		"format", format,
		"records", len(records),
		"created", report.Created,
		"updated", report.Updated,
		"failed", report.Failed,
	)
	return report, nil
}

// upsertRecord обновляет ресторан с тем же place id или slug, иначе создает новый
func (s *importService) upsertRecord(ctx context.Context, rec importRecord) (bool, error) {
	var existing *domain.Restaurant
	if rec.GooglePlaceID != "" {
		r, err := s.repo.GetByPlaceID(ctx, rec.GooglePlaceID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return false, err
		}
		existing = r
	}
	if existing == nil {
		r, err := s.repo.GetBySlug(ctx, domain.Slugify(rec.Name))
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return false, err
		}
		existing = r
	}

	if existing != nil {
		rec.input().Apply(existing)
		if err := existing.Validate(); err != nil {
			return false, err
		}
		return false, s.repo.Update(ctx, existing)
	}

	rest := &domain.Restaurant{Active: true, Tier: domain.TierFree}
	rec.input().Apply(rest)
	if err := rest.Validate(); err != nil {
		return false, err
	}
	slug, err := uniqueSlug(ctx, domain.Slugify(rest.Name), s.repo.SlugExists)
	if err != nil {
		return false, err
	}
	rest.Slug = slug
	return true, s.repo.Create(ctx, rest)
}

func readCSVRecords(r io.Reader) ([]importRecord, error) {
	rows, err := export.ReadCSV(r)
	if err != nil {
		return nil, err
	}
	out := make([]importRecord, 0, len(rows))
	for i, raw := range rows {
		row := normalizeCSVRow(raw)
		rec := importRecord{
			Name:          csvField(row, "name"),
			Description:   csvField(row, "description"),
			Cuisine:       csvField(row, "cuisine"),
			Address:       csvField(row, "address"),
			City:          csvField(row, "city"),
			State:         csvField(row, "state"),
			Zip:           csvField(row, "zip", "zip_code"),
			Phone:         csvField(row, "phone"),
			Website:       csvField(row, "website"),
			GooglePlaceID: csvField(row, "google_place_id", "place_id"),
			ImageURL:      csvField(row, "image_url"),
		}
		if rec.Latitude, err = parseFloatField(row, "latitude", "lat"); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if rec.Longitude, err = parseFloatField(row, "longitude", "lng"); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if rec.Rating, err = parseFloatField(row, "rating"); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		price, err := parseFloatField(row, "price_level")
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		rec.PriceLevel = int(price)
		out = append(out, rec)
	}
	return out, nil
}

func parseFloatField(row map[string]string, names ...string) (float64, error) {
	v := csvField(row, names...)
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", names[0], v)
	}
	return f, nil
}
