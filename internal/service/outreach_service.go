package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Dhoini/ekaty/internal/config"
	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/email"
	"github.com/Dhoini/ekaty/internal/export"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/Dhoini/ekaty/internal/templating"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSendConcurrency = 5
	outreachTag            = "outreach"
)

var leadCSVHeaders = []string{
	"id", "restaurant_name", "contact_name", "email", "phone", "city", "cuisine",
	"status", "source", "notes", "last_contacted_at", "created_at",
}

var messageCSVHeaders = []string{"lead_id", "recipient", "body", "status", "created_at"}

// OutreachService лиды и рассылки по ним
type OutreachService interface {
	ListLeads(ctx context.Context, filter domain.LeadFilter) ([]domain.Lead, int, error)
	CreateLead(ctx context.Context, in domain.LeadInput) (*domain.Lead, error)
	UpdateLead(ctx context.Context, id uuid.UUID, in domain.LeadInput) (*domain.Lead, error)
	// ImportLeads загружает лидов из CSV с заголовком
	ImportLeads(ctx context.Context, r io.Reader, source string) (*domain.ImportReport, error)
	ExportLeads(ctx context.Context, w io.Writer, status domain.LeadStatus) error

	ListCampaigns(ctx context.Context, limit, offset int) ([]domain.OutreachCampaign, int, error)
	GetCampaign(ctx context.Context, id uuid.UUID) (*domain.OutreachCampaign, error)
	CreateCampaign(ctx context.Context, in domain.CampaignInput) (*domain.OutreachCampaign, error)
	Preview(ctx context.Context, campaignID, leadID uuid.UUID) (*domain.CampaignPreview, error)
	// Send отправляет письма или готовит SMS-черновики для целевых лидов
	Send(ctx context.Context, campaignID uuid.UUID) (*domain.CampaignReport, error)
	Messages(ctx context.Context, campaignID uuid.UUID) ([]domain.OutreachMessage, error)
	// ExportMessages выгружает сообщения кампании в CSV
	ExportMessages(ctx context.Context, w io.Writer, campaignID uuid.UUID) error
}

type outreachService struct {
	leads       repository.LeadRepository
	campaigns   repository.CampaignRepository
	sender      email.Sender
	siteURL     string
	senderName  string
	concurrency int
	now         func() time.Time
	log         *logger.Logger
}

// NewOutreachService создает сервис рассылок. sender может быть nil, тогда
// кампании по email не отправляются.
func NewOutreachService(
	leads repository.LeadRepository,
	campaigns repository.CampaignRepository,
	sender email.Sender,
	app config.AppConfig,
	emailCfg config.EmailConfig,
	log *logger.Logger,
) OutreachService {
	return &outreachService{
		leads:       leads,
		campaigns:   campaigns,
		sender:      sender,
		siteURL:     strings.TrimRight(app.PublicURL, "/"),
		senderName:  emailCfg.SenderName,
		concurrency: defaultSendConcurrency,
		now:         time.Now,
		log:         log,
	}
}

func (s *outreachService) ListLeads(ctx context.Context, filter domain.LeadFilter) ([]domain.Lead, int, error) {
	if filter.Limit <= 0 || filter.Limit > maxSearchLimit {
		filter.Limit = defaultSearchLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.leads.List(ctx, filter)
}

func leadFromInput(lead *domain.Lead, in domain.LeadInput) error {
	var errs domain.ValidationErrors
	name := strings.TrimSpace(in.RestaurantName)
	if name == "" {
		errs.Add("restaurant_name", "is required")
	}
	addr := ""
	if strings.TrimSpace(in.Email) != "" {
		var err error
		if addr, err = domain.NormalizeEmail(in.Email); err != nil {
			errs.Add("email", "is invalid")
		}
	}
	status := domain.LeadStatusNew
	if strings.TrimSpace(in.Status) != "" {
		var err error
		if status, err = domain.ParseLeadStatus(in.Status); err != nil {
			errs.Add("status", "is unknown")
		}
	} else if lead.Status != "" {
		status = lead.Status
	}
	if err := errs.Err(); err != nil {
		return err
	}

	lead.RestaurantName = name
	lead.ContactName = strings.TrimSpace(in.ContactName)
	lead.Email = addr
	lead.Phone = strings.TrimSpace(in.Phone)
	lead.City = strings.TrimSpace(in.City)
	lead.Cuisine = strings.TrimSpace(in.Cuisine)
	lead.Status = status
	lead.Source = strings.TrimSpace(in.Source)
	lead.Notes = strings.TrimSpace(in.Notes)
	return nil
}

func (s *outreachService) CreateLead(ctx context.Context, in domain.LeadInput) (*domain.Lead, error) {
	lead := &domain.Lead{}
	if err := leadFromInput(lead, in); err != nil {
		return nil, err
	}
	if lead.Source == "" {
		lead.Source = "manual"
	}
	if err := s.leads.Create(ctx, lead); err != nil {
		return nil, fmt.Errorf("create lead: %w", err)
	}
	return lead, nil
}

func (s *outreachService) UpdateLead(ctx context.Context, id uuid.UUID, in domain.LeadInput) (*domain.Lead, error) {
	lead, err := s.leads.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := leadFromInput(lead, in); err != nil {
		return nil, err
	}
	if err := s.leads.Update(ctx, lead); err != nil {
		return nil, fmt.Errorf("update lead: %w", err)
	}
	return lead, nil
}

// csvField берет значение по первому найденному варианту заголовка
func csvField(row map[string]string, names ...string) string {
	for _, n := range names {
		if v, ok := row[n]; ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func normalizeCSVRow(row map[string]string) map[string]string {
	out := make(map[string]string, len(row))
	for k, v := range row {
		key := strings.ToLower(strings.TrimSpace(k))
		key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
		out[key] = v
	}
	return out
}

func (s *outreachService) ImportLeads(ctx context.Context, r io.Reader, source string) (*domain.ImportReport, error) {
	rows, err := export.ReadCSV(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if source == "" {
		source = "csv"
	}

	report := &domain.ImportReport{}
	for i, raw := range rows {
		row := normalizeCSVRow(raw)
		in := domain.LeadInput{
			RestaurantName: csvField(row, "restaurant_name", "restaurant", "name", "business_name"),
			ContactName:    csvField(row, "contact_name", "contact", "owner"),
			Email:          csvField(row, "email", "email_address"),
			Phone:          csvField(row, "phone", "phone_number"),
			City:           csvField(row, "city"),
			Cuisine:        csvField(row, "cuisine", "category"),
			Status:         csvField(row, "status"),
			Source:         source,
			Notes:          csvField(row, "notes"),
		}
		if in.RestaurantName == "" {
			report.Skipped++
			continue
		}
		lead := &domain.Lead{}
		if err := leadFromInput(lead, in); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("row %d: %v", i+2, err))
			continue
		}
		if err := s.leads.Create(ctx, lead); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("row %d: %v", i+2, err))
			continue
		}
		report.Created++
	}
	s.log.Infow("Leads imported", "created", report.Created, "skipped", report.Skipped, "failed", report.Failed)
	return report, nil
}

func (s *outreachService) ExportLeads(ctx context.Context, w io.Writer, status domain.LeadStatus) error {
	leads, _, err := s.leads.List(ctx, domain.LeadFilter{Status: status})
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(leads))
	for _, l := range leads {
		contacted := ""
		if l.LastContactedAt != nil {
			contacted = l.LastContactedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []string{
			l.ID.String(), l.RestaurantName, l.ContactName, l.Email, l.Phone, l.City, l.Cuisine,
			string(l.Status), l.Source, l.Notes, contacted, l.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return export.WriteCSV(w, leadCSVHeaders, rows)
}

func (s *outreachService) ListCampaigns(ctx context.Context, limit, offset int) ([]domain.OutreachCampaign, int, error) {
	if limit <= 0 || limit > maxSearchLimit {
		limit = defaultSearchLimit
	}
	return s.campaigns.List(ctx, limit, offset)
}

func (s *outreachService) GetCampaign(ctx context.Context, id uuid.UUID) (*domain.OutreachCampaign, error) {
	return s.campaigns.GetByID(ctx, id)
}

func (s *outreachService) CreateCampaign(ctx context.Context, in domain.CampaignInput) (*domain.OutreachCampaign, error) {
	var errs domain.ValidationErrors
	channel := domain.Channel(strings.ToLower(strings.TrimSpace(in.Channel)))
	if channel != domain.ChannelEmail && channel != domain.ChannelSMS {
		errs.Add("channel", "must be email or sms")
	}
	if strings.TrimSpace(in.Name) == "" {
		errs.Add("name", "is required")
	}
	if strings.TrimSpace(in.Template) == "" {
		errs.Add("template", "is required")
	}
	if channel == domain.ChannelEmail && strings.TrimSpace(in.Subject) == "" {
		errs.Add("subject", "is required for email campaigns")
	}
	target := domain.LeadStatusNew
	if strings.TrimSpace(in.TargetStatus) != "" {
		var err error
		if target, err = domain.ParseLeadStatus(in.TargetStatus); err != nil || target == domain.LeadStatusUnsubscribed {
			errs.Add("target_status", "is invalid")
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	c := &domain.OutreachCampaign{
		Name:         strings.TrimSpace(in.Name),
		Channel:      channel,
		Subject:      strings.TrimSpace(in.Subject),
		Template:     in.Template,
		TargetStatus: target,
		Status:       domain.CampaignStatusDraft,
	}
	if err := s.campaigns.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}
	s.log.Infow("Campaign created", "campaignID", c.ID, "channel", c.Channel)
	return c, nil
}

// variables значения для подстановки в шаблон кампании
func (s *outreachService) variables(lead *domain.Lead) map[string]string {
	return map[string]string{
		"restaurant_name": lead.RestaurantName,
		"contact_name":    firstNonEmpty(lead.ContactName, "there"),
		"first_name":      firstNonEmpty(lead.FirstName(), "there"),
		"city":            firstNonEmpty(lead.City, "Katy"),
		"cuisine":         lead.Cuisine,
		"sender_name":     s.senderName,
		"site_url":        s.siteURL,
		"unsubscribe_url": s.siteURL + "/unsubscribe?lead=" + lead.ID.String(),
	}
}

func (s *outreachService) recipient(c *domain.OutreachCampaign, lead *domain.Lead) string {
	if c.Channel == domain.ChannelSMS {
		return lead.Phone
	}
	return lead.Email
}

func (s *outreachService) Preview(ctx context.Context, campaignID, leadID uuid.UUID) (*domain.CampaignPreview, error) {
	c, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	lead, err := s.leads.GetByID(ctx, leadID)
	if err != nil {
		return nil, err
	}
	vars := s.variables(lead)
	preview := &domain.CampaignPreview{
		LeadID:    lead.ID,
		Recipient: s.recipient(c, lead),
		Subject:   templating.RenderText(c.Subject, vars),
	}
	if c.Channel == domain.ChannelEmail {
		preview.Body = templating.RenderHTML(c.Template, vars)
	} else {
		preview.Body = templating.RenderText(c.Template, vars)
	}
	return preview, nil
}

func (s *outreachService) Send(ctx context.Context, campaignID uuid.UUID) (*domain.CampaignReport, error) {
	c, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status == domain.CampaignStatusSending {
		return nil, fmt.Errorf("%w: campaign is already sending", domain.ErrInvalidOperation)
	}
	if c.Channel == domain.ChannelEmail && s.sender == nil {
		return nil, fmt.Errorf("%w: email sender", domain.ErrNotConfigured)
	}

	leads, _, err := s.leads.List(ctx, domain.LeadFilter{Status: c.TargetStatus})
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}

	reached, err := s.reachedLeads(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	report := &domain.CampaignReport{CampaignID: c.ID}
	var targets []domain.Lead
	for _, l := range leads {
		if l.Status == domain.LeadStatusUnsubscribed || s.recipient(c, &l) == "" || reached[l.ID] {
			report.Skipped++
			continue
		}
		targets = append(targets, l)
	}
	report.Targeted = len(targets)

	c.Status = domain.CampaignStatusSending
	if err := s.campaigns.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("update campaign: %w", err)
	}

	if c.Channel == domain.ChannelSMS {
		err = s.draftSMS(ctx, c, targets, report)
	} else {
		err = s.sendEmails(ctx, c, targets, report)
	}
	if err != nil {
		// Кампания возвращается в draft с учетом уже отправленного; повтор пропустит этих лидов
		c.Status = domain.CampaignStatusDraft
		c.SentCount += report.Sent + report.Drafted
		c.FailedCount += report.Failed
		if uerr := s.campaigns.Update(context.WithoutCancel(ctx), c); uerr != nil {
			s.log.Errorw("Failed to reset campaign status", "campaignID", c.ID, "error", uerr)
		}
		return nil, err
	}

	now := s.now().UTC()
	c.Status = domain.CampaignStatusSent
	c.SentCount += report.Sent + report.Drafted
	c.FailedCount += report.Failed
	c.SentAt = &now
	if err := s.campaigns.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("update campaign: %w", err)
	}
	s.log.Infow("Campaign finished",
		"campaignID", c.ID,
		"channel", c.Channel,
		"targeted", report.Targeted,
		"sent", report.Sent,
		"drafted", report.Drafted,
		"failed", report.Failed,
		"skipped", report.Skipped,
	)
	return report, nil
}

// reachedLeads лиды, которым кампания уже отправила письмо или подготовила SMS
func (s *outreachService) reachedLeads(ctx context.Context, campaignID uuid.UUID) (map[uuid.UUID]bool, error) {
	msgs, err := s.campaigns.ListMessages(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list campaign messages: %w", err)
	}
	reached := make(map[uuid.UUID]bool, len(msgs))
	for _, m := range msgs {
		if m.Status == domain.MessageStatusSent || m.Status == domain.MessageStatusDraft {
			reached[m.LeadID] = true
		}
	}
	return reached, nil
}

func (s *outreachService) draftSMS(ctx context.Context, c *domain.OutreachCampaign, targets []domain.Lead, report *domain.CampaignReport) error {
	for i := range targets {
		lead := &targets[i]
		msg := &domain.OutreachMessage{
			CampaignID: c.ID,
			LeadID:     lead.ID,
			Channel:    domain.ChannelSMS,
			Recipient:  lead.Phone,
			Body:       templating.RenderText(c.Template, s.variables(lead)),
			Status:     domain.MessageStatusDraft,
		}
		if err := s.campaigns.SaveMessage(ctx, msg); err != nil {
			return fmt.Errorf("save sms draft: %w", err)
		}
		report.Drafted++
	}
	return nil
}

// sendEmails сохраняет сообщение до отправки и дописывает итог после нее.
// Лид без сохраненного сообщения не получает письмо, а лид с сообщением пропускается при повторе.
func (s *outreachService) sendEmails(ctx context.Context, c *domain.OutreachCampaign, targets []domain.Lead, report *domain.CampaignReport) error {
	var (
		mu        sync.Mutex
		contacted []uuid.UUID
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i := range targets {
		lead := targets[i]
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			vars := s.variables(&lead)
			msg := &domain.OutreachMessage{
				CampaignID: c.ID,
				LeadID:     lead.ID,
				Channel:    domain.ChannelEmail,
				Recipient:  lead.Email,
				Subject:    templating.RenderText(c.Subject, vars),
				Body:       templating.RenderHTML(c.Template, vars),
				Status:     domain.MessageStatusDraft,
			}
			if err := s.campaigns.SaveMessage(gctx, msg); err != nil {
				return fmt.Errorf("save outreach message: %w", err)
			}

			sendErr := s.sender.Send(gctx, email.Message{
				To:      lead.Email,
				Subject: msg.Subject,
				HTML:    msg.Body,
				Text:    templating.RenderText(c.Template, vars),
				Tag:     outreachTag,
			})
			mu.Lock()
			if sendErr != nil {
				msg.Status = domain.MessageStatusFailed
				msg.Error = sendErr.Error()
				report.Failed++
			} else {
				now := s.now().UTC()
				msg.Status = domain.MessageStatusSent
				msg.SentAt = &now
				report.Sent++
				contacted = append(contacted, lead.ID)
			}
			mu.Unlock()
			if sendErr != nil {
				s.log.Warnw("Outreach email failed", "campaignID", c.ID, "leadID", lead.ID, "error", sendErr)
			}

			if err := s.campaigns.UpdateMessage(context.WithoutCancel(gctx), msg); err != nil {
				return fmt.Errorf("update outreach message: %w", err)
			}
			return nil
		})
	}
	sendErr := g.Wait()

	// Отправленные письма фиксируются и при частичном сбое
	if len(contacted) == 0 {
		return sendErr
	}
	if err := s.leads.MarkContacted(context.WithoutCancel(ctx), contacted, s.now().UTC()); err != nil {
		return errors.Join(sendErr, fmt.Errorf("mark leads contacted: %w", err))
	}
	return sendErr
}

func (s *outreachService) Messages(ctx context.Context, campaignID uuid.UUID) ([]domain.OutreachMessage, error) {
	if _, err := s.campaigns.GetByID(ctx, campaignID); err != nil {
		return nil, err
	}
	msgs, err := s.campaigns.ListMessages(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []domain.OutreachMessage{}
	}
	return msgs, nil
}

func (s *outreachService) ExportMessages(ctx context.Context, w io.Writer, campaignID uuid.UUID) error {
	msgs, err := s.Messages(ctx, campaignID)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(msgs))
	for _, m := range msgs {
		rows = append(rows, []string{
			m.LeadID.String(), m.Recipient, m.Body, string(m.Status), m.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return export.WriteCSV(w, messageCSVHeaders, rows)
}
