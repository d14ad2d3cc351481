package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/Dhoini/ekaty/internal/config"
	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/email"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/Dhoini/ekaty/internal/repository/memory"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bouncingSender отклоняет письма на адреса из bounce
type bouncingSender struct {
	mu     sync.Mutex
	bounce map[string]bool
	sent   []email.Message
}

func (b *bouncingSender) Send(_ context.Context, msg email.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bounce[msg.To] {
		return errors.New("mailbox unavailable")
	}
	b.sent = append(b.sent, msg)
	return nil
}

func (b *bouncingSender) Provider() string { return "test" }

// failingMessages отказывает в сохранении сообщений для лида failFor
type failingMessages struct {
	repository.CampaignRepository
	failFor uuid.UUID
}

func (f *failingMessages) SaveMessage(ctx context.Context, m *domain.OutreachMessage) error {
	if m.LeadID == f.failFor {
		return errors.New("disk I/O error")
	}
	return f.CampaignRepository.SaveMessage(ctx, m)
}

func newOutreachService(store *memory.Store, sender email.Sender) OutreachService {
	return NewOutreachService(store.Leads(), store.Campaigns(), sender,
		config.AppConfig{PublicURL: "https://ekaty.com/"},
		config.EmailConfig{SenderName: "Dana"},
		logger.NewNop())
}

const leadsCSV = `Restaurant Name,Contact Name,Email,Phone,City
Pho Saigon,Linh Tran,linh@phosaigon.com,281-555-0101,Katy
Taco Loco,,tacos@example.com,,
Brisket Barn,Bob,not-an-email,281-555-0103,Fulshear
,Nobody,nobody@example.com,,
`

func TestOutreachService_ImportAndExportLeads(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := newOutreachService(store, nil)

	report, err := svc.ImportLeads(ctx, strings.NewReader(leadsCSV), "")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "row 4")

	leads, total, err := svc.ListLeads(ctx, domain.LeadFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, l := range leads {
		assert.Equal(t, "csv", l.Source)
		assert.Equal(t, domain.LeadStatusNew, l.Status)
	}

	var buf bytes.Buffer
	require.NoError(t, svc.ExportLeads(ctx, &buf, domain.LeadStatusNew))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "id,restaurant_name,contact_name"))
	assert.Contains(t, buf.String(), "linh@phosaigon.com")
}

func TestOutreachService_SendEmailCampaign(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	sender := &bouncingSender{bounce: map[string]bool{"bounce@example.com": true}}
	svc := newOutreachService(store, sender)

	linh, err := svc.CreateLead(ctx, domain.LeadInput{RestaurantName: "Pho Saigon", ContactName: "Linh Tran", Email: "linh@phosaigon.com"})
	require.NoError(t, err)
	_, err = svc.CreateLead(ctx, domain.LeadInput{RestaurantName: "Bounce Grill", Email: "bounce@example.com"})
	require.NoError(t, err)
	_, err = svc.CreateLead(ctx, domain.LeadInput{RestaurantName: "No Email Cafe", Phone: "281-555-0199"})
	require.NoError(t, err)
	_, err = svc.CreateLead(ctx, domain.LeadInput{RestaurantName: "Opted Out", Email: "out@example.com", Status: "unsubscribed"})
	require.NoError(t, err)

	_, err = svc.CreateCampaign(ctx, domain.CampaignInput{Name: "Launch", Channel: "email", Template: "Hi"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "email campaigns need a subject")

	c, err := svc.CreateCampaign(ctx, domain.CampaignInput{
		Name:     "Launch",
		Channel:  "email",
		Subject:  "{{restaurant_name}} on eKaty",
		Template: "<p>Hi {{first_name}}, list {{restaurant_name}} at {{site_url}}. <a href=\"{{unsubscribe_url}}\">Unsubscribe</a></p>",
	})
	require.NoError(t, err)

	preview, err := svc.Preview(ctx, c.ID, linh.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pho Saigon on eKaty", preview.Subject)
	assert.Contains(t, preview.Body, "Hi Linh, list Pho Saigon at https://ekaty.com.")
	assert.Contains(t, preview.Body, "https://ekaty.com/unsubscribe?lead="+linh.ID.String())

	report, err := svc.Send(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Targeted)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Skipped, "lead without email")

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "linh@phosaigon.com", sender.sent[0].To)
	assert.Equal(t, outreachTag, sender.sent[0].Tag)

	got, err := store.Leads().GetByID(ctx, linh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LeadStatusContacted, got.Status)
	assert.NotNil(t, got.LastContactedAt)

	saved, err := svc.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignStatusSent, saved.Status)
	assert.Equal(t, 1, saved.SentCount)
	assert.Equal(t, 1, saved.FailedCount)

	msgs, err := svc.Messages(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestOutreachService_SMSDrafts(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := newOutreachService(store, nil)

	_, err := svc.CreateLead(ctx, domain.LeadInput{RestaurantName: "Pho Saigon", Phone: "281-555-0101"})
	require.NoError(t, err)
	_, err = svc.CreateLead(ctx, domain.LeadInput{RestaurantName: "Email Only", Email: "only@example.com"})
	require.NoError(t, err)

	c, err := svc.CreateCampaign(ctx, domain.CampaignInput{
		Name:     "Texts",
		Channel:  "SMS",
		Template: "Hi {{first_name}}! {{restaurant_name}} & friends in {{city}}",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelSMS, c.Channel)

	report, err := svc.Send(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Drafted)
	assert.Equal(t, 1, report.Skipped)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportMessages(ctx, &buf, c.ID))
	out := buf.String()
	assert.Contains(t, out, "281-555-0101")
	assert.Contains(t, out, "Hi there! Pho Saigon & friends in Katy")
	assert.Contains(t, out, string(domain.MessageStatusDraft))
}

func TestOutreachService_EmailWithoutSender(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := newOutreachService(store, nil)

	c, err := svc.CreateCampaign(ctx, domain.CampaignInput{Name: "Launch", Channel: "email", Subject: "Hi", Template: "Hi"})
	require.NoError(t, err)
	_, err = svc.Send(ctx, c.ID)
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestOutreachService_PartialFailureDoesNotResend(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	sender := &bouncingSender{}
	campaigns := &failingMessages{CampaignRepository: store.Campaigns()}
	svc := NewOutreachService(store.Leads(), campaigns, sender,
		config.AppConfig{PublicURL: "https://ekaty.com/"}, config.EmailConfig{SenderName: "Dana"}, logger.NewNop())
	svc.(*outreachService).concurrency = 1

	first, err := svc.CreateLead(ctx, domain.LeadInput{RestaurantName: "A Pho", Email: "a@example.com"})
	require.NoError(t, err)
	second, err := svc.CreateLead(ctx, domain.LeadInput{RestaurantName: "B Tacos", Email: "b@example.com"})
	require.NoError(t, err)
	campaigns.failFor = second.ID

	c, err := svc.CreateCampaign(ctx, domain.CampaignInput{Name: "Launch", Channel: "email", Subject: "Hi", Template: "<p>Hi</p>"})
	require.NoError(t, err)

	_, err = svc.Send(ctx, c.ID)
	require.Error(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "a@example.com", sender.sent[0].To)

	got, err := store.Leads().GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LeadStatusContacted, got.Status, "sent leads are marked even when the batch fails")

	saved, err := svc.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignStatusDraft, saved.Status)
	assert.Equal(t, 1, saved.SentCount)

	campaigns.failFor = uuid.Nil
	report, err := svc.Send(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Skipped, "the lead emailed by the first run")

	require.Len(t, sender.sent, 2)
	assert.Equal(t, "b@example.com", sender.sent[1].To)

	saved, err = svc.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignStatusSent, saved.Status)
	assert.Equal(t, 2, saved.SentCount)

	msgs, err := svc.Messages(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.Equal(t, domain.MessageStatusSent, m.Status)
	}
}
