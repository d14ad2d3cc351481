package handlers

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/service"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/Dhoini/ekaty/pkg/res"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OutreachHandler лиды и кампании рассылки
type OutreachHandler struct {
	svc service.OutreachService
	log *logger.Logger
}

// NewOutreachHandler создает обработчик рассылок
func NewOutreachHandler(svc service.OutreachService, log *logger.Logger) *OutreachHandler {
	return &OutreachHandler{svc: svc, log: log}
}

func leadStatusQuery(c *gin.Context) (domain.LeadStatus, bool) {
	raw := c.Query("status")
	if raw == "" {
		return "", true
	}
	status, err := domain.ParseLeadStatus(raw)
	if err != nil {
		badRequest(c, "unknown status")
		return "", false
	}
	return status, true
}

// ListLeads GET /api/admin/leads?status=
func (h *OutreachHandler) ListLeads(c *gin.Context) {
	status, ok := leadStatusQuery(c)
	if !ok {
		return
	}
	limit, offset := paging(c)
	items, total, err := h.svc.ListLeads(c.Request.Context(), domain.LeadFilter{Status: status, Limit: limit, Offset: offset})
	if err != nil {
		respondError(c, h.log, err, "list leads")
		return
	}
	c.JSON(http.StatusOK, res.NewListResponse(items, total, limit, offset))
}

// CreateLead POST /api/admin/leads
func (h *OutreachHandler) CreateLead(c *gin.Context) {
	var in domain.LeadInput
	if !bindJSON(c, h.log, &in) {
		return
	}
	lead, err := h.svc.CreateLead(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.log, err, "create lead")
		return
	}
	c.JSON(http.StatusCreated, lead)
}

// UpdateLead PUT /api/admin/leads/:id
func (h *OutreachHandler) UpdateLead(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var in domain.LeadInput
	if !bindJSON(c, h.log, &in) {
		return
	}
	lead, err := h.svc.UpdateLead(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, h.log, err, "update lead")
		return
	}
	c.JSON(http.StatusOK, lead)
}

// uploadBody возвращает файл из multipart-поля file или тело запроса целиком
func uploadBody(c *gin.Context) (io.Reader, func(), bool) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			badRequest(c, "file field is required")
			return nil, nil, false
		}
		if fh.Size > maxUploadBytes {
			badRequest(c, "file is too large")
			return nil, nil, false
		}
		f, err := fh.Open()
		if err != nil {
			badRequest(c, "failed to open upload")
			return nil, nil, false
		}
		return f, func() { f.Close() }, true
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxUploadBytes+1))
	if err != nil {
		badRequest(c, "failed to read body")
		return nil, nil, false
	}
	if len(body) > maxUploadBytes {
		badRequest(c, "file is too large")
		return nil, nil, false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		badRequest(c, "body is empty")
		return nil, nil, false
	}
	return bytes.NewReader(body), func() {}, true
}

// ImportLeads POST /api/admin/leads/import?source=
func (h *OutreachHandler) ImportLeads(c *gin.Context) {
	r, done, ok := uploadBody(c)
	if !ok {
		return
	}
	defer done()
	report, err := h.svc.ImportLeads(c.Request.Context(), r, c.DefaultQuery("source", "csv"))
	if err != nil {
		respondError(c, h.log, err, "import leads")
		return
	}
	c.JSON(http.StatusOK, report)
}

// ExportLeads GET /api/admin/leads/export?status=
func (h *OutreachHandler) ExportLeads(c *gin.Context) {
	status, ok := leadStatusQuery(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.svc.ExportLeads(c.Request.Context(), &buf, status); err != nil {
		respondError(c, h.log, err, "export leads")
		return
	}
	csvAttachment(c, "leads.csv")
	c.Writer.Write(buf.Bytes())
}

// ListCampaigns GET /api/admin/campaigns
func (h *OutreachHandler) ListCampaigns(c *gin.Context) {
	limit, offset := paging(c)
	items, total, err := h.svc.ListCampaigns(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, h.log, err, "list campaigns")
		return
	}
	c.JSON(http.StatusOK, res.NewListResponse(items, total, limit, offset))
}

// GetCampaign GET /api/admin/campaigns/:id
func (h *OutreachHandler) GetCampaign(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	campaign, err := h.svc.GetCampaign(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err, "get campaign")
		return
	}
	c.JSON(http.StatusOK, campaign)
}

// CreateCampaign POST /api/admin/campaigns
func (h *OutreachHandler) CreateCampaign(c *gin.Context) {
	var in domain.CampaignInput
	if !bindJSON(c, h.log, &in) {
		return
	}
	campaign, err := h.svc.CreateCampaign(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.log, err, "create campaign")
		return
	}
	c.JSON(http.StatusCreated, campaign)
}

// Preview GET /api/admin/campaigns/:id/preview?lead_id=
func (h *OutreachHandler) Preview(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	leadID, err := uuid.Parse(c.Query("lead_id"))
	if err != nil {
		badRequest(c, "invalid lead_id")
		return
	}
	preview, err := h.svc.Preview(c.Request.Context(), id, leadID)
	if err != nil {
		respondError(c, h.log, err, "preview campaign")
		return
	}
	c.JSON(http.StatusOK, preview)
}

// Send POST /api/admin/campaigns/:id/send
func (h *OutreachHandler) Send(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	report, err := h.svc.Send(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err, "send campaign")
		return
	}
	c.JSON(http.StatusOK, report)
}

// Messages GET /api/admin/campaigns/:id/messages
func (h *OutreachHandler) Messages(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	items, err := h.svc.Messages(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err, "list messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// ExportMessages GET /api/admin/campaigns/:id/messages/export
func (h *OutreachHandler) ExportMessages(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.svc.ExportMessages(c.Request.Context(), &buf, id); err != nil {
		respondError(c, h.log, err, "export messages")
		return
	}
	csvAttachment(c, "campaign-"+id.String()+".csv")
	c.Writer.Write(buf.Bytes())
}
