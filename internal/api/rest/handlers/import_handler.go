package handlers

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/Dhoini/ekaty/internal/service"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/gin-gonic/gin"
)

const defaultPlacesPages = 3

// ImportHandler наполнение каталога
type ImportHandler struct {
	svc service.ImportService
	log *logger.Logger
}

// NewImportHandler создает обработчик импорта
func NewImportHandler(svc service.ImportService, log *logger.Logger) *ImportHandler {
	return &ImportHandler{svc: svc, log: log}
}

// importFormat берет формат из ?format=, затем из расширения файла, затем из Content-Type
func importFormat(c *gin.Context) string {
	if f := strings.ToLower(c.Query("format")); f != "" {
		return f
	}
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		if strings.Contains(c.ContentType(), "csv") {
			return service.FormatCSV
		}
		return service.FormatJSON
	}
	if fh, err := c.FormFile("file"); err == nil {
		if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fh.Filename)), "."); ext != "" {
			return ext
		}
	}
	return service.FormatJSON
}

// ImportFile POST /api/admin/restaurants/import?format=json|csv
func (h *ImportHandler) ImportFile(c *gin.Context) {
	format := importFormat(c)
	r, done, ok := uploadBody(c)
	if !ok {
		return
	}
	defer done()
	report, err := h.svc.ImportFile(c.Request.Context(), r, format)
	if err != nil {
		respondError(c, h.log, err, "import restaurants")
		return
	}
	c.JSON(http.StatusOK, report)
}

type placesImportRequest struct {
	Query    string `json:"query" binding:"required,max=200"`
	MaxPages int    `json:"max_pages" binding:"omitempty,min=1,max=3"`
}

// ImportPlaces POST /api/admin/places/import
func (h *ImportHandler) ImportPlaces(c *gin.Context) {
	var in placesImportRequest
	if !bindJSON(c, h.log, &in) {
		return
	}
	if in.MaxPages == 0 {
		in.MaxPages = defaultPlacesPages
	}
	report, err := h.svc.ImportPlaces(c.Request.Context(), in.Query, in.MaxPages)
	if err != nil {
		respondError(c, h.log, err, "import places")
		return
	}
	c.JSON(http.StatusOK, report)
}

// SyncPlaces POST /api/admin/places/sync
func (h *ImportHandler) SyncPlaces(c *gin.Context) {
	report, err := h.svc.SyncPlaces(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err, "sync places")
		return
	}
	c.JSON(http.StatusOK, report)
}
