package email

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// DevSender сохраняет письма в каталог вместо отправки
type DevSender struct {
	dir string
	mu  sync.Mutex
	seq int
}

// NewDevSender создает отправителя, пишущего письма в dir
func NewDevSender(dir string) *DevSender {
	if dir == "" {
		dir = filepath.Join("tmp", "emails")
	}
	return &DevSender{dir: dir}
}

func (d *DevSender) Provider() string { return "dev" }

type devMetadata struct {
	Timestamp string `json:"timestamp"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Tag       string `json:"tag,omitempty"`
	Text      string `json:"text,omitempty"`
}

// Send пишет HTML письма и JSON с метаданными
func (d *DevSender) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("%w: create directory: %v", ErrFailedToSend, err)
	}

	d.mu.Lock()
	d.seq++
	seq := d.seq
	d.mu.Unlock()

	now := time.Now()
	identifier := msg.Tag
	if identifier == "" {
		identifier = msg.Subject
	}
	base := fmt.Sprintf("%s_%03d_%s", now.Format("2006_01_02_150405"), seq, sanitizeFilename(identifier))

	body := msg.HTML
	if body == "" {
		body = "<pre>" + msg.Text + "</pre>"
	}
	if err := os.WriteFile(filepath.Join(d.dir, base+".html"), []byte(body), 0o644); err != nil {
		return fmt.Errorf("%w: write html: %v", ErrFailedToSend, err)
	}

	meta, err := json.MarshalIndent(devMetadata{
		Timestamp: now.Format(time.RFC3339),
		To:        msg.To,
		Subject:   msg.Subject,
		Tag:       msg.Tag,
		Text:      msg.Text,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal metadata: %v", ErrFailedToSend, err)
	}
	if err := os.WriteFile(filepath.Join(d.dir, base+".json"), meta, 0o644); err != nil {
		return fmt.Errorf("%w: write metadata: %v", ErrFailedToSend, err)
	}
	return nil
}

var unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

func sanitizeFilename(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = unsafeFilename.ReplaceAllString(s, "")
	if len(s) > 100 {
		s = s[:100]
	}
	if s == "" {
		s = "email"
	}
	return strings.ToLower(s)
}
