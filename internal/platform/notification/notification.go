// Package notification turns patient process changes into inbox messages
// for every responsible staff member.
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/domain/inbox"
	"github.com/bloodlink/bloodlink/internal/domain/process"
	"github.com/bloodlink/bloodlink/internal/platform/telemetry"
	"github.com/bloodlink/bloodlink/pkg/apperr"
)

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template is a status message keyed by process state.
type Template struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateEngine renders {{key}} placeholders.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// legacyAwaiting is the pre-workflow "awaiting test" label some older
// records still carry.
const legacyAwaiting = "รอตรวจ"

const statusSubject = "อัปเดตสถานะผู้ป่วย - {{state}}"

var statusMessages = map[string]string{
	legacyAwaiting:            "ได้เพิ่มผู้ป่วยแล้ว",
	string(process.Scheduled): "นัดหมายเจาะเลือด",
	string(process.Drawn):     "ถึงเวลาเจาะเลือด",
	string(process.InTransit): "กำลังจัดส่งผลเลือด",
	string(process.Testing):   "ส่งผลเลือดสำเร็จ กำลังตรวจสอบ",
	string(process.Completed): "ผลเลือดออกแล้ว",
}

// NewTemplateEngine creates an engine with one template per state.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	for id, msg := range statusMessages {
		e.RegisterTemplate(Template{
			ID:      id,
			Subject: statusSubject,
			Body:    msg + ": {{name}} (HN: {{hn}})",
		})
	}
	return e
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

func (e *TemplateEngine) Has(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.templates[id]
	return ok
}

// Render fills a template. Keys absent from data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

// Recipients resolves who should hear about a patient.
type Recipients interface {
	ResponsibleEmails(ctx context.Context, hn string) ([]string, error)
}

// MessageSender stores (and pushes) one inbox message.
type MessageSender interface {
	Send(ctx context.Context, m *inbox.Message) error
}

type Dispatcher struct {
	recipients Recipients
	sender     MessageSender
	templates  *TemplateEngine
	metrics    *telemetry.TelemetryProvider
	logger     zerolog.Logger
}

func NewDispatcher(recipients Recipients, sender MessageSender, metrics *telemetry.TelemetryProvider, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		recipients: recipients,
		sender:     sender,
		templates:  NewTemplateEngine(),
		metrics:    metrics,
		logger:     logger.With().Str("component", "notification").Logger(),
	}
}

// resolve maps a raw state to its template id and display label.
func resolve(state string) (id, label string) {
	s := strings.TrimSpace(state)
	if s == legacyAwaiting {
		return s, s
	}
	p, err := process.Parse(s)
	if err != nil {
		return "", s
	}
	return string(p), p.Label()
}

// Dispatch sends one system message per responsible staff member and
// returns how many were delivered. A state without a template, or a
// patient with nobody responsible, delivers nothing and is not an error.
// Individual delivery failures are logged and skipped; only failing to
// resolve recipients is returned. Messages carry no dedup key, so calling
// Dispatch twice delivers twice.
func (d *Dispatcher) Dispatch(ctx context.Context, hn, state, displayName string) (int, error) {
	id, label := resolve(state)
	if id == "" || !d.templates.Has(id) {
		d.logger.Debug().Str("hn", hn).Str("state", state).Msg("no notification template for state")
		return 0, nil
	}

	emails, err := d.recipients.ResponsibleEmails(ctx, hn)
	if err != nil {
		return 0, apperr.Dependency("resolve notification recipients", err)
	}
	if len(emails) == 0 {
		d.logger.Debug().Str("hn", hn).Msg("no responsible staff to notify")
		return 0, nil
	}

	subject, body, err := d.templates.Render(id, map[string]string{
		"state": label,
		"name":  displayName,
		"hn":    hn,
	})
	if err != nil {
		return 0, err
	}

	sent, failed := 0, 0
	for _, email := range emails {
		msg := &inbox.Message{
			Sender:   inbox.SystemSender,
			Receiver: email,
			Subject:  subject,
			Body:     body,
			Type:     inbox.TypeSystemUpdate,
		}
		if err := d.sender.Send(ctx, msg); err != nil {
			failed++
			d.logger.Error().Err(err).Str("hn", hn).Str("receiver", email).Msg("status notification failed")
			continue
		}
		sent++
	}

	d.metrics.RecordNotifications(sent, failed)
	d.logger.Info().Str("hn", hn).Str("state", id).Int("notified", sent).Int("failed", failed).Msg("status notifications sent")
	return sent, nil
}
