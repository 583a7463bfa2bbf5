// Package notification delivers push and email messages and renders the
// localized texts sent to patients and staff.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrDispatchFailed wraps every delivery failure so callers can treat them
// uniformly.
var ErrDispatchFailed = errors.New("notification dispatch failed")

// Channel is the transport a template is written for.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

// PushMessage targets a single user by the external id registered with the
// push provider.
type PushMessage struct {
	ExternalID string
	Title      string
	Body       string
	Language   string
}

// PushSender sends push notifications.
type PushSender interface {
	SendPush(ctx context.Context, msg PushMessage) error
}

// EmailSender sends email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

const (
	TemplateMedicationReminder = "medication-reminder"
	TemplateSignup             = "signup"
)

// Template defines a reusable notification text.
type Template struct {
	ID       string
	Subject  string
	Body     string
	Channel  Channel
	Language string
}

// TemplateEngine manages templates and renders {{key}} placeholders.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:       TemplateMedicationReminder,
			Subject:  "Ya es hora de consumir tu dósis de {{medicament}}",
			Body:     "Te corresponde consumir {{dose}} de {{medicament}}",
			Channel:  ChannelPush,
			Language: "es",
		},
		{
			ID:      TemplateSignup,
			Subject: "Registro GlucoHealth",
			Body: "Hola {{name}},\n\n" +
				"Has sido registrado/a en GlucoHealth como {{role}}.\n" +
				"Puedes iniciar sesión con las siguientes credenciales:\n\n" +
				"Correo: {{email}}\n" +
				"Contraseña: {{password}}\n\n" +
				"Te recomendamos cambiar tu contraseña después del primer ingreso.",
			Channel:  ChannelEmail,
			Language: "es",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template and performs {{key}} replacement. Keys absent
// from data are left as-is.
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

// RenderPush renders a push template addressed to externalID.
func (e *TemplateEngine) RenderPush(templateID, externalID string, data map[string]string) (PushMessage, error) {
	title, body, err := e.Render(templateID, data)
	if err != nil {
		return PushMessage{}, err
	}
	e.mu.RLock()
	lang := e.templates[templateID].Language
	e.mu.RUnlock()
	return PushMessage{ExternalID: externalID, Title: title, Body: body, Language: lang}, nil
}

// ---------------------------------------------------------------------------
// Mock senders
// ---------------------------------------------------------------------------

// MockPushSender records pushes. FailFor makes sends to listed external ids
// fail.
type MockPushSender struct {
	mu      sync.Mutex
	calls   []PushMessage
	FailAll bool
	FailFor map[string]bool
}

func (m *MockPushSender) SendPush(_ context.Context, msg PushMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAll || m.FailFor[msg.ExternalID] {
		return fmt.Errorf("%w: mock failure for %s", ErrDispatchFailed, msg.ExternalID)
	}
	m.calls = append(m.calls, msg)
	return nil
}

// Calls returns a copy of the successful sends.
func (m *MockPushSender) Calls() []PushMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PushMessage, len(m.calls))
	copy(out, m.calls)
	return out
}

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
}

func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return fmt.Errorf("%w: mock email failure", ErrDispatchFailed)
	}
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}
