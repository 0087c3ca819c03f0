// Package notify implements alert fan-out: the action dispatcher, the
// retrying delivery queues, and delivery-status history.
package notify

import (
	"regexp"
	"sync"
)

// templateVarPattern matches {{var}} tokens in template bodies.
var templateVarPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// RenderTemplate substitutes {{var}} tokens with values from data. A token
// missing from the data map renders as an empty string; data keys with no
// token in the template are ignored. Rendering never fails.
func RenderTemplate(body string, data map[string]string) string {
	return templateVarPattern.ReplaceAllStringFunc(body, func(tok string) string {
		name := templateVarPattern.FindStringSubmatch(tok)[1]
		return data[name]
	})
}

// Template is a named message template for one channel.
type Template struct {
	ID      string
	Subject string
	Body    string
}

// Built-in template IDs.
const (
	TemplateAlertEmail = "alert_email"
	TemplateAlertSMS   = "alert_sms"
)

// TemplateStore holds message templates by ID. Tenants may register custom
// templates; lookups fall back to the built-in defaults.
type TemplateStore struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewTemplateStore creates a store seeded with the built-in templates.
func NewTemplateStore() *TemplateStore {
	s := &TemplateStore{templates: make(map[string]Template)}
	s.Register(Template{
		ID:      TemplateAlertEmail,
		Subject: "[{{severity}}] {{rule_name}}",
		Body: "<h2>{{rule_name}}</h2>" +
			"<p>{{message}}</p>" +
			"<p>Customer: {{customer_name}}<br>Rating: {{rating}}/5</p>",
	})
	s.Register(Template{
		ID:      TemplateAlertSMS,
		Subject: "",
		Body:    "{{rule_name}}: {{customer_name}} rated {{rating}}/5. {{message}}",
	})
	return s
}

// Register adds or replaces a template.
func (s *TemplateStore) Register(t Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ID] = t
}

// Get returns the template with the given ID and whether it exists.
func (s *TemplateStore) Get(id string) (Template, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	return t, ok
}

// GetOrDefault returns the template with the given ID, falling back to the
// named default when the ID is empty or unknown.
func (s *TemplateStore) GetOrDefault(id, fallback string) Template {
	if id != "" {
		if t, ok := s.Get(id); ok {
			return t
		}
	}
	t, _ := s.Get(fallback)
	return t
}
