package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderTemplate(t *testing.T) {
	t.Parallel()

	data := map[string]string{
		"rule_name": "Negative feedback",
		"rating":    "2",
	}

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "simple substitution",
			body: "Alert: {{rule_name}}",
			want: "Alert: Negative feedback",
		},
		{
			name: "whitespace inside braces",
			body: "Alert: {{ rule_name }} ({{  rating  }}/5)",
			want: "Alert: Negative feedback (2/5)",
		},
		{
			name: "missing variable renders empty",
			body: "Hi {{customer_name}}, re {{rule_name}}",
			want: "Hi , re Negative feedback",
		},
		{
			name: "no tokens passes through",
			body: "plain text",
			want: "plain text",
		},
		{
			name: "repeated token",
			body: "{{rating}}+{{rating}}",
			want: "2+2",
		},
		{
			name: "single braces untouched",
			body: "{rule_name}",
			want: "{rule_name}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, RenderTemplate(tt.body, data))
		})
	}
}

func TestTemplateStore_GetOrDefault(t *testing.T) {
	t.Parallel()
	store := NewTemplateStore()

	// Built-ins are seeded.
	email, ok := store.Get(TemplateAlertEmail)
	assert.True(t, ok)
	assert.NotEmpty(t, email.Subject)

	// Unknown and empty IDs fall back.
	assert.Equal(t, email, store.GetOrDefault("missing", TemplateAlertEmail))
	assert.Equal(t, email, store.GetOrDefault("", TemplateAlertEmail))

	// A registered custom template wins over the fallback.
	custom := Template{ID: "acme_email", Subject: "custom", Body: "{{message}}"}
	store.Register(custom)
	assert.Equal(t, custom, store.GetOrDefault("acme_email", TemplateAlertEmail))
}
