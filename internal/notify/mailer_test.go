package notify

import (
	"strings"
	"testing"
)

func TestMailerIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "docs@example.com",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "docs@example.com",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMailer(tt.config)
			if m.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", m.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestSendEmailUnconfigured(t *testing.T) {
	m := NewMailer(Config{})
	if err := m.SendEmail([]string{"a@example.com"}, "subject", "body"); err == nil {
		t.Error("expected error when unconfigured")
	}
}

func TestSigningTemplateRenders(t *testing.T) {
	html, err := renderTemplate(signingEmailTemplate, SigningData{
		AppName:       "Parchment",
		RecipientName: "Ada",
		DocumentTitle: "Lease Agreement",
		SigningURL:    "https://example.com/sign/abc",
		Reason:        "It is your turn to sign",
	})
	if err != nil {
		t.Fatalf("renderTemplate() error = %v", err)
	}
	for _, want := range []string{"Ada", "Lease Agreement", "https://example.com/sign/abc"} {
		if !strings.Contains(html, want) {
			t.Errorf("expected rendered email to contain %q", want)
		}
	}
}
