package templates

import (
	"strings"
	"testing"
)

func TestRenderVerifyEmail(t *testing.T) {
	subject, text, html, err := Render(VerifyEmail, map[string]any{
		"Name":        "Alice",
		"VerifyURL":   "http://localhost/verify?token=abc",
		"ExpiresIn":   "24h0m0s",
		"CompanyName": "Acme",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if subject == "" {
		t.Fatal("empty subject")
	}
	if !strings.Contains(text, "http://localhost/verify?token=abc") {
		t.Fatalf("text missing verify link:\n%s", text)
	}
	if !strings.Contains(html, "http://localhost/verify?token=abc") {
		t.Fatalf("html missing verify link:\n%s", html)
	}
	if !strings.Contains(text, "Alice") {
		t.Fatal("text missing recipient name")
	}
}

func TestRenderForgotPassword(t *testing.T) {
	subject, text, html, err := Render(ForgotPassword, map[string]any{
		"Name":        "Alice",
		"ResetURL":    "http://localhost/reset?token=xyz",
		"ExpiresIn":   "30m0s",
		"CompanyName": "Acme",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if subject == "" {
		t.Fatal("empty subject")
	}
	for _, body := range []string{text, html} {
		if !strings.Contains(body, "http://localhost/reset?token=xyz") {
			t.Fatalf("body missing reset link:\n%s", body)
		}
	}
}

func TestRenderWelcome(t *testing.T) {
	_, text, _, err := Render(Welcome, map[string]any{
		"Name":        "Alice",
		"Username":    "alice",
		"CompanyName": "Acme",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(text, "alice") {
		t.Fatal("text missing username")
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	if _, _, _, err := Render("no_such_template", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}
