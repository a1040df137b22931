package email

import "testing"

func TestDomain(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"user@gmail.com", "gmail.com"},
		{"User@GMAIL.COM", "gmail.com"},
		{"a@b@c.de", "c.de"},
		{"no-at-sign", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Domain(tt.addr); got != tt.want {
			t.Errorf("Domain(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestResolveIMAPHost(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"user@gmail.com", "imap.gmail.com"},
		{"user@googlemail.com", "imap.gmail.com"},
		{"user@gmx.de", "imap.gmx.net"},
		{"user@hotmail.com", "outlook.office365.com"},
		{"user@bk.ru", "imap.mail.ru"},
		{"user@example.org", "mail.example.org"},
		{"broken", ""},
	}

	for _, tt := range tests {
		if got := ResolveIMAPHost(tt.addr); got != tt.want {
			t.Errorf("ResolveIMAPHost(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestResolveSMTPHost(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"user@gmail.com", "smtp.gmail.com"},
		{"user@web.de", "smtp.web.de"},
		{"user@outlook.com", "smtp-mail.outlook.com"},
		{"user@example.org", "mail.example.org"},
		{"broken", ""},
	}

	for _, tt := range tests {
		if got := ResolveSMTPHost(tt.addr); got != tt.want {
			t.Errorf("ResolveSMTPHost(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}
