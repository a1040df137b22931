package email

import (
	"strings"
)

// Well-known IMAP hosts per mail domain. Unmapped domains fall back to
// the conventional mail.<domain> guess.
var imapHostMap = map[string]string{
	"gmail.com":      "imap.gmail.com",
	"googlemail.com": "imap.gmail.com",
	"gmx.de":         "imap.gmx.net",
	"gmx.net":        "imap.gmx.net",
	"gmx.at":         "imap.gmx.net",
	"web.de":         "imap.web.de",
	"yahoo.com":      "imap.mail.yahoo.com",
	"yahoo.co.uk":    "imap.mail.yahoo.com",
	"yandex.ru":      "imap.yandex.com",
	"yandex.com":     "imap.yandex.com",
	"mail.ru":        "imap.mail.ru",
	"bk.ru":          "imap.mail.ru",
	"list.ru":        "imap.mail.ru",
	"inbox.ru":       "imap.mail.ru",
	"outlook.com":    "outlook.office365.com",
	"hotmail.com":    "outlook.office365.com",
	"live.com":       "outlook.office365.com",
	"office365.com":  "outlook.office365.com",
	"icloud.com":     "imap.mail.me.com",
	"me.com":         "imap.mail.me.com",
	"aol.com":        "imap.aol.com",
}

// Submission (SMTP) hosts for the same providers
var smtpHostMap = map[string]string{
	"gmail.com":      "smtp.gmail.com",
	"googlemail.com": "smtp.gmail.com",
	"gmx.de":         "mail.gmx.net",
	"gmx.net":        "mail.gmx.net",
	"gmx.at":         "mail.gmx.net",
	"web.de":         "smtp.web.de",
	"yahoo.com":      "smtp.mail.yahoo.com",
	"yahoo.co.uk":    "smtp.mail.yahoo.com",
	"yandex.ru":      "smtp.yandex.com",
	"yandex.com":     "smtp.yandex.com",
	"mail.ru":        "smtp.mail.ru",
	"bk.ru":          "smtp.mail.ru",
	"list.ru":        "smtp.mail.ru",
	"inbox.ru":       "smtp.mail.ru",
	"outlook.com":    "smtp-mail.outlook.com",
	"hotmail.com":    "smtp-mail.outlook.com",
	"live.com":       "smtp-mail.outlook.com",
	"office365.com":  "smtp.office365.com",
	"icloud.com":     "smtp.mail.me.com",
	"me.com":         "smtp.mail.me.com",
	"aol.com":        "smtp.aol.com",
}

const (
	imapPortSSL    = 993
	smtpPortSubmit = 587
)

// Domain extracts the lowercased domain of an email address
func Domain(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		return strings.ToLower(addr[i+1:])
	}
	return ""
}

// ResolveIMAPHost returns the IMAP server host for an email address
func ResolveIMAPHost(addr string) string {
	domain := Domain(addr)
	if domain == "" {
		return ""
	}
	if host, ok := imapHostMap[domain]; ok {
		return host
	}
	return "mail." + domain
}

// ResolveSMTPHost returns the mail-submission host for an email address
func ResolveSMTPHost(addr string) string {
	domain := Domain(addr)
	if domain == "" {
		return ""
	}
	if host, ok := smtpHostMap[domain]; ok {
		return host
	}
	return "mail." + domain
}
