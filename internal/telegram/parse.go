package telegram

import (
	"strconv"
	"strings"

	appmodels "github.com/mixelka/mailpool/pkg/models"
)

type accountLine struct {
	Email    string
	Password string
	Name     string
}

// parseAccountLines parses "email:password" or "email:password:name",
// one account per line. Malformed lines are skipped.
func parseAccountLines(text string) []accountLine {
	var out []accountLine
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 3)
		if len(parts) < 2 {
			continue
		}
		acc := accountLine{
			Email:    strings.TrimSpace(parts[0]),
			Password: strings.TrimSpace(parts[1]),
		}
		if len(parts) == 3 {
			acc.Name = strings.TrimSpace(parts[2])
		}
		if acc.Email == "" || !strings.Contains(acc.Email, "@") || acc.Password == "" {
			continue
		}
		if acc.Name == "" {
			acc.Name = acc.Email[:strings.Index(acc.Email, "@")]
		}
		out = append(out, acc)
	}
	return out
}

type proxyLine struct {
	Host     string
	Port     int
	Login    string
	Password string
}

// parseProxyLines parses "host:port" or "host:port:login:password",
// one proxy per line. Malformed lines are skipped.
func parseProxyLines(text string) []proxyLine {
	var out []proxyLine
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) != 2 && len(parts) != 4 {
			continue
		}
		port, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || port < 1 || port > 65535 {
			continue
		}
		prx := proxyLine{
			Host: strings.TrimSpace(parts[0]),
			Port: port,
		}
		if prx.Host == "" {
			continue
		}
		if len(parts) == 4 {
			prx.Login = strings.TrimSpace(parts[2])
			prx.Password = strings.TrimSpace(parts[3])
		}
		out = append(out, prx)
	}
	return out
}

// parseRecipientLines parses "email;seller;title", one recipient per
// line. Seller and title are optional.
func parseRecipientLines(text string) []appmodels.Recipient {
	var out []appmodels.Recipient
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ";", 3)
		r := appmodels.Recipient{Email: strings.TrimSpace(parts[0])}
		if r.Email == "" || !strings.Contains(r.Email, "@") {
			continue
		}
		if len(parts) > 1 {
			r.SellerName = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 {
			r.ItemTitle = strings.TrimSpace(parts[2])
		}
		out = append(out, r)
	}
	return out
}

// commandArgs strips the leading /command token and returns the rest
func commandArgs(text string) string {
	if i := strings.IndexAny(text, " \n"); i >= 0 {
		return strings.TrimSpace(text[i+1:])
	}
	return ""
}
