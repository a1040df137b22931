package telegram

import (
	"reflect"
	"testing"

	appmodels "github.com/mixelka/mailpool/pkg/models"
)

func TestParseAccountLines(t *testing.T) {
	text := `
user@gmail.com:secret
anna@mail.ru:pw123:Anna
broken-line
nopassword@web.de:
:missingemail
`
	got := parseAccountLines(text)
	want := []accountLine{
		{Email: "user@gmail.com", Password: "secret", Name: "user"},
		{Email: "anna@mail.ru", Password: "pw123", Name: "Anna"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseAccountLines() = %+v, want %+v", got, want)
	}
}

func TestParseProxyLines(t *testing.T) {
	text := `
10.0.0.1:1080
10.0.0.2:1081:user:pass
10.0.0.3:notaport
10.0.0.4:99999
onlyhost
`
	got := parseProxyLines(text)
	want := []proxyLine{
		{Host: "10.0.0.1", Port: 1080},
		{Host: "10.0.0.2", Port: 1081, Login: "user", Password: "pass"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseProxyLines() = %+v, want %+v", got, want)
	}
}

func TestParseRecipientLines(t *testing.T) {
	text := `
buyer@mail.com;Anna;Fahrrad
plain@mail.com
seller-only@mail.com;Max
not-an-email;x;y
`
	got := parseRecipientLines(text)
	want := []appmodels.Recipient{
		{Email: "buyer@mail.com", SellerName: "Anna", ItemTitle: "Fahrrad"},
		{Email: "plain@mail.com"},
		{Email: "seller-only@mail.com", SellerName: "Max"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseRecipientLines() = %+v, want %+v", got, want)
	}
}

func TestCommandArgs(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/send a;b;c", "a;b;c"},
		{"/quickadd\nuser@x.de:pw", "user@x.de:pw"},
		{"/read", ""},
		{"/setdelay 20 40", "20 40"},
	}
	for _, tt := range tests {
		if got := commandArgs(tt.in); got != tt.want {
			t.Errorf("commandArgs(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
