package parser

import "testing"

func TestParse(t *testing.T) {
	p := NewHTMLParser()

	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "empty input",
			html: "",
			want: "",
		},
		{
			name: "block elements become lines",
			html: "<div>Hello</div><div>World</div>",
			want: "Hello\nWorld",
		},
		{
			name: "scripts and styles stripped",
			html: "<style>.a{color:red}</style><script>alert(1)</script><p>Text</p>",
			want: "Text",
		},
		{
			name: "inline markup flattened",
			html: "<p>Ist <b>das Fahrrad</b> noch da?</p>",
			want: "Ist das Fahrrad noch da?",
		},
		{
			name: "zero width characters removed",
			html: "<p>Ang​ebot</p>",
			want: "Angebot",
		},
		{
			name: "blank lines collapsed",
			html: "<p>a</p><p></p><p></p><p></p><p>b</p>",
			want: "a\nb",
		},
		{
			name: "list items on own lines",
			html: "<ul><li>eins</li><li>zwei</li></ul>",
			want: "eins\nzwei",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Parse(tt.html)
			if err != nil {
				t.Fatalf("Parse() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Parse() = %q, want %q", got, tt.want)
			}
		})
	}
}
