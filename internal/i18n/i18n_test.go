package i18n

import (
	"testing"

	"golang.org/x/text/language"
)

func TestParse(t *testing.T) {
	tests := []struct {
		locale string
		want   language.Base
	}{
		{"de_DE.UTF-8", language.MustParseBase("de")},
		{"en_US", language.MustParseBase("en")},
		{"C", language.MustParseBase("en")},
		{"", language.MustParseBase("en")},
		{"fr_FR@euro", language.MustParseBase("fr")},
	}
	for _, tt := range tests {
		t.Run(tt.locale, func(t *testing.T) {
			got, _ := Parse(tt.locale).Base()
			if got != tt.want {
				t.Errorf("Parse(%q) base = %v, want %v", tt.locale, got, tt.want)
			}
		})
	}
}

func TestPrinterGerman(t *testing.T) {
	p := Printer(language.MustParse("de-AT"))
	if got := p.Sprintf(MsgBackground); got != "Hintergrund" {
		t.Errorf("German background = %q", got)
	}
	if got := p.Sprintf(MsgLayerMask, "Ebene"); got != "Maske von Ebene" {
		t.Errorf("German mask name = %q", got)
	}
}

func TestPrinterFallback(t *testing.T) {
	p := Printer(language.Japanese)
	if got := p.Sprintf(MsgUnknownProperty, 42, 8); got != "XCF warning: unknown property 42 (8 bytes) skipped" {
		t.Errorf("fallback = %q", got)
	}
}
