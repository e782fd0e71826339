// Package i18n looks up user-visible strings.
//
// Keys are the English format strings themselves; translations are
// registered with the x/text message catalog at init time.
package i18n

import (
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Message keys shared by the library and the commands.
const (
	MsgIndexedProjection = "Unable to project indexed image."
	MsgUnknownProperty   = "XCF warning: unknown property %d (%d bytes) skipped"
	MsgOpenFailed        = "Opening '%s' failed: %v"
	MsgSaveFailed        = "Saving '%s' failed: %v"
	MsgFloatingSelection = "Floating Selection"
	MsgSelectionMask     = "Selection Mask"
	MsgLayerMask         = "%s mask"
	MsgBackground        = "Background"
	MsgOffset            = "Offset"
	MsgNoLayer           = "No layer named '%s'"
)

var supported = []language.Tag{language.English, language.German}

var matcher = language.NewMatcher(supported)

func init() {
	de := map[string]string{
		MsgIndexedProjection: "Indiziertes Bild kann nicht projiziert werden.",
		MsgUnknownProperty:   "XCF-Warnung: unbekannte Eigenschaft %d (%d Bytes) übersprungen",
		MsgOpenFailed:        "Öffnen von '%s' fehlgeschlagen: %v",
		MsgSaveFailed:        "Speichern von '%s' fehlgeschlagen: %v",
		MsgFloatingSelection: "Schwebende Auswahl",
		MsgSelectionMask:     "Auswahlmaske",
		MsgLayerMask:         "Maske von %s",
		MsgBackground:        "Hintergrund",
		MsgOffset:            "Versatz",
		MsgNoLayer:           "Keine Ebene namens '%s'",
	}
	for key, msg := range de {
		if err := message.SetString(language.German, key, msg); err != nil {
			panic(err)
		}
	}
}

// Printer returns a printer for the given language, falling back to English.
func Printer(tag language.Tag) *message.Printer {
	matched, _, _ := matcher.Match(tag)
	base, _ := matched.Base()
	return message.NewPrinter(language.Make(base.String()))
}

// Default returns the English printer.
func Default() *message.Printer {
	return message.NewPrinter(language.English)
}

// FromEnv picks a language from LC_ALL, LC_MESSAGES or LANG.
func FromEnv() language.Tag {
	for _, v := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if s := os.Getenv(v); s != "" {
			return Parse(s)
		}
	}
	return language.English
}

// Parse converts a POSIX locale name such as "de_DE.UTF-8" into a tag.
func Parse(locale string) language.Tag {
	if i := strings.IndexAny(locale, ".@"); i >= 0 {
		locale = locale[:i]
	}
	if locale == "" || locale == "C" || locale == "POSIX" {
		return language.English
	}
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return language.English
	}
	return tag
}
