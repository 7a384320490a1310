// Package messages holds the localized texts sent to clients when a
// connection is refused. Texts are looked up by message id.
package messages

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message ids
const (
	WrongPassword  = "msg.error.wrongPassword"
	DuplicateName  = "msg.error.duplicateName"
	WrongVersion   = "msg.error.wrongVersion"
	PlayerDisabled = "msg.error.playerDisabled"
	NotPlayTime    = "msg.error.notPlayTime"
)

var translations = map[language.Tag]map[string]string{
	language.English: {
		WrongPassword:  "wrong password",
		DuplicateName:  "duplicate name: %s is already connected",
		WrongVersion:   "wrong version: client is %s, server is %s",
		PlayerDisabled: "player disabled: %s",
		NotPlayTime:    "outside permitted play time",
	},
	language.German: {
		WrongPassword:  "falsches Passwort",
		DuplicateName:  "doppelter Name: %s ist bereits verbunden",
		WrongVersion:   "falsche Version: Client hat %s, Server hat %s",
		PlayerDisabled: "Spieler gesperrt: %s",
		NotPlayTime:    "außerhalb der erlaubten Spielzeit",
	},
}

// Catalog renders message ids in one language
type Catalog struct {
	tag     language.Tag
	printer *message.Printer
}

// New creates a Catalog for the best supported match of lang.
// An empty lang selects English.
func New(lang string) (*Catalog, error) {
	builder := catalog.NewBuilder(catalog.Fallback(language.English))
	supported := []language.Tag{language.English}
	for tag, texts := range translations {
		if tag != language.English {
			supported = append(supported, tag)
		}
		for id, text := range texts {
			if err := builder.SetString(tag, id, text); err != nil {
				return nil, fmt.Errorf("register message %s: %w", id, err)
			}
		}
	}

	requested := language.English
	if lang != "" {
		parsed, err := language.Parse(lang)
		if err != nil {
			return nil, fmt.Errorf("parse language %q: %w", lang, err)
		}
		requested = parsed
	}

	_, index, _ := language.NewMatcher(supported).Match(requested)
	tag := supported[index]

	return &Catalog{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(builder)),
	}, nil
}

// Default returns the English catalog
func Default() *Catalog {
	c, err := New("")
	if err != nil {
		panic(err)
	}
	return c
}

// Language returns the language texts are rendered in
func (c *Catalog) Language() language.Tag {
	return c.tag
}

// Text renders the message id with args
func (c *Catalog) Text(id string, args ...any) string {
	return c.printer.Sprintf(id, args...)
}
