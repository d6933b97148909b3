package adbind

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys.
const (
	MsgBadCredentials  = "BindAuthenticator.badCredentials"
	MsgServiceFailure  = "Authentication.serviceFailure"
	MsgAttemptsLimited = "Authentication.attemptsLimited"
)

var defaultMessages = map[string]map[language.Tag]string{
	MsgBadCredentials: {
		language.English: "Bad credentials",
		language.German:  "Ungültige Anmeldedaten",
	},
	MsgServiceFailure: {
		language.English: "Authentication service unavailable",
		language.German:  "Authentifizierungsdienst nicht verfügbar",
	},
	MsgAttemptsLimited: {
		language.English: "Too many failed attempts, try again later",
		language.German:  "Zu viele fehlgeschlagene Versuche, bitte später erneut versuchen",
	},
}

// MessageProvider resolves user-facing messages for one language.
type MessageProvider struct {
	tag     language.Tag
	catalog catalog.Catalog
}

// NewMessageProvider returns a provider for tag backed by the built-in
// English and German catalog. Unknown languages fall back to English.
func NewMessageProvider(tag language.Tag) *MessageProvider {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, translations := range defaultMessages {
		for t, msg := range translations {
			// SetString only fails on malformed messages, which the table does not contain.
			_ = b.SetString(t, key, msg)
		}
	}
	return NewMessageProviderFromCatalog(tag, b)
}

// NewMessageProviderFromCatalog returns a provider for tag backed by c.
func NewMessageProviderFromCatalog(tag language.Tag, c catalog.Catalog) *MessageProvider {
	return &MessageProvider{tag: tag, catalog: c}
}

// DefaultMessages returns the English provider.
func DefaultMessages() *MessageProvider {
	return NewMessageProvider(language.English)
}

// Message returns the message for key, or fallback when the catalog has none.
func (m *MessageProvider) Message(key, fallback string) string {
	if m == nil {
		return fallback
	}
	p := message.NewPrinter(m.tag, message.Catalog(m.catalog))
	return p.Sprintf(message.Key(key, fallback))
}
