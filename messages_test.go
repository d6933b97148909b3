package adbind

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
	"golang.org/x/text/message/catalog"
)

func TestMessageProvider(t *testing.T) {
	tests := []struct {
		name string
		tag  language.Tag
		key  string
		want string
	}{
		{"english", language.English, MsgBadCredentials, "Bad credentials"},
		{"german", language.German, MsgBadCredentials, "Ungültige Anmeldedaten"},
		{"regional german", language.MustParse("de-AT"), MsgServiceFailure, "Authentifizierungsdienst nicht verfügbar"},
		{"unsupported language uses fallback", language.French, MsgBadCredentials, "fallback"},
		{"unknown key uses fallback", language.English, "Unknown.key", "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewMessageProvider(tt.tag)
			assert.Equal(t, tt.want, p.Message(tt.key, "fallback"))
		})
	}
}

func TestMessageProviderCustomCatalog(t *testing.T) {
	b := catalog.NewBuilder()
	require.NoError(t, b.SetString(language.English, MsgBadCredentials, "Login failed"))

	p := NewMessageProviderFromCatalog(language.English, b)
	assert.Equal(t, "Login failed", p.Message(MsgBadCredentials, "Bad credentials"))
	assert.Equal(t, "Try later", p.Message(MsgAttemptsLimited, "Try later"))

	var nilProvider *MessageProvider
	assert.Equal(t, "Bad credentials", nilProvider.Message(MsgBadCredentials, "Bad credentials"))
}

func TestDefaultMessages(t *testing.T) {
	assert.Equal(t, "Too many failed attempts, try again later", DefaultMessages().Message(MsgAttemptsLimited, ""))
}
