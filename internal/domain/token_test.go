package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// The discriminator strings are persisted in oauth2_tokens.token_kind;
// existing rows depend on them never changing.
func TestTokenKindDiscriminatorsAreStable(t *testing.T) {
	require.Equal(t, "Access", string(TokenKindAccess))
	require.Equal(t, "Refresh", string(TokenKindRefresh))
}

func TestParseTokenKind(t *testing.T) {
	kind, err := ParseTokenKind("Access")
	require.NoError(t, err)
	require.Equal(t, TokenKindAccess, kind)

	kind, err = ParseTokenKind("Refresh")
	require.NoError(t, err)
	require.Equal(t, TokenKindRefresh, kind)

	_, err = ParseTokenKind("access")
	require.Error(t, err)
	_, err = ParseTokenKind("")
	require.Error(t, err)
}
