package i18n

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestNew(t *testing.T) {
	require.Equal(t, language.English, New("en").Language())
	require.Equal(t, language.Japanese, New("ja").Language())
	require.Equal(t, language.Japanese, New("ja-JP").Language())
	require.Equal(t, language.English, New("fr").Language())
	require.Equal(t, language.English, New("").Language())
	require.Equal(t, language.English, New("not a language").Language())
}

func TestT(t *testing.T) {
	require.Equal(t, "Server under maintenance", New("en").T(ServerUnderMaintenance))
	require.Equal(t, "メンテナンス中です", New("ja").T(ServerUnderMaintenance))
	require.Equal(t, "unknown_key", New("ja").T(Key("unknown_key")))
}

func TestCatalogsComplete(t *testing.T) {
	for key := range english {
		_, ok := japanese[key]
		require.True(t, ok, key)
	}
	require.Len(t, japanese, len(english))
}
