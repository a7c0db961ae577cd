package cryptox_test

import (
	"testing"

	"github.com/aussiebroadwan/gigboard/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	t.Parallel()

	data := []byte(`{"jwtToken":"A","refreshToken":"R","tokenExpiresAt":"2099-01-01T00:00:00Z"}`)

	sealed, err := cryptox.Seal("correct horse", data)
	require.NoError(t, err)
	require.NotContains(t, string(sealed), "jwtToken")

	opened, err := cryptox.Open("correct horse", sealed)
	require.NoError(t, err)
	require.Equal(t, data, opened)
}

func TestSealIsRandomised(t *testing.T) {
	t.Parallel()

	data := []byte("same input")

	a, err := cryptox.Seal("pass", data)
	require.NoError(t, err)
	b, err := cryptox.Seal("pass", data)
	require.NoError(t, err)

	// Fresh salt and nonce each time
	require.NotEqual(t, a, b)
}

func TestOpenFailures(t *testing.T) {
	t.Parallel()

	sealed, err := cryptox.Seal("pass", []byte("secret"))
	require.NoError(t, err)

	t.Run("wrong passphrase", func(t *testing.T) {
		_, err := cryptox.Open("other", sealed)
		require.Error(t, err)
		require.Contains(t, err.Error(), "decryption failed")
	})

	t.Run("tampered", func(t *testing.T) {
		tampered := append([]byte(nil), sealed...)
		tampered[len(tampered)-1] ^= 0xff
		_, err := cryptox.Open("pass", tampered)
		require.Error(t, err)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := cryptox.Open("pass", []byte("short"))
		require.ErrorIs(t, err, cryptox.ErrSealedDataTooShort)
	})
}
