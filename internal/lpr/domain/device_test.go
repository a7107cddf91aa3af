package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeviceFingerprint_StableSubsetOnly(t *testing.T) {
	base := DeviceFingerprint{
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64)",
		AcceptLanguage:   "en-US, en;q=0.9",
		Platform:         "Linux",
		ScreenResolution: "1920x1080",
		Canvas:           "c1",
	}

	noisy := base
	noisy.Canvas = "c2"
	noisy.WebGL = "w"
	noisy.Audio = "a"
	noisy.Timezone = "Australia/Sydney"
	require.Equal(t, base.StableHash(), noisy.StableHash(), "probe fields must not affect the hash")

	spaced := base
	spaced.UserAgent = "  Mozilla/5.0  (X11;  Linux x86_64) "
	spaced.AcceptLanguage = "EN-us,en;q=0.9"
	spaced.Platform = " linux "
	spaced.ScreenResolution = "1920 x 1080"
	require.Equal(t, base.StableHash(), spaced.StableHash())

	other := base
	other.ScreenResolution = "1280x720"
	require.NotEqual(t, base.StableHash(), other.StableHash())

	require.True(t, noisy.MatchesHash(base.StableHash()))
	require.False(t, other.MatchesHash(base.StableHash()))
}

func TestDeviceFingerprint_FieldBoundaries(t *testing.T) {
	a := DeviceFingerprint{UserAgent: "ab", AcceptLanguage: "c"}
	b := DeviceFingerprint{UserAgent: "a", AcceptLanguage: "bc"}
	require.NotEqual(t, a.StableHash(), b.StableHash())
}

func TestDeviceFingerprint_Validate(t *testing.T) {
	require.ErrorIs(t, DeviceFingerprint{}.Validate(), ErrInvalidDevice)
	require.NoError(t, DeviceFingerprint{UserAgent: "ua"}.Validate())
}
