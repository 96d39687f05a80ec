package outlet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSynonyms(t *testing.T) {
	cases := map[string]ID{
		"Kuwait City":      KuwaitCity,
		"  kuwait   city ": KuwaitCity,
		"360":              Mall360,
		"360 Mall":         Mall360,
		"vibes":            VibeComplex,
		"Drive":            VibeComplex,
		"taiba":            TaibaHospital,
		"Central Kitchen":  CentralKitchen,
		"ck":               CentralKitchen,
		"central-kitchen":  CentralKitchen,
	}
	for name, want := range cases {
		got, err := Parse(name)
		require.NoError(t, err, name)
		require.Equal(t, want, got, name)
	}
}

func TestParseUnknown(t *testing.T) {
	_, err := Parse("salmiya branch")
	require.ErrorIs(t, err, ErrUnknownOutlet)
}

func TestSchemeDerivation(t *testing.T) {
	retail := KuwaitCity.Scheme()
	require.Equal(t, "Out of Stock", retail.Derive(0, 5))
	require.Equal(t, "Out of Stock", retail.Derive(-1, 5))
	require.Equal(t, "Low Stock", retail.Derive(5, 5))
	require.Equal(t, "In Stock", retail.Derive(6, 5))

	kitchen := CentralKitchen.Scheme()
	require.Equal(t, "Maintenance", kitchen.Derive(0, 5))
	require.Equal(t, "Active", kitchen.Derive(3, 5))
	require.Equal(t, "Active", kitchen.Derive(50, 5))
}

func TestCodesAndDisplayNames(t *testing.T) {
	require.Equal(t, "KWC", KuwaitCity.Code())
	require.Equal(t, "CK", CentralKitchen.Code())
	require.Equal(t, "360 Mall", Mall360.DisplayName())
	require.Equal(t, "Kuwait City", KuwaitCity.DisplayName())
	for _, id := range All {
		require.True(t, id.Valid())
	}
	require.False(t, ID("salmiya").Valid())
}
