package postgres

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIPStringDropsMask(t *testing.T) {
	v4 := netip.MustParsePrefix("1.2.3.4/32")
	require.Equal(t, "1.2.3.4", ipString(&v4))

	v6 := netip.MustParsePrefix("2001:db8::1/128")
	require.Equal(t, "2001:db8::1", ipString(&v6))

	require.Equal(t, "", ipString(nil))
}

func TestNullable(t *testing.T) {
	require.Nil(t, nullable(""))
	require.Equal(t, "1.2.3.4", nullable("1.2.3.4"))
}
