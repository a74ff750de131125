package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeSymbol(t *testing.T) {
	require.Equal(t, "SOL", NormalizeSymbol("  sol "))
	// fullwidth letters fold to their ASCII forms
	require.Equal(t, "USDC", NormalizeSymbol("ｕｓｄｃ"))
	require.Equal(t, "", NormalizeSymbol("   "))
}
