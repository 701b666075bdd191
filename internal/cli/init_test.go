package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInferTrunkPicksSoleCommonName(t *testing.T) {
	require.Equal(t, "main", inferTrunk([]string{"main", "feature/foo", "feature/bar"}))
}

func TestInferTrunkAmbiguousReturnsEmpty(t *testing.T) {
	require.Empty(t, inferTrunk([]string{"main", "master", "feature/foo"}))
}

func TestInferTrunkNoneReturnsEmpty(t *testing.T) {
	require.Empty(t, inferTrunk([]string{"feature/foo", "feature/bar"}))
}
