package harness

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_EarlySuccess(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/early_success.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	require.True(t, result.Pass, strings.Join(result.Errors, "\n"))
}
