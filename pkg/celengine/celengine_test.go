package celengine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	attrs := map[string]any{"current_value": 12, "target_value": 10.5}

	ok, err := Evaluate("current_value >= target_value", attrs)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Evaluate("current_value >= target_value * 2.0", attrs)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = Evaluate("current_value + 1.0", attrs)
	require.Error(t, err)

	_, err = Evaluate("unknown_var > 1.0", attrs)
	require.Error(t, err)
}

func TestEvaluateDynamic(t *testing.T) {
	out, err := EvaluateDynamic("current_value / target_value * 100.0", map[string]any{
		"current_value": 5,
		"target_value":  20,
	})
	require.NoError(t, err)
	require.InDelta(t, 25.0, out, 0.0001)
}

func TestValidateExpression(t *testing.T) {
	attrs := map[string]any{"current_value": 0.0}
	require.NoError(t, ValidateExpression("current_value > 3.0", attrs))
	require.Error(t, ValidateExpression("current_value >", attrs))
}
