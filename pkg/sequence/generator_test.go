package sequence

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRandomAlphaNumeric(t *testing.T) {
	s, err := randomAlphaNumeric(8)
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^[A-HJ-NP-Z2-9]{8}$`), s)
}
