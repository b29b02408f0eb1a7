package gen

import (
	"testing"

	"guarantee-controlplane/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestNewSnowflakeNode(t *testing.T) {
	node, err := NewSnowflakeNode(&config.Config{NodeID: 3})
	require.NoError(t, err)

	a, b := NextID(node), NextID(node)
	require.NotEqual(t, a, b)

	_, err = NewSnowflakeNode(&config.Config{NodeID: 5000})
	require.Error(t, err)
}
