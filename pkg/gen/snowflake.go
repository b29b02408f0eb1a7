package gen

import (
	"guarantee-controlplane/pkg/config"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("snowflake", fx.Provide(NewSnowflakeNode))

// NewSnowflakeNode builds the id generator for this process. NODE_ID must be
// unique per replica.
func NewSnowflakeNode(cfg *config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}

// NextID returns a new snowflake id in its decimal string form.
func NextID(node *snowflake.Node) string {
	return node.Generate().String()
}
