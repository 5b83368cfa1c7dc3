// Package idgen provides the snowflake node every domain repository mints
// primary keys from.
package idgen

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("idgen", fx.Provide(NewNode))

// NewNode builds the process-wide snowflake node. Node 1 is fine for a
// single replica; a multi-replica deployment assigns distinct node IDs per
// instance (e.g. from a pod ordinal) to keep IDs collision-free.
func NewNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
