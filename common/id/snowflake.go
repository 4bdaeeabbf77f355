package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init initializes the Snowflake node with the given node ID.
// The server and worker use different node IDs.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New generates a new time-ordered int64 scan ID.
func New() int64 {
	return node.Generate().Int64()
}

// Parse converts the decimal form used in URLs back into an ID.
func Parse(s string) (int64, error) {
	sf, err := snowflake.ParseString(s)
	if err != nil {
		return 0, err
	}
	return sf.Int64(), nil
}
