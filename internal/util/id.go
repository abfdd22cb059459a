package util

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	idNode *snowflake.Node
	idErr  error
	idOnce sync.Once
)

// InitIDs sets the snowflake node for this process. It must be called before
// NextID if the process runs alongside other writers; otherwise node 1 is used.
func InitIDs(nodeID int64) error {
	idOnce.Do(func() {
		idNode, idErr = snowflake.NewNode(nodeID)
	})
	return idErr
}

// NextID returns a time-ordered, process-unique int64 id. Ids generated later
// always compare greater, which is what conversation ordering relies on.
func NextID() int64 {
	if err := InitIDs(1); err != nil {
		panic(err)
	}
	return idNode.Generate().Int64()
}
