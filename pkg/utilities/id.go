package utilities

import (
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
// User ids are KSUIDs: sortable by creation time and safe to expose in tokens.
func NewKSUID() string {
	return ksuid.New().String()
}

// IsKSUID reports whether s parses as a KSUID string.
func IsKSUID(s string) bool {
	_, err := ksuid.Parse(s)
	return err == nil
}

var (
	nodeOnce sync.Once
	node     *snowflake.Node
)

// requestNode lazily builds the process-wide snowflake node from SNOWFLAKE_NODE
// (default 1). A single node per process keeps generated ids unique.
func requestNode() *snowflake.Node {
	nodeOnce.Do(func() {
		nodeID := int64(1)
		if v := os.Getenv("SNOWFLAKE_NODE"); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				nodeID = n
			}
		}
		n, err := snowflake.NewNode(nodeID)
		if err != nil {
			// out of range node id, fall back to the default node
			n, _ = snowflake.NewNode(1)
		}
		node = n
	})
	return node
}

// NewRequestID returns a snowflake id string used to correlate log lines of one request.
// It falls back to a KSUID if the snowflake node is unavailable.
func NewRequestID() string {
	n := requestNode()
	if n == nil {
		return NewKSUID()
	}
	return n.Generate().String()
}
