package sharding

import "github.com/cespare/xxhash/v2"

type ShardRouter struct {
	ShardCount int // Number of shards
}

func NewShardRouter(shardCount int) *ShardRouter {
	if shardCount < 1 {
		shardCount = 1
	}
	return &ShardRouter{ShardCount: shardCount}
}

// GetShard hashes a user id onto a shard index. All orders of one user live
// on the same shard so listing them is a single query.
func (r *ShardRouter) GetShard(userID string) int {
	return int(xxhash.Sum64String(userID) % uint64(r.ShardCount))
}
