package sharding

import (
	"fmt"
	"hash/crc32"
)

// ShardCount is the fixed number of partitions for change subjects.
const ShardCount = 256

// GetShardID calculates the deterministic shard ID for a scope key.
func GetShardID(scopeKey string) int {
	checksum := crc32.ChecksumIEEE([]byte(scopeKey))
	return int(checksum % ShardCount)
}

// ChangeSubject returns the NATS subject for a change in the given
// collection. Member-scoped collections use the member ID as the scope key;
// collection-wide changes pass the collection name itself.
// Format: care.change.{shard_id}.{collection}.{scope}
func ChangeSubject(collection, scopeKey string) string {
	shardID := GetShardID(scopeKey)
	return fmt.Sprintf("care.change.%d.%s.%s", shardID, collection, scopeKey)
}

// SubscribeSubject returns the wildcard-shard subject a live subscription
// listens on for a scope.
func SubscribeSubject(collection, scopeKey string) string {
	return "care.change.*." + collection + "." + scopeKey
}
