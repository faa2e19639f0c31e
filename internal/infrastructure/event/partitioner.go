package event

import "github.com/cespare/xxhash/v2"

// PartitionFor maps a partitioning key onto one of n partitions
func PartitionFor(key string, n int) int {
	if n <= 1 {
		return 0
	}
	return int(xxhash.Sum64String(key) % uint64(n))
}
