// Package shard derives partition keys for the sharded index table.
package shard

import (
	"fmt"
	"hash/fnv"
)

// MaxShards is the largest shard count a two hex digit suffix can address.
const MaxShards = 256

// IndexPK computes the sharded partition key for an index entry.
// With numShards=1, all entries of ref go to shard "00".
// With numShards>1, entries are distributed across shards by a hash of member.
func IndexPK(ref, member string, numShards int) string {
	return key(ref, Of(member, numShards))
}

// Of returns the shard number member hashes to.
func Of(member string, numShards int) int {
	if numShards <= 1 {
		return 0
	}
	if numShards > MaxShards {
		numShards = MaxShards
	}
	h := fnv.New32a()
	h.Write([]byte(member))
	return int(h.Sum32() % uint32(numShards))
}

// All returns the partition key of every shard of ref, in shard order.
// A query over the whole index fans out over these keys.
func All(ref string, numShards int) []string {
	if numShards < 1 {
		numShards = 1
	}
	if numShards > MaxShards {
		numShards = MaxShards
	}
	pks := make([]string, numShards)
	for i := range pks {
		pks[i] = key(ref, i)
	}
	return pks
}

func key(ref string, shard int) string {
	return fmt.Sprintf("%s#%02x", ref, shard)
}
