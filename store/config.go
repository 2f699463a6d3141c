package store

import "github.com/jacentio/lottrace/internal/shard"

// Config holds configuration for the Store.
type Config struct {
	// LotTable is the name of the lots table, keyed by lot_id.
	// Default: "lottrace_lots"
	LotTable string

	// IndexTable is the name of the index table, keyed by pk and sk. It holds
	// index entries, per-index counters and per-code chain ends.
	// Default: "lottrace_index"
	IndexTable string

	// NumShards is the number of shards each index is spread over.
	// Higher values increase write throughput on a hot item code or type but
	// require more parallel queries per read.
	// Default: 1 (no sharding, single query)
	// Max: 256
	//
	// Per-shard limits:
	//   - Writes: 1,000/sec
	//   - Reads: 3,000/sec
	//
	// Every insert also updates the index counters and the code chain, which
	// are not sharded, so sharding mostly helps large fan-out reads.
	NumShards int
}

// DefaultConfig returns sensible defaults for small datasets.
func DefaultConfig() Config {
	return Config{
		LotTable:   "lottrace_lots",
		IndexTable: "lottrace_index",
		NumShards:  1,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.LotTable == "" {
		c.LotTable = "lottrace_lots"
	}
	if c.IndexTable == "" {
		c.IndexTable = "lottrace_index"
	}
	if c.NumShards < 1 {
		c.NumShards = 1
	}
	if c.NumShards > shard.MaxShards {
		c.NumShards = shard.MaxShards
	}
}
