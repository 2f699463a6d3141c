package shard

import (
	"strings"
	"testing"
)

func TestIndexPK_SingleShard(t *testing.T) {
	// With numShards=1, all entries should go to shard "00"
	tests := []struct {
		ref      string
		member   string
		expected string
	}{
		{"code#SKU-1", "aa01", "code#SKU-1#00"},
		{"code#SKU-1", "bb02", "code#SKU-1#00"},
		{"type#cover", "aa01", "type#cover#00"},
		{"children#ff00", "cc03", "children#ff00#00"},
	}

	for _, tt := range tests {
		result := IndexPK(tt.ref, tt.member, 1)
		if result != tt.expected {
			t.Errorf("IndexPK(%q, %q, 1) = %q, want %q",
				tt.ref, tt.member, result, tt.expected)
		}
	}
}

func TestIndexPK_ZeroShards(t *testing.T) {
	// Zero or negative shards should be treated as 1
	result := IndexPK("code#c", "m1", 0)
	if result != "code#c#00" {
		t.Errorf("expected 'code#c#00', got %q", result)
	}

	result = IndexPK("code#c", "m1", -1)
	if result != "code#c#00" {
		t.Errorf("expected 'code#c#00', got %q", result)
	}
}

func TestIndexPK_MultipleShards(t *testing.T) {
	// With numShards=256, different members should produce different shards
	ref := "code#SKU-1"
	numShards := 256

	shardCounts := make(map[string]int)
	for i := 0; i < 1000; i++ {
		member := "lot#" + string(rune('a'+i%26)) + string(rune('0'+i%10))
		pk := IndexPK(ref, member, numShards)

		// Verify format: ref#XX (where XX is hex)
		if !strings.HasPrefix(pk, ref+"#") {
			t.Errorf("expected prefix %q#, got %q", ref, pk)
		}

		shardCounts[pk[len(ref)+1:]]++
	}

	if len(shardCounts) < 10 {
		t.Errorf("expected distribution across multiple shards, got only %d unique shards", len(shardCounts))
	}
}

func TestIndexPK_Deterministic(t *testing.T) {
	first := IndexPK("code#SKU-1", "aa01", 256)
	for i := 0; i < 100; i++ {
		result := IndexPK("code#SKU-1", "aa01", 256)
		if result != first {
			t.Errorf("expected deterministic result %q, got %q on iteration %d", first, result, i)
		}
	}
}

func TestIndexPK_HexFormat(t *testing.T) {
	result := IndexPK("code#SKU-1", "lot#test", 256)
	shard := result[strings.LastIndex(result, "#")+1:]
	if len(shard) != 2 {
		t.Errorf("expected 2-character shard, got %q", shard)
	}
	for _, c := range shard {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Errorf("expected hex character, got %c", c)
		}
	}
}

func TestAll(t *testing.T) {
	tests := []struct {
		numShards int
		wantLen   int
		wantLast  string
	}{
		{0, 1, "type#t#00"},
		{1, 1, "type#t#00"},
		{16, 16, "type#t#0f"},
		{256, 256, "type#t#ff"},
		{1000, 256, "type#t#ff"},
	}

	for _, tt := range tests {
		pks := All("type#t", tt.numShards)
		if len(pks) != tt.wantLen {
			t.Errorf("All(%d) len = %d, want %d", tt.numShards, len(pks), tt.wantLen)
			continue
		}
		if last := pks[len(pks)-1]; last != tt.wantLast {
			t.Errorf("All(%d) last = %q, want %q", tt.numShards, last, tt.wantLast)
		}
	}
}

func TestAll_CoversIndexPK(t *testing.T) {
	// Every key IndexPK produces must be one of the keys All fans out over.
	for _, n := range []int{1, 7, 64} {
		set := make(map[string]bool)
		for _, pk := range All("code#c", n) {
			set[pk] = true
		}
		for i := 0; i < 200; i++ {
			pk := IndexPK("code#c", string(rune('A'+i%50))+"x", n)
			if !set[pk] {
				t.Errorf("numShards=%d: IndexPK %q not in All", n, pk)
			}
		}
	}
}

func BenchmarkIndexPK_SingleShard(b *testing.B) {
	for i := 0; i < b.N; i++ {
		IndexPK("code#SKU-1", "1c8aff950685c2ed4bc3174f3472287b56d9517b9c948127319a09a7a36deac8", 1)
	}
}

func BenchmarkIndexPK_256Shards(b *testing.B) {
	for i := 0; i < b.N; i++ {
		IndexPK("code#SKU-1", "1c8aff950685c2ed4bc3174f3472287b56d9517b9c948127319a09a7a36deac8", 256)
	}
}
