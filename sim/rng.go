package sim

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand/v2"
)

// Stream kinds drawn from a run seed.
const (
	StreamOrders    = "orders"    // one stream per generated order
	StreamObstacles = "obstacles" // one stream per generated obstacle
)

// RunSeed is the scenario seed. Every generated entity draws from its own stream,
// keyed by kind and index, so two runs with the same seed produce the same orders and
// obstacles, and raising a count appends entities without reshuffling earlier ones.
type RunSeed int64

// Stream returns the random source of the index-th entity of kind. Streams are cheap
// and independent: drawing from one never advances another.
func (s RunSeed) Stream(kind string, index int) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(s), streamKey(kind, index)))
}

// streamKey hashes kind and index (FNV-1a) into the PCG stream selector.
func streamKey(kind string, index int) uint64 {
	h := fnv.New64a()
	h.Write([]byte(kind))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(index))
	h.Write(buf[:])
	return h.Sum64()
}
