package engine

import "math/bits"

// MagicSeed is the constant second half of every raid generator state.
// It is also the per-frame seed increment.
const MagicSeed uint64 = 0x82a2b175229d6a5b

// Rng is a xoroshiro128+ generator seeded the way the raid dens seed it:
// the first state word is the den seed, the second is MagicSeed.
type Rng struct {
	s0 uint64
	s1 uint64
}

// NewRng creates a generator for the given seed
func NewRng(seed uint64) *Rng {
	return &Rng{s0: seed, s1: MagicSeed}
}

// Reset reseeds the generator in place
func (r *Rng) Reset(seed uint64) {
	r.s0 = seed
	r.s1 = MagicSeed
}

// Next advances the state and returns the next 64-bit output
func (r *Rng) Next() uint64 {
	s0 := r.s0
	s1 := r.s1
	result := s0 + s1

	s1 ^= s0
	r.s0 = bits.RotateLeft64(s0, 24) ^ s1 ^ (s1 << 16)
	r.s1 = bits.RotateLeft64(s1, 37)

	return result
}

// NextUint32 returns the low 32 bits of the next output, masked
func (r *Rng) NextUint32(mask uint32) uint32 {
	return uint32(r.Next()) & mask
}

// NextInt draws masked values until one is below max.
// The mask must be at least max-1 rounded up to a power of two minus one,
// otherwise the loop never terminates.
func (r *Rng) NextInt(max, mask uint32) uint32 {
	result := r.NextUint32(mask)
	for result >= max {
		result = r.NextUint32(mask)
	}
	return result
}

// Below returns a value in [0, max) using the game's mask-and-reroll scheme.
func (r *Rng) Below(max uint32) uint32 {
	return r.NextInt(max, maskFor(max))
}

// SeedAtOffset returns the seed of the frame n advances after seed.
func SeedAtOffset(seed Seed, n uint64) Seed {
	return Seed(uint64(seed) + MagicSeed*n)
}

// maskFor returns the smallest all-ones mask covering max-1.
func maskFor(max uint32) uint32 {
	if max <= 1 {
		return 0
	}
	return 1<<bits.Len32(max-1) - 1
}
