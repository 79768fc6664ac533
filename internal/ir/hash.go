package ir

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
)

// Domain prefixes for content hashes.
// Version suffix enables future algorithm migration.
const (
	DomainNode = "strata/node/v1"
)

// Hasher folds an ordered sequence of strings into one hex digest.
//
// The digest is computed on first call to Digest and cached. A Hasher is
// sealed once read: calling Update afterwards panics, because the caller
// would otherwise hold a digest that no longer matches the fed input.
//
// Format: SHA256(domain || 0x00 || len(c1) || c1 || len(c2) || c2 ...)
// with 8-byte big-endian lengths, so ("ab", "c") and ("a", "bc") differ.
//
// Hasher is a change detector, not a security primitive.
type Hasher struct {
	h      hash.Hash
	digest string
	sealed bool
}

// NewHasher creates a Hasher with the given domain prefix.
func NewHasher(domain string) *Hasher {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	return &Hasher{h: h}
}

// Update feeds one chunk into the digest and returns the Hasher for chaining.
//
// Panics if Digest has already been called.
func (x *Hasher) Update(value string) *Hasher {
	if x.sealed {
		panic("ir.Hasher: Update called after Digest")
	}
	var length [8]byte
	binary.BigEndian.PutUint64(length[:], uint64(len(value)))
	x.h.Write(length[:])
	x.h.Write([]byte(value))
	return x
}

// UpdateOptional is like Update but accepts an absent value.
// A nil value is hashed as the empty string.
func (x *Hasher) UpdateOptional(value *string) *Hasher {
	if value == nil {
		return x.Update("")
	}
	return x.Update(*value)
}

// Digest returns the hex-encoded SHA-256 digest.
// Repeated calls return the identical string.
func (x *Hasher) Digest() string {
	if !x.sealed {
		x.digest = hex.EncodeToString(x.h.Sum(nil))
		x.sealed = true
	}
	return x.digest
}

// NodeHash computes the content hash of a node definition.
//
// Chunks are fed in this order: each create statement, each refresh
// statement, the delete statement, then the hash of every dependency in
// declaration order. depHash returns the already computed hash of a
// dependency and "" when it is unknown, so a missing dependency degrades to
// an empty chunk instead of failing.
//
// Because dependency hashes are folded in, changing a node changes the hash
// of everything that transitively depends on it.
func NodeHash(def NodeDefinition, depHash func(name string) string) string {
	x := NewHasher(DomainNode)
	for _, stmt := range def.CreateStatements {
		x.Update(stmt)
	}
	for _, stmt := range def.RefreshStatements {
		x.Update(stmt)
	}
	x.Update(def.DeleteStatement)
	for _, dep := range def.Dependencies {
		x.Update(depHash(dep))
	}
	return x.Digest()
}
