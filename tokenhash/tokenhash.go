// Package tokenhash maps token bytes to the 64-bit hashes fed into simhash
// fingerprints.
package tokenhash

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/dchest/siphash"
	farmhash "github.com/leemcloughlin/gofarmhash"
	"github.com/use-agent/neardup/simhash"
)

// FNV-1a 64-bit parameters. Changing either breaks compatibility with every
// fingerprint built from FNV1a token hashes.
const (
	fnvOffset64 uint64 = 0xcbf29ce484222325
	fnvPrime64  uint64 = 0x100000001b3
)

// Hasher hashes one token.
type Hasher interface {
	Name() string
	Sum64(b []byte) uint64
}

// FNV1a returns the 64-bit FNV-1a hash of b. FNV1a(nil) is the offset basis.
// Every byte is hashed as unsigned, NUL included, so tokens with bytes >= 0x80
// differ from C implementations that sign-extend char.
func FNV1a(b []byte) uint64 {
	h := fnvOffset64
	for _, c := range b {
		h ^= uint64(c)
		h *= fnvPrime64
	}
	return h
}

type fnv1aHasher struct{}

func (fnv1aHasher) Name() string          { return "fnv1a" }
func (fnv1aHasher) Sum64(b []byte) uint64 { return FNV1a(b) }

type xxHasher struct{}

func (xxHasher) Name() string          { return "xxhash" }
func (xxHasher) Sum64(b []byte) uint64 { return xxhash.Sum64(b) }

type farmHasher struct{}

func (farmHasher) Name() string          { return "farmhash" }
func (farmHasher) Sum64(b []byte) uint64 { return farmhash.Hash64(b) }

// SipHasher is keyed SipHash-2-4. Use it when token hashes must not be
// predictable by whoever supplies the tokens.
type SipHasher struct {
	K0, K1 uint64
}

func (SipHasher) Name() string { return "siphash" }

func (s SipHasher) Sum64(b []byte) uint64 { return siphash.Hash(s.K0, s.K1, b) }

var (
	// Reference is the FNV-1a hasher; it is the default everywhere.
	Reference Hasher = fnv1aHasher{}
	// XXHash is xxHash64.
	XXHash Hasher = xxHasher{}
	// FarmHash is Google's FarmHash Hash64.
	FarmHash Hasher = farmHasher{}
)

// Names lists the hasher names accepted by ByName.
func Names() []string {
	return []string{"fnv1a", "xxhash", "farmhash", "siphash"}
}

// ByName returns the hasher registered under name. An empty name selects the
// reference hasher. siphash uses the zero key; build a SipHasher directly to
// set one.
func ByName(name string) (Hasher, error) {
	switch strings.ToLower(name) {
	case "", "fnv1a", "fnv":
		return Reference, nil
	case "xxhash", "xxh64":
		return XXHash, nil
	case "farmhash":
		return FarmHash, nil
	case "siphash":
		return SipHasher{}, nil
	}
	return nil, &simhash.InputError{
		Op:     "token_hash",
		Param:  "hasher",
		Value:  name,
		Reason: fmt.Sprintf("must be one of %v", Names()),
	}
}

// HashStrings hashes every token with h.
func HashStrings(h Hasher, tokens []string) []uint64 {
	out := make([]uint64, len(tokens))
	for i, t := range tokens {
		out[i] = h.Sum64([]byte(t))
	}
	return out
}

