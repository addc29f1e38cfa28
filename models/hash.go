package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/use-agent/neardup/simhash"
)

// Hash is a 64-bit token hash or fingerprint as it appears on the wire.
//
// It decodes from a JSON number or a string. Numbers may be anything in
// [-2^63, 2^64-1]; negative values are taken as two's complement so clients
// that only have signed 64-bit integers round-trip. Strings may be decimal or
// 0x-prefixed hex. It always encodes as an unsigned JSON number.
type Hash uint64

// ParseHash parses a decimal (signed or unsigned) or 0x-prefixed hex string.
func ParseHash(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, hashError(s, "empty value")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return 0, hashError(s, "not a 64-bit hex integer")
		}
		return v, nil
	}
	if strings.HasPrefix(s, "-") {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, hashError(s, "not a 64-bit integer")
		}
		return uint64(v), nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, hashError(s, "not a 64-bit integer")
	}
	return v, nil
}

func hashError(value, reason string) error {
	return &simhash.InputError{Op: "decode", Param: "hash", Value: strconv.Quote(value), Reason: reason}
}

// UnmarshalJSON implements json.Unmarshaler.
func (h *Hash) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return hashError(string(b), "malformed string")
		}
		v, err := ParseHash(s)
		if err != nil {
			return err
		}
		*h = Hash(v)
		return nil
	}
	if bytes.ContainsAny(b, ".eE") {
		return hashError(string(b), "not an integer")
	}
	v, err := ParseHash(string(b))
	if err != nil {
		return err
	}
	*h = Hash(v)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (h Hash) MarshalJSON() ([]byte, error) {
	return strconv.AppendUint(nil, uint64(h), 10), nil
}

// Hex formats h as 16 lowercase hex digits.
func (h Hash) Hex() string {
	return fmt.Sprintf("%016x", uint64(h))
}

// Uint64s converts wire hashes to plain integers.
func Uint64s(hs []Hash) []uint64 {
	out := make([]uint64, len(hs))
	for i, h := range hs {
		out[i] = uint64(h)
	}
	return out
}

// WeightedToken is a (hash, weight) pair on the wire. It decodes from either
// a two-element array `[hash, weight]` or an object `{"hash": …, "weight": …}`.
type WeightedToken struct {
	Hash   Hash    `json:"hash"`
	Weight float64 `json:"weight"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *WeightedToken) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return tokenError(string(b), "empty value")
	}

	switch b[0] {
	case '[':
		var parts []json.RawMessage
		if err := json.Unmarshal(b, &parts); err != nil {
			return tokenError(string(b), "malformed array")
		}
		if len(parts) != 2 {
			return tokenError(string(b), "expected [hash, weight]")
		}
		if err := t.Hash.UnmarshalJSON(parts[0]); err != nil {
			return err
		}
		return decodeWeight(parts[1], &t.Weight)
	case '{':
		var obj struct {
			Hash   *Hash           `json:"hash"`
			Weight json.RawMessage `json:"weight"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		if obj.Hash == nil {
			return tokenError(string(b), "missing hash")
		}
		t.Hash = *obj.Hash
		if obj.Weight == nil {
			t.Weight = 1
			return nil
		}
		return decodeWeight(obj.Weight, &t.Weight)
	}
	return tokenError(string(b), "expected [hash, weight] or {\"hash\", \"weight\"}")
}

func decodeWeight(raw json.RawMessage, w *float64) error {
	// json.Unmarshal leaves a float64 untouched on null.
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return &simhash.InputError{Op: "decode", Param: "weight", Value: "null", Reason: "not a number"}
	}
	if err := json.Unmarshal(raw, w); err != nil {
		return &simhash.InputError{Op: "decode", Param: "weight", Value: string(raw), Reason: "not a number"}
	}
	if math.IsNaN(*w) || math.IsInf(*w, 0) {
		return &simhash.InputError{Op: "decode", Param: "weight", Value: string(raw), Reason: "must be finite"}
	}
	return nil
}

func tokenError(value, reason string) error {
	return &simhash.InputError{Op: "decode", Param: "weighted token", Value: value, Reason: reason}
}

// SimhashTokens converts wire tokens to simhash tokens.
func SimhashTokens(ts []WeightedToken) []simhash.WeightedToken {
	out := make([]simhash.WeightedToken, len(ts))
	for i, t := range ts {
		out[i] = simhash.WeightedToken{Hash: uint64(t.Hash), Weight: t.Weight}
	}
	return out
}
