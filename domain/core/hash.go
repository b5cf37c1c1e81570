package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Short returns the first 12 hex characters, for logs
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// ComputeRunFingerprint hashes everything that determines an estimation
// result: the model definition, the data, and the simulation settings.
// Two runs with equal fingerprints must produce bit-identical estimates.
func ComputeRunFingerprint(modelDefinition []byte, dataHash Hash, drawMethod string, draws int, seed uint64, settings map[string]interface{}) Hash {
	var data strings.Builder
	data.Write(modelDefinition)
	data.WriteString(dataHash.String())
	data.WriteString(fmt.Sprintf("%s|%d|%d", drawMethod, draws, seed))

	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		data.WriteString(key)
		data.WriteString(fmt.Sprintf("%v", settings[key]))
	}

	return NewHash([]byte(data.String()))
}
