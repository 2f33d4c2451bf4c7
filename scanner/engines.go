package scanner

import (
	"crypto/sha256"
	"fmt"
	"hash"
	"sort"

	"golang.org/x/crypto/blake2b"
)

type engineFactory func() (hash.Hash, error)

var engines = map[string]engineFactory{
	"sha256": func() (hash.Hash, error) {
		return sha256.New(), nil
	},
	"blake2b": func() (hash.Hash, error) {
		return blake2b.New256(nil)
	},
}

// Algorithms lists the supported fingerprint algorithms.
func Algorithms() []string {
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newEngine(algorithm string) (hash.Hash, error) {
	factory, ok := engines[algorithm]
	if !ok {
		return nil, fmt.Errorf("unsupported fingerprint algorithm %q (supported: %v)", algorithm, Algorithms())
	}
	return factory()
}
