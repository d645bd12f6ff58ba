package cache

import (
	"fmt"
	"hash/fnv"
	"sort"
)

// Key identifies one cached computation. Endpoint names the upstream surface
// whose health gates stale-serve decisions; Hash is a deterministic digest of
// the request parameters so identical logical requests collide on the same
// entry.
type Key struct {
	Endpoint string
	Hash     string
}

// String renders the storage key.
func (k Key) String() string {
	return k.Endpoint + ":" + k.Hash
}

// KeyBuilder derives deterministic cache keys from request parameters. The
// optional salt namespaces deployments sharing one Redis database.
type KeyBuilder struct {
	salt string
}

// NewKeyBuilder constructs a key builder with the given salt.
func NewKeyBuilder(salt string) *KeyBuilder {
	return &KeyBuilder{salt: salt}
}

// Build hashes the endpoint, salt, and sorted parameters with FNV-1a. The
// canonical form is endpoint|salt|k=v|k=v so the same logical request always
// produces the same key regardless of map iteration order.
func (b *KeyBuilder) Build(endpoint string, params map[string]string) Key {
	h := fnv.New64a()
	_, _ = h.Write([]byte(endpoint))
	_, _ = h.Write([]byte("|"))
	if b != nil {
		_, _ = h.Write([]byte(b.salt))
	}
	_, _ = h.Write([]byte("|"))

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = h.Write([]byte(k))
		_, _ = h.Write([]byte("="))
		_, _ = h.Write([]byte(params[k]))
		_, _ = h.Write([]byte("|"))
	}

	return Key{Endpoint: endpoint, Hash: fmt.Sprintf("%016x", h.Sum64())}
}
