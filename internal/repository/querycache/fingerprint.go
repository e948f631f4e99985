package querycache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/grantmesh/grantmesh/internal/domain/query"
)

// Fingerprint computes the deterministic cache key for a query: a hash of
// the normalized query text, the sorted filter set, and the sorted target
// node list. Filter and target ordering never affects the key, so
// semantically identical queries always collide.
func Fingerprint(q query.Query) string {
	h := sha256.New()

	h.Write([]byte(q.Normalized()))
	h.Write([]byte{0})

	keys := make([]string, 0, len(q.Filters()))
	for k := range q.Filters() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{1})
		vals := append([]string(nil), q.Filters()[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			h.Write([]byte(v))
			h.Write([]byte{1})
		}
		h.Write([]byte{0})
	}
	h.Write([]byte{0})

	for _, t := range q.SortedTargets() {
		h.Write([]byte(t))
		h.Write([]byte{1})
	}

	return hex.EncodeToString(h.Sum(nil))
}
