package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/perry-go/perry/internal/orm/query"
)

// Key derives the cache key for a query payload. The identity names the
// caching stage (usually the base type name of the queried model) so that a
// subtype sharing its parent's identity collides with the parent's queries.
// Entries are ordered by the first character of their key, ties keep the
// payload's canonical order.
func Key(identity string, payload query.Payload) (string, error) {
	keys := payload.Keys()
	sort.SliceStable(keys, func(i, j int) bool {
		return keys[i][0] < keys[j][0]
	})

	entries := make([][2]interface{}, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, [2]interface{}{k, payload[k]})
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("failed to encode cache key for %s: %w", identity, err)
	}

	hash := sha256.Sum256(append([]byte(identity+":"), data...))
	return hex.EncodeToString(hash[:16]), nil
}
