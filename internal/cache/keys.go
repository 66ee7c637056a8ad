package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// CollectionKey derives the canonical cache key for a filtered, paginated
// collection query. Filters with empty values are dropped, so an omitted and
// an explicitly absent filter hash identically, and the JSON encoder sorts
// map keys, so construction order cannot change the key.
func CollectionKey(filters map[string]string, limit, offset int) string {
	present := make(map[string]string, len(filters))
	for k, v := range filters {
		if v != "" {
			present[k] = v
		}
	}
	payload, _ := json.Marshal(struct {
		Filters map[string]string `json:"filters"`
		Limit   int               `json:"limit"`
		Offset  int               `json:"offset"`
	}{Filters: present, Limit: limit, Offset: offset})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
