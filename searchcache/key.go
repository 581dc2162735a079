/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package searchcache

import "encoding/json"

// BuildKey constructs a canonical cache key from a query string and an optional filter set.
// Filters with nil values are dropped, and the remaining ones are serialized as compact JSON
// with alphabetically ordered keys, so two semantically identical requests always map to
// the same key regardless of the filters' insertion order.
func BuildKey(query string, filters map[string]interface{}) string {
	cleaned := make(map[string]interface{}, len(filters))
	for k, v := range filters {
		if v == nil {
			continue
		}
		cleaned[k] = v
	}
	// encoding/json sorts object keys for string-keyed maps.
	serialized, err := json.Marshal(cleaned)
	if err != nil {
		serialized = []byte("{}")
	}
	return query + ":" + string(serialized)
}
