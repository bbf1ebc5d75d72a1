// Package cache provides a generic LRU cache.
//
// Output sinks use it to suppress duplicate derived triples within a bounded
// window:
//
//	seen, err := cache.NewLRU[struct{}](100_000,
//		cache.WithMetrics[struct{}](registry, "file_sink"))
//	...
//	dup, _ := seen.ContainsOrAdd(triple.String(), struct{}{})
//	if dup {
//		return nil
//	}
//
// ContainsOrAdd performs the lookup and insert under one lock, so concurrent
// writers never both treat the same key as new. Statistics are always
// collected; Prometheus metrics are optional.
package cache
