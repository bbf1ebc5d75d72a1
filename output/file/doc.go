// Package file provides the N-Triples file sink for derived facts.
//
// Each triple becomes one UTF-8 line terminated by '\n'. Lines are buffered
// and written when BufferSize lines are pending, on every FlushInterval tick
// and on Close:
//
//	sink, err := file.NewSink(file.Config{
//		Path:          "out/derived.nt",
//		Append:        true,
//		BufferSize:    100,
//		FlushInterval: time.Second,
//		Retry:         errors.DefaultRetryConfig(),
//	}, deps)
//
// # Failure handling
//
// A failed write is retried with exponential backoff (pkg/retry). When the
// retries are exhausted the sink latches a fatal error wrapping
// errors.ErrSinkExhausted; every later Write and Close returns it and the
// topology run fails.
//
// # Dedup
//
// DedupSize > 0 keeps the most recent lines in an LRU cache and suppresses
// repeats. Without it every consequent is written, including re-derivations.
package file
