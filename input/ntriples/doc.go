// Package ntriples provides the fact source that reads N-Triples input.
//
// The URL may be a plain path, a file:// or http(s):// URL, or "-" for
// standard input. Each line holds one statement; blank and comment lines are
// ignored and malformed lines are logged as errors.MalformedFactError,
// counted and skipped so later facts still flow.
//
// With Follow set, the source keeps tailing a local file via fsnotify until
// the run is stopped. RateLimit throttles emission with a token bucket.
package ntriples
