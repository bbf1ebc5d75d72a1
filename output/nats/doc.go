// Package nats provides a sink that publishes derived triples to NATS.
//
// Every triple is sent as one N-Triples line (no trailing newline) on the
// configured subject. Publishing is retried with backoff; once retries are
// exhausted the sink latches errors.ErrSinkExhausted and the run fails.
package nats
