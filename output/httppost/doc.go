// Package httppost provides an HTTP POST sink for derived triples.
//
// # Overview
//
// The sink buffers consequents and posts them to a webhook as N-Triples
// batches (Content-Type application/n-triples, one triple per line). A batch
// is sent when BatchSize lines are buffered, every FlushInterval, and on
// Close.
//
//	cfg := httppost.DefaultConfig()
//	cfg.URL = "https://api.example.com/derived"
//	cfg.Headers = map[string]string{"Authorization": "Bearer " + token}
//	sink, err := httppost.NewSink(cfg, deps)
//
// # Retry Logic
//
// Failed posts are retried with exponential backoff (pkg/retry):
//
//   - Network errors, 5xx responses and 429 are retried
//   - Other 4xx responses fail at once
//
// When retries run out the sink latches a fatal error wrapping
// errors.ErrSinkExhausted; every later Write returns it and the running
// topology fails.
//
// # Registration
//
// Register adds the sink to a component.Registry under the name "httppost".
package httppost
