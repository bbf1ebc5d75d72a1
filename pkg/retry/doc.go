// Package retry runs an operation again with exponential backoff until it
// succeeds or gives up.
//
// SemRete retries three kinds of work: binding and opening fact sources,
// publishing node envelopes on NATS, and flushing or posting derived triples
// from output sinks. Sinks convert errors.RetryConfig to a Config and latch a
// fatal error once Do reports exhaustion:
//
//	cfg := sinkCfg.Retry.ToRetryConfig()
//	cfg.Notify = func(attempt int, err error, delay time.Duration) {
//	    logger.Warn("Write failed, retrying", "attempt", attempt, "delay", delay, "error", err)
//	}
//	if err := retry.Do(ctx, cfg, write); err != nil {
//	    return errors.WrapFatal(fmt.Errorf("%w: %w", errors.ErrSinkExhausted, err), "Sink", "flush", "write triples")
//	}
//
// DoWithResult returns the value of the successful attempt:
//
//	conn, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*net.UDPConn, error) {
//	    return net.ListenUDP("udp", addr)
//	})
//
// An operation stops early when it returns an error wrapped with
// NonRetryable, when Config.Retryable rejects the error, or when ctx ends.
// After the last failed attempt Do returns an *ExhaustedError wrapping the
// final error.
package retry
