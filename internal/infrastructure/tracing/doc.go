/*
Package tracing provides lightweight spans for correlating log lines.

Each monitoring tick runs in its own trace, with child spans for the health
check and any restart attempt. Status endpoint requests get a span too, and
the trace context is echoed back in response headers.

# Usage

	tracer := tracing.New("watchdog", logger)
	defer tracer.Close()

	span, ctx := tracer.StartSpan(ctx, "check")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()
	logger.Info("sampled", span.Fields()...)

	router.Use(tracing.HTTPMiddleware(tracer))

# Trace Format

Traces use HTTP headers for propagation:
  - X-Trace-ID: identifier for the whole flow
  - X-Span-ID: identifier for the current operation

Finished spans are buffered and logged by a single collector goroutine at
debug level, or at warn level when they carry an error.
*/
package tracing
