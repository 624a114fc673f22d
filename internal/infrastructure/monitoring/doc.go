/*
Package monitoring collects the watchdog's Prometheus metrics.

# Overview

Metrics live on a private registry so tests can create as many collectors
as they like. The registry covers health checks, the freeze streak, restart
outcomes, reconnects, control server requests and the status endpoint itself.
A short rolling window of check latencies is summarized with gonum for the
JSON status view.

# Usage

	metrics := monitoring.NewMetrics()

	timer := monitoring.NewTimer(metrics)
	obs, err := checker.Check(ctx, session, source)
	timer.Stop("content")

	metrics.RecordRestart("restarted")

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
