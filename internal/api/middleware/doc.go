// Package middleware holds the gin middleware of the status endpoint:
// CORS for browser docks, a global rate limit and request logging.
package middleware
