// Package health provides readiness and liveness checks for cache
// instances and the composer.
//
// Components expose a Checker; the Aggregator runs all registered checkers
// and reduces their results to a single status, with unhealthy winning
// over degraded winning over healthy.
package health
