// Package healthcheck implements the single-shot reachability probe used by
// the poller. A probe sends one bounded HTTP GET to a service's health
// endpoint and collapses every failure mode (refused connection, DNS error,
// timeout, non-success status) into an Offline result. It never returns an
// error and never retries; cadence belongs to the caller.
package healthcheck
