// Package engine wires the registry, prober, poller, status store, section
// loader and metrics collector together and exposes the query and subscribe
// surface consumed by presenters.
package engine
