// Package poller drives periodic health polling.
//
// A Scheduler owns a single repeating ticker. Each tick (and each manual
// refresh) starts a poll cycle that submits one probe per service to a worker
// pool sized to the registry, so no service ever waits behind another. Each
// probe writes its result to the status store the moment it completes; the
// cycle completion time is stamped once every probe dispatched by that cycle
// has resolved.
//
// A service whose previous probe is still pending is skipped by later
// cycles, which keeps at most one probe in flight per service. Stop halts the
// ticker without cancelling in-flight probes; Close additionally waits for them.
package poller
