// Package sections fetches and normalises the per-service tabular data shown
// when a dashboard section is opened. Loads are on demand only; the poller
// never triggers them.
package sections
