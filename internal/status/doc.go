// Package status is the in-memory source of truth for service reachability.
//
// A Store holds one ServiceStatus per registered service. Writers go through
// Update, which serialises per service and keeps the newest result by check
// time, so a straggling older result can never regress a newer one. Readers
// either query the store or subscribe to its event stream.
package status
