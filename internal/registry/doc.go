// Package registry holds the static set of monitored services. Descriptors are
// built once from configuration at startup and never change afterwards; the
// registry order is the order services appear in the configuration.
package registry
