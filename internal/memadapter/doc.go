// Package memadapter implements the InMemory adapter: a single-process
// reference implementation of the FIFO admission rule, used directly by
// callers that don't need cross-process coordination and as the reference
// whose admission rule the distributed adapter's isAdmitted mirrors.
package memadapter
