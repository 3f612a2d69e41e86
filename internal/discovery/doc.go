// Package discovery turns raw advertisements into deduplicated device records.
//
// A Session owns one bounded Cache for the lifetime of a ranging session. Each
// advertisement is fingerprinted and looked up: unknown fingerprints create a
// record, which may evict the oldest-inserted record once the cache is full;
// known fingerprints keep their position and only take the new signal
// strength. The record is then handed to the Listener through a Dispatcher,
// a single goroutine that preserves discovery order regardless of which
// goroutine raised the advertisement.
package discovery
