// Package worker implements the scan worker that owns the scanning hardware.
//
// All work runs on one serial executor in arrival order: bind requests,
// configuration hand-off, commands received over a binding's channel, and
// unbinds. At most one binding is active at a time. The worker keeps the
// configuration handed over at bind time and, while ranging, one discovery
// session registered as the adapter's scan callback; each ranging session
// gets a fresh session and cache.
//
// Every command carries the bind token minted for its binding. Commands
// with an invalid token, or from a binding that is no longer active, are
// logged, audited as REJECTED and never executed. A command of unknown kind
// is a protocol mismatch and goes to the fatal handler.
package worker
