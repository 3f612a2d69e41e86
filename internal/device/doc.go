// Package device defines discovered-device records and their fingerprints.
//
// A Record keeps the identity and advertisement payload captured at the first
// sighting of a device. Only the signal strength changes afterwards. The
// Fingerprint is computed once from identity and payload and is independent of
// signal strength, so repeated sightings of the same device resolve to the same
// key.
package device
