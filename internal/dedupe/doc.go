// Package dedupe drops upstream events that are delivered more than once.
//
// A Set remembers keys for a TTL, up to a size cap. Seen is the only
// question callers ask: it returns true for a key recorded within the TTL
// and otherwise records the key. The oldest key is evicted when the cap is
// reached, and a background sweep purges expired keys until Close.
package dedupe
