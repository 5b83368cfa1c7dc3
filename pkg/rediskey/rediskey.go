package rediskey

import "fmt"

// Namespaces used across the core's Redis-backed coordination: the
// revenue-window advisory lock (§5 of SPEC_FULL.md) and the sequence
// generator's counters (§10.5).
const (
	WindowLockPrefix  = "window:lock"
	SequencePrefix    = "seq"
	IdempotencyPrefix = "window:idem"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildWindowLockKey returns the advisory-lock key for a
// (windowStart, windowEnd, paymentType) revenue window run, guaranteeing
// finalize_revenue_window cannot execute concurrently for the same window.
func BuildWindowLockKey(windowStart, windowEnd, paymentType string) string {
	return NamespaceKey(WindowLockPrefix, fmt.Sprintf("%s:%s:%s", windowStart, windowEnd, paymentType))
}

// BuildSequenceKey returns the Redis INCR counter key for a named sequence
// (e.g. "txn" for ledger transaction references, "window" for window run
// idempotency suffixes).
func BuildSequenceKey(name string) string {
	return NamespaceKey(SequencePrefix, name)
}

// BuildIdempotencyKey returns the key used to dedupe repeated
// finalize_revenue_window calls carrying the same idempotency token.
func BuildIdempotencyKey(token string) string {
	return NamespaceKey(IdempotencyPrefix, token)
}
