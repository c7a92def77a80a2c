// Package cache stages fetched GraphQL query results so that readers can project individual
// fields out of them without re-fetching.
//
// Every query result is stored wholesale together with its fetch time. Reads come in two modes:
// freshness-checked reads return nothing once an entry's age reaches the configured TTL, while
// freshness-bypassing reads keep returning the last stored value for as long as the Store lives.
// Despite the "skip cache" naming used by API consumers, the bypassing mode still reads the
// cache; it skips only the freshness check.
//
// An entry whose data is nil (or the JSON literal null) is an explicit "fetched, nothing there"
// marker, which is distinct from a query that was never fetched at all.
package cache
