// Package analytics turns registration datasets into API-ready views:
// fleet overview, yearly and quarterly growth trends, manufacturer
// rankings, seasonal patterns, and investor insight lines.
//
// The package owns data access and response caching; the arithmetic
// itself lives in pkg/growth and stays pure. Computed responses are
// memoized in an LRU keyed by dataset revision, so a reload invalidates
// everything without explicit bookkeeping.
package analytics
