/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package searchcache provides a bounded in-memory TTL cache for upstream search responses.
// The cache is limited both by the number of entries and by the estimated memory footprint;
// when either bound is exceeded, the least recently accessed entries are evicted.
// Expired entries are removed lazily on access and proactively by a periodic sweep
// (see Cache.RunPeriodicSweep).
package searchcache
