/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package lrucache provides an in-memory key table with LRU eviction, per-entry expiration,
// and Prometheus metrics. Rate limiters use it to keep per-client state bounded.
package lrucache
