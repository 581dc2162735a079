/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit provides a per-identity fixed-window request rate limiter.
// Each identity gets a window anchored to its first counted request; the counter
// resets when the window elapses. The classic fixed-window boundary artifact
// (up to twice the nominal rate across a window edge) is an accepted property
// of the algorithm, chosen for O(1) memory and update cost per identity.
// Expired windows are reclaimed by a periodic sweep (see Limiter.RunPeriodicSweep).
package ratelimit
