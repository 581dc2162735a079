/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package testutil provides helpers for testing code.
package testutil

type tHelper interface {
	Helper()
}
