// Package testutil provides test doubles shared by package tests and the
// scenario harness: a scriptable remote source and cache backends that
// count, fail or hold back calls.
package testutil
