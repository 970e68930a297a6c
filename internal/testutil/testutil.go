// Package testutil provides test helpers for mboxvault tests.
//
// The package is organized into focused files:
//   - assert.go: assertion helpers (MustNoErr, AssertStrings, etc.)
//   - store_helpers.go: database test setup (NewTestStore)
//   - fs_helpers.go: filesystem operations (WriteFile, ReadFile, MustExist)
//   - mbox_helpers.go: mbox archive construction (MboxBuilder, WriteMbox)
package testutil
