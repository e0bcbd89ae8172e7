// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package testing provides fixture helpers for unit tests throughout this
// module: building small in-memory graph.Store instances without going
// through the parser adapter.
//
// # Quick Start
//
//	func TestMyDetector(t *testing.T) {
//	    s := testing.NewTestStore(t)
//	    testing.InsertTestFile(t, s, "auth.go", 100)
//	    testing.InsertTestFunction(t, s, "auth.go", "HandleAuth", 10, 20, 3)
//	    // ... exercise the detector against s
//	}
package testing
