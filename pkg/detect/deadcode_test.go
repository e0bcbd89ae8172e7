// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package detect

import (
	"context"
	"testing"

	ktesting "github.com/kraklabs/repotoire/internal/testing"
	"github.com/kraklabs/repotoire/pkg/finding"
	"github.com/kraklabs/repotoire/pkg/graph"
)

func TestDeadCodeEntryPointsAndMagicMethods(t *testing.T) {
	d := NewDeadCodeDetector(DetectorConfig{})
	if !d.isEntryPoint("main") {
		t.Error("main should be an entry point")
	}
	if !d.isEntryPoint("__init__") {
		t.Error("__init__ should be an entry point")
	}
	if !d.isEntryPoint("test_something") {
		t.Error("test_ prefix should be an entry point")
	}
	if d.isEntryPoint("my_function") {
		t.Error("my_function should not be an entry point")
	}
	if !d.isMagicMethod("__str__") {
		t.Error("__str__ should be a magic method")
	}
	if d.isMagicMethod("my_method") {
		t.Error("my_method should not be a magic method")
	}
}

func TestDeadCodeCallbackPatterns(t *testing.T) {
	d := NewDeadCodeDetector(DetectorConfig{})
	for _, name := range []string{"onClick", "onSubmit", "onLoad", "onMouseOver", "handleClick", "handleSubmit", "handleChange", "my_callback", "event_handler", "click_listener"} {
		if !d.isCallbackPattern(name) {
			t.Errorf("expected %s to match callback pattern", name)
		}
	}
	for _, name := range []string{"online", "only", "handler_setup", "regular_function"} {
		if d.isCallbackPattern(name) {
			t.Errorf("expected %s to NOT match callback pattern", name)
		}
	}
}

func TestDeadCodeFrameworkAutoLoad(t *testing.T) {
	d := NewDeadCodeDetector(DetectorConfig{})
	for _, path := range []string{
		"src/plugins/auth.ts", "plugins/db.js", "/app/routes/api/users.ts",
		"src/handlers/user-created.ts", "handlers/order.js",
		"src/commands/deploy.ts", "commands/init.js",
		"db/migrations/001_create_users.ts", "seeds/users.js",
	} {
		if !d.isFrameworkAutoLoad(path) {
			t.Errorf("expected %s to be a framework autoload path", path)
		}
	}
	for _, path := range []string{"src/utils/helpers.ts", "lib/core.js"} {
		if d.isFrameworkAutoLoad(path) {
			t.Errorf("expected %s to NOT be a framework autoload path", path)
		}
	}
}

func TestDeadCodeSeverityThresholds(t *testing.T) {
	d := NewDeadCodeDetector(DetectorConfig{})
	if sev := d.calculateFunctionSeverity(5); sev != finding.Low {
		t.Errorf("expected Low for 5 LOC, got %s", sev)
	}
	if sev := d.calculateFunctionSeverity(10); sev != finding.Medium {
		t.Errorf("expected Medium for 10 LOC, got %s", sev)
	}
	if sev := d.calculateFunctionSeverity(25); sev != finding.High {
		t.Errorf("expected High for 25 LOC, got %s", sev)
	}
}

func TestDeadCodeDetectorFlagsUnreferencedFunction(t *testing.T) {
	s := ktesting.NewTestStore(t)
	ktesting.InsertTestFile(t, s, "app/utils.py", 30)
	ktesting.InsertTestFunction(t, s, "app/utils.py", "unused_helper", 1, 25, 2.0)
	ktesting.InsertTestFunction(t, s, "app/utils.py", "main", 26, 30, 1.0)

	qc := graph.NewQueryCache(s)
	qc.Prefetch()

	d := NewDeadCodeDetector(DetectorConfig{})
	findings, err := d.Detect(context.Background(), qc, nil)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding (main excluded), got %d: %+v", len(findings), findings)
	}
	if findings[0].Severity != finding.High {
		t.Errorf("expected High severity for 25-line dead function, got %s", findings[0].Severity)
	}
}

func TestDeadCodeDetectorSkipsFrameworkAutoload(t *testing.T) {
	s := ktesting.NewTestStore(t)
	ktesting.InsertTestFile(t, s, "src/routes/users.ts", 10)
	ktesting.InsertTestFunction(t, s, "src/routes/users.ts", "getUsers", 1, 9, 1.0)

	qc := graph.NewQueryCache(s)
	qc.Prefetch()

	d := NewDeadCodeDetector(DetectorConfig{})
	findings, err := d.Detect(context.Background(), qc, nil)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(findings) != 0 {
		t.Fatalf("expected no findings for route-autoload file, got %d", len(findings))
	}
}
