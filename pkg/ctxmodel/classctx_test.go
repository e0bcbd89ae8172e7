// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package ctxmodel

import (
	"fmt"
	"testing"

	"github.com/kraklabs/repotoire/pkg/graph"
	itesting "github.com/kraklabs/repotoire/internal/testing"
)

func contextFor(t *testing.T, s *graph.Store, qn graph.QualifiedName) *ClassContext {
	t.Helper()
	qc := graph.NewQueryCache(s)
	qc.Prefetch()
	ctxs := BuildClassContexts(qc)
	cc, ok := ctxs[qn]
	if !ok {
		t.Fatalf("no context built for %s", qn)
	}
	return cc
}

func TestInferRoleFrameworkCoreByName(t *testing.T) {
	s := itesting.NewTestStore(t)
	cls := itesting.InsertTestClass(t, s, "app.py", "Flask", 1, 10)
	cc := contextFor(t, s, cls)
	if cc.Role != RoleFrameworkCore {
		t.Errorf("expected RoleFrameworkCore, got %s (%s)", cc.Role, cc.RoleReason)
	}
	if !cc.SkipGodClass() {
		t.Error("expected framework core to skip god-class detection")
	}
}

func TestInferRoleFrameworkPatternInName(t *testing.T) {
	s := itesting.NewTestStore(t)
	cls := itesting.InsertTestClass(t, s, "app.go", "ProxyServer", 1, 10)
	cc := contextFor(t, s, cls)
	if cc.Role != RoleFrameworkCore {
		t.Errorf("expected RoleFrameworkCore by pattern, got %s (%s)", cc.Role, cc.RoleReason)
	}
}

func TestInferRoleFacade(t *testing.T) {
	s := itesting.NewTestStore(t)
	target := itesting.InsertTestClass(t, s, "svc.go", "Target", 1, 5)
	targetMethod := itesting.InsertTestMethod(t, s, target, "svc.go", "Do", 2, 3, 1.0)

	wrapper := itesting.InsertTestClass(t, s, "svc.go", "Wrapper", 10, 60)
	for i := 0; i < 10; i++ {
		start := 11 + i*5
		m := itesting.InsertTestMethod(t, s, wrapper, "svc.go", fmt.Sprintf("M%d", i), start, start+1, 1.0)
		itesting.InsertTestCalls(t, s, m, targetMethod)
	}

	cc := contextFor(t, s, wrapper)
	if cc.Role != RoleFacade {
		t.Errorf("expected RoleFacade, got %s (%s); delegationRatio=%f avgComplexity=%f", cc.Role, cc.RoleReason, cc.DelegationRatio, cc.AvgMethodComplexity)
	}
}

func TestInferRoleEntryPoint(t *testing.T) {
	s := itesting.NewTestStore(t)
	hub := itesting.InsertTestClass(t, s, "hub.go", "Hub", 1, 100)
	var hubMethods []graph.QualifiedName
	for i := 0; i < 10; i++ {
		start := 2 + i*5
		m := itesting.InsertTestMethod(t, s, hub, "hub.go", fmt.Sprintf("M%d", i), start, start+1, 5.0)
		hubMethods = append(hubMethods, m)
	}

	for i := 0; i < 5; i++ {
		file := fmt.Sprintf("caller%d.go", i)
		callerClass := itesting.InsertTestClass(t, s, file, fmt.Sprintf("Caller%d", i), 1, 10)
		caller := itesting.InsertTestMethod(t, s, callerClass, file, "Use", 2, 3, 1.0)
		itesting.InsertTestCalls(t, s, caller, hubMethods[i])
	}

	cc := contextFor(t, s, hub)
	if cc.Role != RoleEntryPoint {
		t.Errorf("expected RoleEntryPoint, got %s (%s); usages=%d avgComplexity=%f", cc.Role, cc.RoleReason, cc.Usages, cc.AvgMethodComplexity)
	}
}

func TestInferRoleDataClass(t *testing.T) {
	s := itesting.NewTestStore(t)
	cls := itesting.InsertTestClass(t, s, "model.go", "Point", 1, 20)
	for i := 0; i < 3; i++ {
		start := 2 + i*3
		itesting.InsertTestMethod(t, s, cls, "model.go", fmt.Sprintf("Get%d", i), start, start+1, 1.0)
	}
	cc := contextFor(t, s, cls)
	if cc.Role != RoleDataClass {
		t.Errorf("expected RoleDataClass, got %s (%s); avgComplexity=%f methodCount=%d", cc.Role, cc.RoleReason, cc.AvgMethodComplexity, cc.MethodCount)
	}
}

func TestInferRoleUtility(t *testing.T) {
	s := itesting.NewTestStore(t)
	util := itesting.InsertTestClass(t, s, "strutil.go", "StrUtils", 1, 40)
	var utilMethods []graph.QualifiedName
	for i := 0; i < 5; i++ {
		start := 2 + i*3
		m := itesting.InsertTestMethod(t, s, util, "strutil.go", fmt.Sprintf("M%d", i), start, start+1, 2.0)
		utilMethods = append(utilMethods, m)
	}
	for i := 0; i < 3; i++ {
		file := fmt.Sprintf("caller2_%d.go", i)
		callerClass := itesting.InsertTestClass(t, s, file, fmt.Sprintf("Caller2_%d", i), 1, 10)
		caller := itesting.InsertTestMethod(t, s, callerClass, file, "Use", 2, 3, 1.0)
		itesting.InsertTestCalls(t, s, caller, utilMethods[i%len(utilMethods)])
	}

	cc := contextFor(t, s, util)
	if cc.Role != RoleUtility {
		t.Errorf("expected RoleUtility, got %s (%s); usages=%d methodCount=%d avgComplexity=%f", cc.Role, cc.RoleReason, cc.Usages, cc.MethodCount, cc.AvgMethodComplexity)
	}
}

func TestInferRoleApplicationDefault(t *testing.T) {
	s := itesting.NewTestStore(t)
	cls := itesting.InsertTestClass(t, s, "widget.go", "Widget", 1, 60)
	for i := 0; i < 8; i++ {
		start := 2 + i*5
		itesting.InsertTestMethod(t, s, cls, "widget.go", fmt.Sprintf("M%d", i), start, start+1, 5.0)
	}
	cc := contextFor(t, s, cls)
	if cc.Role != RoleApplication {
		t.Errorf("expected RoleApplication, got %s (%s)", cc.Role, cc.RoleReason)
	}
}

func TestIsFrameworkPathSkipsGodClass(t *testing.T) {
	s := itesting.NewTestStore(t)
	cls := itesting.InsertTestClass(t, s, "vendor/lib/thing.go", "Thing", 1, 500)
	for i := 0; i < 30; i++ {
		start := 2 + i*10
		itesting.InsertTestMethod(t, s, cls, "vendor/lib/thing.go", fmt.Sprintf("M%d", i), start, start+1, 5.0)
	}
	cc := contextFor(t, s, cls)
	if !cc.IsFrameworkPath {
		t.Error("expected vendor path to be detected as framework path")
	}
	if !cc.SkipGodClass() {
		t.Error("expected vendor-path class to skip god-class detection")
	}
}

func TestAdjustedThresholdsScaleByRole(t *testing.T) {
	cc := &ClassContext{Role: RoleFacade}
	methods, loc, unbounded := cc.AdjustedThresholds(10, 300)
	if unbounded {
		t.Fatal("facade should not be unbounded")
	}
	if methods != 30 || loc != 900 {
		t.Errorf("expected 3x scale for facade, got methods=%d loc=%d", methods, loc)
	}

	core := &ClassContext{Role: RoleFrameworkCore}
	_, _, unbounded = core.AdjustedThresholds(10, 300)
	if !unbounded {
		t.Error("expected framework core thresholds to be unbounded")
	}
}
