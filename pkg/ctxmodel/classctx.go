// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package ctxmodel infers architectural role and behavioral context for
// classes and functions from graph structure, so downstream detectors can
// scale thresholds and severities to what a class or function actually is
// rather than applying one-size-fits-all heuristics.
package ctxmodel

import (
	"fmt"
	"strings"

	"github.com/kraklabs/repotoire/pkg/graph"
)

// ClassRole is the inferred architectural role of a class.
type ClassRole string

const (
	RoleFrameworkCore ClassRole = "framework_core"
	RoleFacade        ClassRole = "facade"
	RoleEntryPoint    ClassRole = "entry_point"
	RoleUtility       ClassRole = "utility"
	RoleDataClass     ClassRole = "data_class"
	RoleApplication   ClassRole = "application"
)

// SeverityMultiplier scales god-class finding severity by role: framework
// cores are never flagged, facades/entry-points/utilities/data-classes are
// proportionally discounted, ordinary application classes are unscaled.
func (r ClassRole) SeverityMultiplier() float64 {
	switch r {
	case RoleFrameworkCore:
		return 0.0
	case RoleFacade:
		return 0.3
	case RoleEntryPoint:
		return 0.5
	case RoleDataClass:
		return 0.6
	case RoleUtility:
		return 0.7
	default:
		return 1.0
	}
}

// ThresholdScale scales a size-based threshold (method count, LOC) before
// comparing it against a class with this role. A zero return means
// "unbounded / never flag" (FrameworkCore).
func (r ClassRole) ThresholdScale() float64 {
	switch r {
	case RoleFrameworkCore:
		return 0
	case RoleFacade:
		return 3
	case RoleEntryPoint:
		return 2
	case RoleDataClass:
		return 2
	case RoleUtility:
		return 1.5
	default:
		return 1
	}
}

var frameworkCoreNames = map[string]bool{
	"Flask": true, "Sanic": true, "FastAPI": true, "Django": true, "Bottle": true, "Tornado": true,
	"Application": true, "App": true, "Blueprint": true, "Scaffold": true,
	"Express": true, "Koa": true, "Hapi": true, "Fastify": true, "NestFactory": true,
	"SpringApplication": true,
	"Gin": true, "Echo": true, "Fiber": true, "Mux": true, "Server": true,
	"Router": true, "Gateway": true, "Proxy": true,
}

var frameworkPatterns = []string{"Application", "Framework", "Server", "Gateway", "Router"}

const (
	thinWrapperComplexity = 3.0
	facadeDelegationRatio = 0.6
)

// ClassContext is the computed behavioral profile of a single class.
type ClassContext struct {
	QualifiedName graph.QualifiedName
	Name          string
	FilePath      string

	MethodCount          int
	LOC                  int
	Complexity           float64
	AvgMethodComplexity  float64
	DelegatingMethods    int
	DelegationRatio      float64
	PublicMethods        int
	ExternalDependencies int
	Usages               int

	Role            ClassRole
	RoleReason      string
	IsTest          bool
	IsFrameworkPath bool
}

// SkipGodClass reports whether this class should never be flagged as a
// god class regardless of size.
func (c *ClassContext) SkipGodClass() bool {
	return c.Role == RoleFrameworkCore || c.IsFrameworkPath
}

// AdjustedThresholds scales baseMethods/baseLOC by the class's role.
func (c *ClassContext) AdjustedThresholds(baseMethods, baseLOC int) (methods int, loc int, unbounded bool) {
	scale := c.Role.ThresholdScale()
	if scale == 0 {
		return 0, 0, true
	}
	return int(float64(baseMethods) * scale), int(float64(baseLOC) * scale), false
}

// BuildClassContexts computes a ClassContext for every class known to the
// prefetched query cache.
func BuildClassContexts(qc *graph.QueryCache) map[graph.QualifiedName]*ClassContext {
	out := make(map[graph.QualifiedName]*ClassContext, qc.TotalClasses())

	for _, cd := range qc.AllClasses() {
		out[cd.Node.QualifiedName] = buildOne(qc, cd)
	}
	return out
}

func buildOne(qc *graph.QueryCache, cd *graph.ClassData) *ClassContext {
	methodCount := cd.Node.PropFloat("methodCount", 0)
	if methodCount == 0 {
		methodCount = float64(len(cd.Methods))
	}

	methodSet := make(map[graph.QualifiedName]bool, len(cd.Methods))
	for _, m := range cd.Methods {
		methodSet[m] = true
	}

	var totalComplexity float64
	publicMethods := 0
	delegating := 0
	externalDeps := make(map[string]bool)

	for _, mqn := range cd.Methods {
		fd, ok := qc.GetFunction(mqn)
		if !ok {
			continue
		}
		totalComplexity += fd.Node.PropFloat("complexity", 0)
		if !strings.HasPrefix(fd.Node.Name, "_") {
			publicMethods++
		}

		externalCall := false
		for _, callee := range fd.Calls {
			if methodSet[callee] {
				continue
			}
			externalCall = true
			externalDeps[externalModule(string(callee))] = true
		}
		if externalCall {
			delegating++
		}
	}

	avgComplexity := 0.0
	if methodCount > 0 {
		avgComplexity = totalComplexity / methodCount
	}
	delegationRatio := 0.0
	if methodCount > 0 {
		delegationRatio = float64(delegating) / methodCount
	}

	isTest := isTestPath(cd.Node.FilePath)
	isFrameworkPath := isFrameworkPath(cd.Node.FilePath)
	role, reason := inferRole(cd.Node.Name, int(methodCount), avgComplexity, delegationRatio, len(cd.Users), isFrameworkPath)

	return &ClassContext{
		QualifiedName:        cd.Node.QualifiedName,
		Name:                 cd.Node.Name,
		FilePath:             cd.Node.FilePath,
		MethodCount:          int(methodCount),
		LOC:                  cd.Node.LineEnd - cd.Node.LineStart + 1,
		Complexity:           totalComplexity,
		AvgMethodComplexity:  avgComplexity,
		DelegatingMethods:    delegating,
		DelegationRatio:      delegationRatio,
		PublicMethods:        publicMethods,
		ExternalDependencies: len(externalDeps),
		Usages:               len(cd.Users),
		Role:                 role,
		RoleReason:           reason,
		IsTest:               isTest,
		IsFrameworkPath:      isFrameworkPath,
	}
}

func externalModule(qn string) string {
	parts := strings.Split(qn, "::")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return qn
}

func inferRole(name string, methodCount int, avgComplexity, delegationRatio float64, usages int, isFrameworkPath bool) (ClassRole, string) {
	if frameworkCoreNames[name] {
		return RoleFrameworkCore, fmt.Sprintf("Known framework class: %s", name)
	}
	for _, p := range frameworkPatterns {
		if strings.Contains(name, p) {
			return RoleFrameworkCore, fmt.Sprintf("Framework pattern in name: %s", name)
		}
	}
	if isFrameworkPath {
		return RoleFrameworkCore, "In framework/vendor path"
	}
	if methodCount >= 10 && avgComplexity <= thinWrapperComplexity && delegationRatio >= facadeDelegationRatio {
		return RoleFacade, fmt.Sprintf("Facade pattern: %d methods, avg complexity %.1f, %.0f%% delegate", methodCount, avgComplexity, delegationRatio*100)
	}
	if usages >= 5 && methodCount >= 10 {
		return RoleEntryPoint, fmt.Sprintf("Entry point: used by %d other classes", usages)
	}
	if avgComplexity <= 1.5 && methodCount <= 20 {
		return RoleDataClass, fmt.Sprintf("Data class: avg complexity %.1f", avgComplexity)
	}
	if methodCount <= 15 && usages >= 3 {
		return RoleUtility, fmt.Sprintf("Utility class: %d methods, used by %d others", methodCount, usages)
	}
	return RoleApplication, "Standard application class"
}

func isTestPath(path string) bool {
	lower := strings.ToLower(path)
	return strings.Contains(lower, "/test/") ||
		strings.Contains(lower, "/tests/") ||
		strings.Contains(lower, "/__tests__/") ||
		strings.Contains(lower, "/spec/") ||
		strings.HasSuffix(lower, "_test.go") ||
		strings.HasSuffix(lower, "_test.py") ||
		strings.HasSuffix(lower, ".test.ts") ||
		strings.HasSuffix(lower, ".test.js") ||
		strings.HasSuffix(lower, ".spec.ts") ||
		strings.HasSuffix(lower, ".spec.js")
}

func isFrameworkPath(path string) bool {
	lower := strings.ToLower(path)
	return strings.Contains(lower, "/node_modules/") ||
		strings.Contains(lower, "/site-packages/") ||
		strings.Contains(lower, "/vendor/") ||
		strings.Contains(lower, "/.venv/") ||
		strings.Contains(lower, "/venv/") ||
		strings.Contains(lower, "/dist-packages/")
}
