// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package wrappe

import (
	"testing"

	"github.com/woozymasta/pathrules"
)

func TestSourceMatcherNilIncludesEverything(t *testing.T) {
	t.Parallel()

	matcher, err := newSourceMatcher(nil, pathrules.MatcherOptions{})
	if err != nil {
		t.Fatalf("newSourceMatcher: %v", err)
	}
	if matcher != nil {
		t.Fatal("empty rules produced a matcher")
	}

	if !matcher.Match("any/path", false) {
		t.Fatal("nil matcher excluded a path")
	}
	if !matcher.Match("", true) {
		t.Fatal("nil matcher excluded the root")
	}
}

func TestSourceMatcherExclude(t *testing.T) {
	t.Parallel()

	matcher, err := newSourceMatcher(
		[]pathrules.Rule{{Action: pathrules.ActionExclude, Pattern: "cache"}},
		pathrules.MatcherOptions{CaseInsensitive: true, DefaultAction: pathrules.ActionInclude},
	)
	if err != nil {
		t.Fatalf("newSourceMatcher: %v", err)
	}

	if matcher.Match("cache", true) {
		t.Fatal("excluded directory matched")
	}
	if !matcher.Match("data", true) {
		t.Fatal("unrelated directory excluded")
	}
}

func TestNormalizeSourceRulesDropsEmpty(t *testing.T) {
	t.Parallel()

	rules := normalizeSourceRules([]pathrules.Rule{
		{Action: pathrules.ActionExclude, Pattern: "  "},
		{Action: pathrules.ActionExclude, Pattern: `.\tmp\`},
	})

	if len(rules) != 1 {
		t.Fatalf("rules=%d, want 1", len(rules))
	}
	if rules[0].Pattern != "tmp" {
		t.Fatalf("pattern=%q, want %q", rules[0].Pattern, "tmp")
	}
}
