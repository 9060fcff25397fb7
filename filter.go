// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package wrappe

import (
	"fmt"

	"github.com/woozymasta/pathrules"
)

// sourceMatcher holds compiled include/exclude rules for source selection.
// A nil matcher includes everything.
type sourceMatcher struct {
	matcher *pathrules.Matcher
}

// newSourceMatcher compiles include/exclude path rules.
func newSourceMatcher(rules []pathrules.Rule, opts pathrules.MatcherOptions) (*sourceMatcher, error) {
	rules = normalizeSourceRules(rules)
	if len(rules) == 0 {
		return nil, nil
	}

	matcher, err := pathrules.NewMatcher(rules, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: compile rules: %w", ErrInvalidRules, err)
	}

	return &sourceMatcher{matcher: matcher}, nil
}

// normalizeSourceRules normalizes rule patterns and drops empty patterns.
func normalizeSourceRules(rules []pathrules.Rule) []pathrules.Rule {
	normalized := make([]pathrules.Rule, 0, len(rules))
	for _, rule := range rules {
		pattern := NormalizePath(rule.Pattern)
		if pattern == "" {
			continue
		}

		normalized = append(normalized, pathrules.Rule{
			Action:  rule.Action,
			Pattern: pattern,
		})
	}

	return normalized
}

// Match reports whether the source-relative path should be packed.
// Excluding a directory drops its whole subtree through the walk.
func (m *sourceMatcher) Match(rel string, isDir bool) bool {
	if m == nil || m.matcher == nil {
		return true
	}
	if rel == "" {
		return true
	}

	return m.matcher.Included(rel, isDir)
}
