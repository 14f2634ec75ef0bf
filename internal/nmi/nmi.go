// Package nmi validates National Metering Identifiers against operator
// configured allow/deny pattern groups.
package nmi

import (
	"fmt"
	"regexp"
	"strings"
)

// Validator screens NMIs with two pattern groups: the value must match at
// least one include pattern (when any are configured) and must match no
// exclude pattern. An empty validator accepts everything.
type Validator struct {
	includes []*regexp.Regexp
	excludes []*regexp.Regexp
}

// NewValidator compiles the pattern groups. Each entry may itself hold
// several patterns joined with semicolons, matching how the groups are
// written in config.
func NewValidator(includes, excludes []string) (*Validator, error) {
	inc, err := compileGroup(includes)
	if err != nil {
		return nil, fmt.Errorf("nmi: include pattern: %w", err)
	}
	exc, err := compileGroup(excludes)
	if err != nil {
		return nil, fmt.Errorf("nmi: exclude pattern: %w", err)
	}
	return &Validator{includes: inc, excludes: exc}, nil
}

func compileGroup(groups []string) ([]*regexp.Regexp, error) {
	var out []*regexp.Regexp
	for _, group := range groups {
		for _, pattern := range strings.Split(group, ";") {
			pattern = strings.TrimSpace(pattern)
			if pattern == "" {
				continue
			}
			re, err := regexp.Compile("^(?:" + pattern + ")$")
			if err != nil {
				return nil, err
			}
			out = append(out, re)
		}
	}
	return out, nil
}

// Valid reports whether the NMI passes both pattern groups.
func (v *Validator) Valid(nmi string) bool {
	for _, re := range v.excludes {
		if re.MatchString(nmi) {
			return false
		}
	}
	if len(v.includes) == 0 {
		return true
	}
	for _, re := range v.includes {
		if re.MatchString(nmi) {
			return true
		}
	}
	return false
}
