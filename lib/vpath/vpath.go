// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package vpath manipulates paths inside a drive. Paths always use "/"
// and carry no leading or trailing separator once cleaned: the root is
// the empty path. There is no "." or ".." traversal.
package vpath

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Separator divides path segments.
const Separator = "/"

// Restricted lists the characters an entry name may not contain.
const Restricted = "/*?"

// Clean trims separators from both ends and drops empty segments, so
// "/a//b/" becomes "a/b".
func Clean(path string) string {
	return strings.Join(Split(path), Separator)
}

// Split returns the non-empty segments of path.
func Split(path string) []string {
	var segments []string
	for segment := range strings.SplitSeq(path, Separator) {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	return segments
}

// Join combines path fragments. Empty fragments and separators at the
// fragment edges are ignored.
func Join(parts ...string) string {
	var segments []string
	for _, part := range parts {
		segments = append(segments, Split(part)...)
	}
	return strings.Join(segments, Separator)
}

// Base returns the last segment of path, or "" for the root.
func Base(path string) string {
	segments := Split(path)
	if len(segments) == 0 {
		return ""
	}
	return segments[len(segments)-1]
}

// Dir returns path without its last segment.
func Dir(path string) string {
	segments := Split(path)
	if len(segments) <= 1 {
		return ""
	}
	return strings.Join(segments[:len(segments)-1], Separator)
}

// SplitName separates a file name into its name and extension at the
// first dot that is not the leading character: "archive.tar.gz" gives
// ("archive", "tar.gz") and ".profile" has no extension.
func SplitName(fullName string) (name, extension string) {
	if index := strings.Index(fullName[min(1, len(fullName)):], "."); index >= 0 {
		index++
		return fullName[:index], fullName[index+1:]
	}
	return fullName, ""
}

// JoinName is the inverse of SplitName.
func JoinName(name, extension string) string {
	if extension == "" {
		return name
	}
	return name + "." + extension
}

// ValidateName reports whether name can be used for an entry.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return errors.New("name is empty")
	case name == "." || name == "..":
		return fmt.Errorf("name %q is reserved", name)
	case strings.ContainsAny(name, Restricted):
		return fmt.Errorf("name %q contains one of the restricted characters %q", name, Restricted)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("name %q contains a NUL byte", name)
	}
	return nil
}

// EqualFold compares two names or paths the way sibling collisions are
// checked: case-insensitively.
func EqualFold(a, b string) bool { return strings.EqualFold(a, b) }

// Glob compiles a search pattern into an anchored, case-insensitive
// regular expression over a leaf name. "*" matches any run of
// characters and "?" matches exactly one; everything else matches
// itself. An empty pattern matches every name.
func Glob(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		pattern = "*"
	}
	var expression strings.Builder
	expression.WriteString("(?is)^")
	for _, r := range pattern {
		switch r {
		case '*':
			expression.WriteString(".*")
		case '?':
			expression.WriteString(".")
		default:
			expression.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	expression.WriteString("$")
	compiled, err := regexp.Compile(expression.String())
	if err != nil {
		return nil, fmt.Errorf("compiling pattern %q: %w", pattern, err)
	}
	return compiled, nil
}
