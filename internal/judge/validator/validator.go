// Package validator compares program output against expected answers.
package validator

import (
	"strconv"
	"strings"

	"codearena/internal/catalog"
)

// Validator checks one output string against one expected answer.
type Validator interface {
	Match(output, expected string) bool
}

// ForProblem returns the validator configured on the problem.
// Unknown modes fall back to exact matching.
func ForProblem(p *catalog.Problem) Validator {
	switch p.ValidatorMode {
	case catalog.ValidatorTolerantNumeric:
		return &TolerantNumeric{Tolerance: p.Tolerance}
	default:
		return Exact{}
	}
}

// Exact matches output after whitespace normalization: line endings are
// unified, trailing whitespace is stripped per line, and trailing blank
// lines are removed.
type Exact struct{}

func (Exact) Match(output, expected string) bool {
	return Normalize(output) == Normalize(expected)
}

// Normalize canonicalizes output for exact comparison.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// TolerantNumeric matches token by token. Tokens that parse as numbers on
// both sides compare within Tolerance; everything else compares exactly.
// Line structure must still agree.
type TolerantNumeric struct {
	Tolerance float64
}

func (v *TolerantNumeric) Match(output, expected string) bool {
	outLines := nonEmptyLines(output)
	expLines := nonEmptyLines(expected)
	if len(outLines) != len(expLines) {
		return false
	}
	for i := range outLines {
		outTokens := strings.Fields(outLines[i])
		expTokens := strings.Fields(expLines[i])
		if len(outTokens) != len(expTokens) {
			return false
		}
		for j := range outTokens {
			if !v.tokenMatch(outTokens[j], expTokens[j]) {
				return false
			}
		}
	}
	return true
}

func (v *TolerantNumeric) tokenMatch(got, want string) bool {
	gotNum, gotErr := strconv.ParseFloat(got, 64)
	wantNum, wantErr := strconv.ParseFloat(want, 64)
	if gotErr == nil && wantErr == nil {
		diff := gotNum - wantNum
		if diff < 0 {
			diff = -diff
		}
		return diff <= v.Tolerance
	}
	return got == want
}

func nonEmptyLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	raw := strings.Split(s, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
