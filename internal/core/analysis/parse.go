package analysis

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ewilliams-labs/widdle/internal/core/domain"
)

// labelSeparator is the only separator recognized between labels. "Rock,Pop"
// is a single label.
const labelSeparator = ", "

// ParseLabels splits a genre or mood response into labels. A blank response
// yields an empty slice rather than one empty label.
func ParseLabels(text string) []string {
	labels, _ := parseLabels(text)
	return labels
}

// ParseTempo reads the leading base-10 integer of the trimmed response:
// an optional sign followed by digits, stopping at the first other character.
// "120 BPM" is 120, "120.5" is 120, "approximately 120" is 0.
func ParseTempo(text string) int {
	bpm, _ := parseTempo(text)
	return bpm
}

// ParseText returns the trimmed response verbatim. Any text is accepted as a
// key or time signature.
func ParseText(text string) string {
	s, _ := parseText(text)
	return s
}

func parseLabels(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return []string{}, fmt.Errorf("%w: empty label list", domain.ErrUnparseableResponse)
	}
	parts := strings.Split(text, labelSeparator)
	labels := make([]string, 0, len(parts))
	for _, p := range parts {
		labels = append(labels, strings.TrimSpace(p))
	}
	return labels, nil
}

func parseTempo(text string) (int, error) {
	s := strings.TrimSpace(text)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digitsStart := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digitsStart {
		return 0, fmt.Errorf("%w: no leading integer in %q", domain.ErrUnparseableResponse, truncate(s, 40))
	}
	bpm, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrUnparseableResponse, err)
	}
	return bpm, nil
}

func parseText(text string) (string, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return "", fmt.Errorf("%w: empty response", domain.ErrUnparseableResponse)
	}
	return s, nil
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
