package synclist

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrPatternMismatch is returned when a discovered artifact path does not
// contain the canisters marker segment.
var ErrPatternMismatch = errors.New("artifact path does not match canisters pattern")

// suffixPattern captures everything after the literal "canisters" segment.
var suffixPattern = regexp.MustCompile(`canisters([/\w.]+)$`)

// Rule is a source -> destination copy instruction for the file sync action
type Rule struct {
	Source         string
	Dest           string
	Replace        bool
	DeleteOrphaned bool
}

// NewRule derives the rule for an artifact path: the part after
// "canisters" is re-rooted under destPrefix.
func NewRule(source, destPrefix string) (Rule, error) {
	m := suffixPattern.FindStringSubmatch(source)
	if m == nil {
		return Rule{}, fmt.Errorf("%w: %s", ErrPatternMismatch, source)
	}

	return Rule{
		Source:         source,
		Dest:           destPrefix + m[1],
		Replace:        true,
		DeleteOrphaned: true,
	}, nil
}

// Render returns the YAML list item appended to the sync file
func (r Rule) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "  - source: %s\n", r.Source)
	fmt.Fprintf(&b, "    dest: %s\n", r.Dest)
	fmt.Fprintf(&b, "    replace: %t\n", r.Replace)
	fmt.Fprintf(&b, "    deleteOrphaned: %t\n", r.DeleteOrphaned)
	return b.String()
}
