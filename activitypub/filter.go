package activitypub

import (
	"fmt"
	"regexp"
)

// ContentFilter screens incoming text against the configured pattern.
// A nil pattern matches nothing.
type ContentFilter struct {
	re *regexp.Regexp
}

func NewContentFilter(re *regexp.Regexp) *ContentFilter {
	return &ContentFilter{re: re}
}

// Check returns ErrContentRejected if s matches the filter. Names and titles
// are checked, they are rejected outright rather than redacted.
func (f *ContentFilter) Check(s string) error {
	if f.re != nil && f.re.MatchString(s) {
		return fmt.Errorf("%w: %q", ErrContentRejected, s)
	}
	return nil
}

// Strip replaces every match in s with "*removed*".
func (f *ContentFilter) Strip(s string) string {
	if f.re == nil {
		return s
	}
	return f.re.ReplaceAllString(s, removed)
}
