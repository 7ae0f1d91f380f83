package store

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// relativeTimeParser combines the common and English rule sets, mirroring
// the teacher's own natural-language time parser (internal/timeparsing)
// which wraps this same library.
var relativeTimeParser = newRelativeTimeParser()

func newRelativeTimeParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseRelativeTime turns a natural-language expression such as "3 days
// ago" or "next monday" into a time.Time anchored at base. This is a
// convenience for building comparison values against time-valued fields
// (e.g. Symbol.Field("created_at").Gt(t)); it is not part of the core
// predicate/query contract.
func ParseRelativeTime(expr string, base time.Time) (time.Time, error) {
	r, err := relativeTimeParser.Parse(expr, base)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: parsing relative time %q: %w", expr, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("store: no relative time match for %q", expr)
	}
	return r.Time, nil
}
