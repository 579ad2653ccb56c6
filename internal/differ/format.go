package differ

import (
	"fmt"
	"strings"
)

// FormatNotification renders the human-readable body of a change
// notification. Changes are grouped hierarchically by section, period
// and category, in the deterministic order Detect produced them.
func (r *Report) FormatNotification() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", r.Summary())

	var lastSection, lastPeriod, lastCategory string
	for _, c := range r.Changes {
		if c.SectionTitle != lastSection {
			fmt.Fprintf(&b, "\n%s\n", c.SectionTitle)
			lastSection = c.SectionTitle
			lastPeriod, lastCategory = "", ""
		}
		if c.PeriodName != lastPeriod {
			fmt.Fprintf(&b, "  %s\n", c.PeriodName)
			lastPeriod = c.PeriodName
			lastCategory = ""
		}
		if c.CategoryName != lastCategory {
			fmt.Fprintf(&b, "    %s\n", c.CategoryName)
			lastCategory = c.CategoryName
		}
		fmt.Fprintf(&b, "      %s\n", c.Summary())
	}
	return strings.TrimRight(b.String(), "\n")
}
