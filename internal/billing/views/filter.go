package views

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/odyssey-erp/odyssey-billing/internal/billing"
)

var folder = cases.Fold()

// normalize folds case and strips combining marks so "Jose" matches "JOSÉ".
func normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return folder.String(strings.TrimSpace(out))
}

// groupedStatus maps the grouped-mode vocabulary onto derived statuses.
// "all" clears the filter.
var groupedStatus = map[string]billing.Status{
	"active":    billing.StatusPending,
	"pending":   billing.StatusPending,
	"inactive":  billing.StatusCancelled,
	"cancelled": billing.StatusCancelled,
}

type matcher struct {
	statuses     map[billing.Status]struct{}
	grouped      bool
	search       string
	deliveryOnly bool
	rejectAll    bool
}

func newMatcher(mode Mode, f Filters) matcher {
	m := matcher{
		grouped:      mode != ModeExpanded,
		search:       normalize(f.Search),
		deliveryOnly: f.DeliveryOnly,
	}
	requested := false
	for _, raw := range f.Statuses {
		value := strings.ToLower(strings.TrimSpace(raw))
		if value == "" {
			continue
		}
		if value == "all" {
			m.statuses = nil
			requested = false
			break
		}
		requested = true
		var status billing.Status
		if m.grouped {
			s, ok := groupedStatus[value]
			if !ok {
				continue
			}
			status = s
		} else {
			status = billing.Status(value)
			if !status.IsValid() {
				continue
			}
		}
		if m.statuses == nil {
			m.statuses = make(map[billing.Status]struct{})
		}
		m.statuses[status] = struct{}{}
	}
	// a filter naming only values outside this mode's vocabulary matches nothing
	m.rejectAll = requested && len(m.statuses) == 0
	return m
}

func (m matcher) match(v VirtualBillingView) bool {
	if m.rejectAll {
		return false
	}
	if m.deliveryOnly && !v.DeliveryBased {
		return false
	}
	if !m.matchStatus(v) {
		return false
	}
	if m.search == "" {
		return true
	}
	return strings.Contains(normalize(v.ClientName+" "+v.Description), m.search)
}

// matchStatus compares the derived status in grouped mode and any member
// status in expanded mode.
func (m matcher) matchStatus(v VirtualBillingView) bool {
	if len(m.statuses) == 0 {
		return true
	}
	if m.grouped {
		_, ok := m.statuses[v.Status]
		return ok
	}
	for _, s := range v.MemberStatuses {
		if _, ok := m.statuses[s]; ok {
			return true
		}
	}
	return false
}
