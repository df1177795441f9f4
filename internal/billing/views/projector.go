package views

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-billing/internal/billing"
)

// Project reshapes raw definitions and installments into display rows for
// scope and mode, then applies filters and sorts by earliest date. It never
// fails; missing input yields an empty slice.
func Project(input ProjectionInput, scope Scope, mode Mode, filters Filters) []VirtualBillingView {
	if mode != ModeExpanded {
		mode = ModeGrouped
	}

	groups := openGroups(input)
	var out []VirtualBillingView
	if scope == ScopeOpen || scope == ScopeAll || scope == "" {
		out = append(out, projectOpen(groups, input.ClientNames, mode)...)
	}
	if scope == ScopeClosed || scope == ScopeAll || scope == "" {
		out = append(out, projectClosed(input, activeOpenClients(groups), mode)...)
	}

	m := newMatcher(mode, filters)
	filtered := make([]VirtualBillingView, 0, len(out))
	for _, view := range out {
		if m.match(view) {
			filtered = append(filtered, view)
		}
	}
	sortViews(filtered)
	return filtered
}

type groupKey struct {
	clientID int64
	base     string
}

type openGroup struct {
	key     groupKey
	def     *billing.BillingDefinition
	members []billing.Installment
}

// status is cancelled when any member or the definition itself is cancelled.
func (g *openGroup) status() billing.Status {
	if g.def != nil && g.def.Status == billing.StatusCancelled {
		return billing.StatusCancelled
	}
	for _, m := range g.members {
		if m.Status == billing.StatusCancelled {
			return billing.StatusCancelled
		}
	}
	return billing.StatusPending
}

func openGroups(input ProjectionInput) []*openGroup {
	index := make(map[groupKey]*openGroup)
	var order []*openGroup
	get := func(key groupKey) *openGroup {
		g, ok := index[key]
		if !ok {
			g = &openGroup{key: key}
			index[key] = g
			order = append(order, g)
		}
		return g
	}

	for i := range input.Definitions {
		def := &input.Definitions[i]
		g := get(groupKey{clientID: def.ClientID, base: billing.StripInstallmentSuffix(def.Description)})
		if g.def == nil {
			g.def = def
		}
	}
	for _, row := range input.Installments {
		if row.BillingDefinitionID == nil {
			continue
		}
		g := get(groupKey{clientID: row.ClientID, base: billing.StripInstallmentSuffix(row.Description)})
		g.members = append(g.members, row)
	}
	for _, g := range order {
		sort.SliceStable(g.members, func(i, j int) bool {
			return g.members[i].Number() < g.members[j].Number()
		})
	}
	return order
}

func activeOpenClients(groups []*openGroup) map[int64]struct{} {
	active := make(map[int64]struct{})
	for _, g := range groups {
		if g.status() != billing.StatusCancelled {
			active[g.key.clientID] = struct{}{}
		}
	}
	return active
}

func projectOpen(groups []*openGroup, names map[int64]string, mode Mode) []VirtualBillingView {
	var out []VirtualBillingView
	for _, g := range groups {
		if mode == ModeExpanded {
			for _, row := range g.members {
				out = append(out, expandedView(row, ScopeOpen, names))
			}
			continue
		}
		out = append(out, groupedOpenView(g, names))
	}
	return out
}

func groupedOpenView(g *openGroup, names map[int64]string) VirtualBillingView {
	view := VirtualBillingView{
		Key:         fmt.Sprintf("open:%d:%s", g.key.clientID, g.key.base),
		Scope:       ScopeOpen,
		Mode:        ModeGrouped,
		ClientID:    g.key.clientID,
		ClientName:  names[g.key.clientID],
		Description: g.key.base,
		Status:      g.status(),
	}
	if g.def != nil {
		id := g.def.ID
		view.BillingDefinitionID = &id
		view.Amount = g.def.Amount
		view.DueDay = g.def.DueDay
		view.Installments = g.def.Installments
	}
	if len(g.members) > 0 {
		if g.def == nil {
			view.Amount = g.members[0].Amount
			view.BillingDefinitionID = g.members[0].BillingDefinitionID
		}
		view.Installments = 0
	}

	for _, m := range g.members {
		if n := m.Number(); n > view.CurrentInstallment {
			view.CurrentInstallment = n
		}
		if t := m.Total(); t > view.Installments {
			view.Installments = t
		}
		view.MemberStatuses = append(view.MemberStatuses, m.Status)
		view.InstallmentIDs = append(view.InstallmentIDs, m.ID)
		view.DeliveryBased = view.DeliveryBased || m.DeliveryBased
	}
	view.DueDate = nextDueDate(g.members)
	view.PaymentDate = lastPaymentDate(g.members)
	view.EarliestDate = view.DueDate
	if view.EarliestDate == nil && g.def != nil && len(g.members) == 0 {
		start := g.def.StartDate
		view.EarliestDate = &start
	}
	return view
}

func projectClosed(input ProjectionInput, activeOpen map[int64]struct{}, mode Mode) []VirtualBillingView {
	byClient := make(map[int64][]billing.Installment)
	var clients []int64
	for _, row := range input.Installments {
		if row.BillingDefinitionID != nil {
			continue
		}
		if _, open := activeOpen[row.ClientID]; open {
			continue
		}
		if _, seen := byClient[row.ClientID]; !seen {
			clients = append(clients, row.ClientID)
		}
		byClient[row.ClientID] = append(byClient[row.ClientID], row)
	}

	var out []VirtualBillingView
	for _, clientID := range clients {
		members := byClient[clientID]
		if mode == ModeExpanded {
			for _, row := range members {
				out = append(out, expandedView(row, ScopeClosed, input.ClientNames))
			}
			continue
		}
		out = append(out, groupedClosedView(clientID, members, input.ClientNames))
	}
	return out
}

// groupedClosedView is cancelled only when every member is cancelled.
func groupedClosedView(clientID int64, members []billing.Installment, names map[int64]string) VirtualBillingView {
	view := VirtualBillingView{
		Key:          fmt.Sprintf("closed:%d", clientID),
		Scope:        ScopeClosed,
		Mode:         ModeGrouped,
		ClientID:     clientID,
		ClientName:   names[clientID],
		Amount:       decimal.Zero,
		Installments: len(members),
		Status:       billing.StatusCancelled,
	}
	var descriptions []string
	seen := make(map[string]struct{})
	for _, m := range members {
		view.Amount = view.Amount.Add(m.Amount)
		if m.Status == billing.StatusPaid {
			view.CurrentInstallment++
		}
		if m.Status != billing.StatusCancelled {
			view.Status = billing.StatusPending
		}
		view.MemberStatuses = append(view.MemberStatuses, m.Status)
		view.InstallmentIDs = append(view.InstallmentIDs, m.ID)
		view.DeliveryBased = view.DeliveryBased || m.DeliveryBased
		if _, dup := seen[m.Description]; !dup {
			seen[m.Description] = struct{}{}
			descriptions = append(descriptions, m.Description)
		}
	}
	view.Description = strings.Join(descriptions, ", ")
	view.DueDate = nextDueDate(members)
	view.PaymentDate = lastPaymentDate(members)
	view.EarliestDate = view.DueDate
	if view.EarliestDate == nil {
		view.EarliestDate = earliestPaymentDate(members)
	}
	return view
}

func expandedView(row billing.Installment, scope Scope, names map[int64]string) VirtualBillingView {
	view := VirtualBillingView{
		Key:                 fmt.Sprintf("installment:%d", row.ID),
		Scope:               scope,
		Mode:                ModeExpanded,
		BillingDefinitionID: row.BillingDefinitionID,
		ClientID:            row.ClientID,
		ClientName:          names[row.ClientID],
		Description:         row.Description,
		Amount:              row.Amount,
		CurrentInstallment:  row.Number(),
		Installments:        row.Total(),
		Status:              row.Status,
		MemberStatuses:      []billing.Status{row.Status},
		InstallmentIDs:      []int64{row.ID},
		DueDate:             row.DueDate,
		PaymentDate:         row.PaymentDate,
		DeliveryBased:       row.DeliveryBased,
	}
	view.EarliestDate = row.DueDate
	if view.EarliestDate == nil {
		view.EarliestDate = row.PaymentDate
	}
	return view
}

// nextDueDate is the earliest due date among unsettled members, falling back
// to the earliest due date of any member.
func nextDueDate(rows []billing.Installment) *time.Time {
	var open, earliest *time.Time
	for _, r := range rows {
		if r.DueDate == nil {
			continue
		}
		if earliest == nil || r.DueDate.Before(*earliest) {
			earliest = r.DueDate
		}
		if r.Status.IsTerminal() {
			continue
		}
		if open == nil || r.DueDate.Before(*open) {
			open = r.DueDate
		}
	}
	if open != nil {
		return open
	}
	return earliest
}

func lastPaymentDate(rows []billing.Installment) *time.Time {
	var last *time.Time
	for _, r := range rows {
		if r.PaymentDate != nil && (last == nil || r.PaymentDate.After(*last)) {
			last = r.PaymentDate
		}
	}
	return last
}

func earliestPaymentDate(rows []billing.Installment) *time.Time {
	var first *time.Time
	for _, r := range rows {
		if r.PaymentDate != nil && (first == nil || r.PaymentDate.Before(*first)) {
			first = r.PaymentDate
		}
	}
	return first
}

func sortViews(views []VirtualBillingView) {
	sort.SliceStable(views, func(i, j int) bool {
		a, b := views[i].EarliestDate, views[j].EarliestDate
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		na, nb := normalize(views[i].ClientName), normalize(views[j].ClientName)
		if na != nb {
			return na < nb
		}
		return views[i].Key < views[j].Key
	})
}
