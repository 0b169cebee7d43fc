package cart

import (
	"fmt"
	"strings"
)

// Partition is the result of grouping cart lines by owning shop.
// Lines whose shop could not be resolved are kept in Unresolved so callers can warn about them.
type Partition struct {
	Groups     map[string]*ShopOrderGroup
	Unresolved []CartLine

	order []string
}

// Ordered returns the groups in the order their shops first appeared in the cart.
func (p *Partition) Ordered() []*ShopOrderGroup {
	groups := make([]*ShopOrderGroup, 0, len(p.order))
	for _, shopID := range p.order {
		groups = append(groups, p.Groups[shopID])
	}
	return groups
}

// Len returns the number of resolved lines across all groups.
func (p *Partition) Len() int {
	n := 0
	for _, g := range p.Groups {
		n += len(g.Lines)
	}
	return n
}

// PartitionLines groups lines by shopId. When include is non-empty only those productIds are considered.
func PartitionLines(lines []CartLine, include []string) (*Partition, error) {
	var selected map[string]bool
	if len(include) > 0 {
		selected = make(map[string]bool, len(include))
		for _, id := range include {
			selected[id] = true
		}
	}

	p := &Partition{Groups: make(map[string]*ShopOrderGroup)}
	for i, line := range lines {
		if selected != nil && !selected[line.ProductID] {
			continue
		}
		if err := line.validate(); err != nil {
			return nil, fmt.Errorf("line %d (%s): %w", i, line.ProductID, err)
		}

		shopID := strings.TrimSpace(line.ShopID)
		if shopID == "" {
			p.Unresolved = append(p.Unresolved, line)
			continue
		}
		line.ShopID = shopID

		group, ok := p.Groups[shopID]
		if !ok {
			group = &ShopOrderGroup{ShopID: shopID, ShopName: strings.TrimSpace(line.ShopName)}
			p.Groups[shopID] = group
			p.order = append(p.order, shopID)
		}
		if group.ShopName == "" {
			group.ShopName = strings.TrimSpace(line.ShopName)
		}
		group.add(line)
	}
	return p, nil
}
