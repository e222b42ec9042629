package checkout

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vendora/order-service/pkg/enums"
)

var hundred = decimal.NewFromInt(100)

// ShopGroup is one shop's slice of a checkout, with the discount already
// applied to its subtotal.
type ShopGroup struct {
	ShopID   uuid.UUID
	Items    []SessionItem
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// Totals is the money summary for a whole checkout.
type Totals struct {
	Subtotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	Total         decimal.Decimal
}

// GroupByShop splits session items into per-shop groups and applies the
// discount snapshot. A discount lands on at most one group: the one holding
// the targeted product. Groups without the target keep their full subtotal.
func GroupByShop(items []SessionItem, discount *DiscountSnapshot) []ShopGroup {
	byShop := make(map[uuid.UUID]*ShopGroup)
	order := []uuid.UUID{}
	for _, item := range items {
		group, ok := byShop[item.ShopID]
		if !ok {
			group = &ShopGroup{ShopID: item.ShopID}
			byShop[item.ShopID] = group
			order = append(order, item.ShopID)
		}
		group.Items = append(group.Items, item)
		group.Subtotal = group.Subtotal.Add(item.LineTotal())
	}

	groups := make([]ShopGroup, 0, len(order))
	for _, shopID := range order {
		groups = append(groups, *byShop[shopID])
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].ShopID.String() < groups[j].ShopID.String()
	})

	applyDiscount(groups, discount)

	for i := range groups {
		if groups[i].Discount.GreaterThan(groups[i].Subtotal) {
			groups[i].Discount = groups[i].Subtotal
		}
		groups[i].Total = groups[i].Subtotal.Sub(groups[i].Discount)
	}
	return groups
}

// ComputeTotals sums the per-shop groups into one checkout summary.
func ComputeTotals(groups []ShopGroup) Totals {
	t := Totals{
		Subtotal:      decimal.Zero,
		DiscountTotal: decimal.Zero,
		Total:         decimal.Zero,
	}
	for _, g := range groups {
		t.Subtotal = t.Subtotal.Add(g.Subtotal)
		t.DiscountTotal = t.DiscountTotal.Add(g.Discount)
		t.Total = t.Total.Add(g.Total)
	}
	return t
}

// applyDiscount finds the group carrying the targeted product and writes the
// discount amount onto it. Percentage discounts take value% of the targeted
// line's total, capped by MaxDiscount when set. Fixed discounts subtract the
// snapshot value outright. If no line carries the target, nothing changes.
func applyDiscount(groups []ShopGroup, discount *DiscountSnapshot) {
	if discount == nil {
		return
	}
	for i := range groups {
		line, ok := targetLine(groups[i].Items, discount)
		if !ok {
			continue
		}
		switch discount.Type {
		case enums.DiscountTypePercentage:
			amount := line.LineTotal().Mul(discount.Value).Div(hundred).Round(2)
			if discount.MaxDiscount != nil && amount.GreaterThan(*discount.MaxDiscount) {
				amount = *discount.MaxDiscount
			}
			groups[i].Discount = amount
		case enums.DiscountTypeFixed:
			groups[i].Discount = discount.Value.Round(2)
		}
		return
	}
}

func targetLine(items []SessionItem, discount *DiscountSnapshot) (SessionItem, bool) {
	for _, item := range items {
		if discount.Targets(item.ProductID) {
			return item, true
		}
	}
	return SessionItem{}, false
}
