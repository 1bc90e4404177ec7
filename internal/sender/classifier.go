// Package sender turns one inbound push message into one fan-out event per
// channel type.
package sender

import (
	"github.com/tinywideclouds/go-unifiedpush-service/pkg/push"
)

// VariantMap groups variants by channel type. Groups are never empty.
type VariantMap map[push.VariantType][]push.Variant

// GroupByType partitions variants by Type, keeping input order within each group.
func GroupByType(variants []push.Variant) VariantMap {
	groups := make(VariantMap)
	for _, v := range variants {
		groups.add(v)
	}
	return groups
}

func (m VariantMap) add(v push.Variant) {
	m[v.Type] = append(m[v.Type], v)
}

// Types returns the represented types in enumeration order. Types outside the
// enumeration follow in no particular order.
func (m VariantMap) Types() []push.VariantType {
	types := make([]push.VariantType, 0, len(m))
	seen := make(map[push.VariantType]bool, len(m))
	for _, t := range push.AllVariantTypes() {
		if len(m[t]) > 0 {
			types = append(types, t)
			seen[t] = true
		}
	}
	for t, group := range m {
		if !seen[t] && len(group) > 0 {
			types = append(types, t)
		}
	}
	return types
}
