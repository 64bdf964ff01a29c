// Package model defines the domain types shared by the enrichment pipeline.
package model

import "strings"

// EntityRecord is one entity read from the source table. ID is the 0-based
// ordinal of the record in source iteration order.
type EntityRecord struct {
	ID         int               `json:"id"`
	Value      string            `json:"value"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Attr looks up a sibling column of the entity by header name, ignoring case.
func (r EntityRecord) Attr(name string) (string, bool) {
	if v, ok := r.Attributes[name]; ok {
		return v, true
	}
	for k, v := range r.Attributes {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}
