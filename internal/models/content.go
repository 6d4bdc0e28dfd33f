package models

import "github.com/noah-isme/course-cms-api/internal/ordering"

// Content attaches one item to a module at a position.
type Content struct {
	ID       string   `db:"id" json:"id"`
	ModuleID string   `db:"module_id" json:"module_id"`
	ItemKind ItemKind `db:"item_kind" json:"item_kind"`
	ItemID   string   `db:"item_id" json:"item_id"`
	Order    int      `db:"order" json:"order"`

	Item Item `db:"-" json:"item,omitempty"`
}

// Ref returns the polymorphic reference to the attached item.
func (c *Content) Ref() ItemRef {
	return ItemRef{Kind: c.ItemKind, ID: c.ItemID}
}

// OrderScope places the content among the other contents of its module.
func (c *Content) OrderScope() ordering.Scope {
	return ordering.Scope{{Column: "module_id", Value: c.ModuleID}}
}
