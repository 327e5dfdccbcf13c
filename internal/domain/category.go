package domain

import (
	"time"
)

// Category is a node in the catalog's category tree. ParentID is nil for root
// categories. A promotion targeting a category implicitly targets every
// descendant category.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ParentID  *string   `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
