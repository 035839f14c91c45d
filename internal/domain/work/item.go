// Package work holds the unit-of-work vocabulary shared by every agent:
// the items an agent collects, the per-item results it produces, the
// mutations it records for rollback, and the execution result envelope
// the engine hands back to callers.
package work

import (
	"github.com/google/uuid"
)

// Item is one atomic unit of agent work: a single order to route, product
// to import, SKU to reconcile, customer to message. Items carry their own
// routing and classification outcome in Labels so the execute phase never
// has to re-derive it.
type Item struct {
	ID     uuid.UUID         `json:"id"`
	Kind   string            `json:"kind"`
	Ref    string            `json:"ref"`
	Labels map[string]string `json:"labels,omitempty"`
	Data   map[string]any    `json:"data,omitempty"`
}

// NewItem creates an item for one external record. Ref is the business
// identifier the item refers to (order number, SKU, customer ID).
func NewItem(kind, ref string) *Item {
	return &Item{
		ID:   uuid.New(),
		Kind: kind,
		Ref:  ref,
	}
}

// Label returns the classification label for key, or "" when unset
func (i *Item) Label(key string) string {
	if i.Labels == nil {
		return ""
	}
	return i.Labels[key]
}

// SetLabel records a classification outcome on the item
func (i *Item) SetLabel(key, value string) {
	if i.Labels == nil {
		i.Labels = make(map[string]string)
	}
	i.Labels[key] = value
}

// ItemStatus is the outcome of processing one item
type ItemStatus string

const (
	ItemSucceeded ItemStatus = "succeeded"
	ItemFailed    ItemStatus = "failed"
	ItemSkipped   ItemStatus = "skipped"
)

// Mutation records one external write so it can be compensated later.
// Undo carries whatever the compensating call needs, for example the stock
// level before an adjustment.
type Mutation struct {
	Kind     string         `json:"kind"`
	Provider string         `json:"provider"`
	EntityID string         `json:"entity_id"`
	Undo     map[string]any `json:"undo,omitempty"`
}

// ItemResult is the outcome of one item, including every mutation the
// agent performed for it
type ItemResult struct {
	ItemID     uuid.UUID      `json:"item_id"`
	Ref        string         `json:"ref"`
	Status     ItemStatus     `json:"status"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	ErrorClass string         `json:"error_class,omitempty"`
	Mutations  []Mutation     `json:"mutations,omitempty"`
}

// Succeeded builds a successful result for item
func Succeeded(item *Item) *ItemResult {
	return &ItemResult{ItemID: item.ID, Ref: item.Ref, Status: ItemSucceeded}
}

// Failed builds a failed result for item carrying the error message
func Failed(item *Item, err error) *ItemResult {
	r := &ItemResult{ItemID: item.ID, Ref: item.Ref, Status: ItemFailed}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Skipped builds a skipped result for item with the reason it was not
// processed
func Skipped(item *Item, reason string) *ItemResult {
	return &ItemResult{ItemID: item.ID, Ref: item.Ref, Status: ItemSkipped, Error: reason}
}

// AddMutation appends an external write to the result
func (r *ItemResult) AddMutation(m Mutation) {
	r.Mutations = append(r.Mutations, m)
}
