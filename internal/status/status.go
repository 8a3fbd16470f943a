// Package status projects raw order statuses onto the four stage progress
// shown to customers and decides which customer actions a status allows.
package status

import (
	"fmt"

	"storefront-service/internal/apperr"
	"storefront-service/internal/entity"
)

// Customer is the customer-facing label of an order's progress.
type Customer string

const (
	Placed           Customer = "Placed"
	Preparing        Customer = "Preparing"
	OnWay            Customer = "On Way"
	Done             Customer = "Done"
	Cancelled        Customer = "Cancelled"
	CancelledDP      Customer = "Cancelled (DP)"
	CancelledNoItems Customer = "Cancelled (No Items)"
	CancelledByAdmin Customer = "Cancelled (Admin)"
)

var (
	ErrNotCancellable = apperr.New(apperr.BusinessRule, "order can only be cancelled before it is being prepared")
	ErrNotRemovable   = apperr.New(apperr.BusinessRule, "only delivered or cancelled orders can be removed from history")
)

var projection = map[entity.OrderStatus]Customer{
	entity.StatusPlaced:           Placed,
	entity.StatusAccepted:         Preparing,
	entity.StatusPreparing:        Preparing,
	entity.StatusReadyForPickup:   Preparing,
	entity.StatusPickedUp:         OnWay,
	entity.StatusOutForDelivery:   OnWay,
	entity.StatusDelivered:        Done,
	entity.StatusCancelled:        Cancelled,
	entity.StatusCancelledByDP:    CancelledDP,
	entity.StatusCancelledNoItems: CancelledNoItems,
	entity.StatusCancelledByAdmin: CancelledByAdmin,
}

// RawStatuses lists every raw status in lifecycle order.
func RawStatuses() []entity.OrderStatus {
	return []entity.OrderStatus{
		entity.StatusPlaced,
		entity.StatusAccepted,
		entity.StatusPreparing,
		entity.StatusReadyForPickup,
		entity.StatusPickedUp,
		entity.StatusOutForDelivery,
		entity.StatusDelivered,
		entity.StatusCancelled,
		entity.StatusCancelledByDP,
		entity.StatusCancelledNoItems,
		entity.StatusCancelledByAdmin,
	}
}

// Project maps a raw status to its customer status.
func Project(raw entity.OrderStatus) (Customer, error) {
	c, ok := projection[raw]
	if !ok {
		return "", fmt.Errorf("unknown order status %q", raw)
	}
	return c, nil
}

// Valid reports whether raw is one of the known statuses.
func Valid(raw entity.OrderStatus) bool {
	_, ok := projection[raw]
	return ok
}

func (c Customer) IsCancelled() bool {
	switch c {
	case Cancelled, CancelledDP, CancelledNoItems, CancelledByAdmin:
		return true
	}
	return false
}

func (c Customer) IsTerminal() bool {
	return c == Done || c.IsCancelled()
}

// Marker is the state of one progress dot. The zero value means unset.
type Marker string

const (
	Active  Marker = "active"
	Passed  Marker = "passed"
	Pending Marker = "pending"
)

type Stage struct {
	Label  string `json:"label"`
	Marker Marker `json:"marker,omitempty"`
}

// Progress is the rendered four stage bar. Alert marks a cancelled order,
// whose last stage label is the cancellation label.
type Progress struct {
	Status Customer `json:"status"`
	Stages [4]Stage `json:"stages"`
	Alert  bool     `json:"alert"`
}

var stageOrder = [4]Customer{Placed, Preparing, OnWay, Done}

// ProgressOf derives stage markers from a customer status.
func ProgressOf(c Customer) Progress {
	p := Progress{Status: c}
	for i, s := range stageOrder {
		p.Stages[i].Label = string(s)
	}

	if c.IsCancelled() {
		for i := 0; i < 3; i++ {
			p.Stages[i].Marker = Passed
		}
		p.Stages[3].Label = string(c)
		p.Alert = true
		return p
	}

	current := -1
	for i, s := range stageOrder {
		if s == c {
			current = i
		}
	}
	for i := range p.Stages {
		switch {
		case i < current:
			p.Stages[i].Marker = Passed
		case i == current:
			p.Stages[i].Marker = Active
		default:
			p.Stages[i].Marker = Pending
		}
	}
	return p
}

// Cancel returns the status a customer self-cancel moves raw to. Only a
// placed order can be cancelled by the customer.
func Cancel(raw entity.OrderStatus) (entity.OrderStatus, error) {
	if raw != entity.StatusPlaced {
		return raw, ErrNotCancellable
	}
	return entity.StatusCancelled, nil
}

// CanRemove reports whether an order in raw may be deleted from history.
func CanRemove(raw entity.OrderStatus) error {
	c, err := Project(raw)
	if err != nil {
		return apperr.Wrap(apperr.BusinessRule, err, ErrNotRemovable.Message)
	}
	if !c.IsTerminal() {
		return ErrNotRemovable
	}
	return nil
}

// Decorate fills the derived customer status of an order. Unknown raw
// statuses leave it empty.
func Decorate(o *entity.Order) {
	if c, err := Project(o.Status); err == nil {
		o.CustomerStatus = string(c)
	}
}
