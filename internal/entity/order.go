package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// OrderStatus is the raw status written by the backend and operators.
type OrderStatus string

const (
	StatusPlaced           OrderStatus = "PLACED"
	StatusAccepted         OrderStatus = "ACCEPTED"
	StatusPreparing        OrderStatus = "PREPARING"
	StatusReadyForPickup   OrderStatus = "READY_FOR_PICKUP"
	StatusPickedUp         OrderStatus = "PICKED_UP"
	StatusOutForDelivery   OrderStatus = "OUT_FOR_DELIVERY"
	StatusDelivered        OrderStatus = "DELIVERED"
	StatusCancelled        OrderStatus = "CANCELLED"
	StatusCancelledByDP    OrderStatus = "CANCELLED_BY_DP"
	StatusCancelledNoItems OrderStatus = "CANCELLED_NO_ITEMS"
	StatusCancelledByAdmin OrderStatus = "CANCELLED_BY_ADMIN"
)

// MethodCOD is the only payment method: cash on delivery.
const MethodCOD = "COD"

type Address struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Pincode  string `json:"pincode"`
	Line     string `json:"line"`
	Landmark string `json:"landmark,omitempty"`
	State    string `json:"state,omitempty"`
	District string `json:"district,omitempty"`
}

// OrderItem is a frozen copy of a cart line. Price fields are fixed precision
// decimal strings and are never recomputed from the live catalog.
type OrderItem struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	Quantity  int    `json:"quantity"`
	LineTotal string `json:"line_total"`
	Image     string `json:"image"`
	Unit      string `json:"unit"`
}

// OrderItems decodes from either a JSON list or a JSON object keyed by
// position/id. Objects are normalized to a slice ordered by key so the
// ambiguity of the remote record shape stops here.
type OrderItems []OrderItem

func (o *OrderItems) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*o = nil
		return nil
	}

	switch data[0] {
	case '[':
		var list []OrderItem
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*o = list
		return nil
	case '{':
		var keyed map[string]OrderItem
		if err := json.Unmarshal(data, &keyed); err != nil {
			return err
		}
		keys := make([]string, 0, len(keyed))
		for k := range keyed {
			keys = append(keys, k)
		}
		sortItemKeys(keys)
		items := make([]OrderItem, 0, len(keys))
		for _, k := range keys {
			item := keyed[k]
			if item.Key == "" {
				item.Key = k
			}
			items = append(items, item)
		}
		*o = items
		return nil
	default:
		return fmt.Errorf("order items: unsupported JSON shape starting with %q", data[0])
	}
}

// sortItemKeys orders numeric keys numerically and everything else lexically.
func sortItemKeys(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
}

type Order struct {
	Key                string      `json:"key"`
	UserID             string      `json:"user_id"`
	Items              OrderItems  `json:"items"`
	Subtotal           string      `json:"subtotal"`
	DeliveryFee        string      `json:"delivery_fee"`
	Total              string      `json:"total"`
	Method             string      `json:"method"`
	Status             OrderStatus `json:"status"`
	CustomerStatus     string      `json:"customer_status,omitempty"`
	CancellationReason string      `json:"cancellation_reason,omitempty"`
	DriverID           string      `json:"driver_id,omitempty"`
	DriverName         string      `json:"driver_name,omitempty"`
	DriverPhone        string      `json:"driver_phone,omitempty"`
	Address            Address     `json:"address"`
	IdempotencyKey     string      `json:"idempotency_key,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
}

// StatusUpdate is a change made by operator or courier systems. Empty driver
// fields leave the stored assignment untouched.
type StatusUpdate struct {
	OrderKey           string      `json:"order_key"`
	UserID             string      `json:"user_id"`
	Status             OrderStatus `json:"status"`
	CancellationReason string      `json:"cancellation_reason,omitempty"`
	DriverID           string      `json:"driver_id,omitempty"`
	DriverName         string      `json:"driver_name,omitempty"`
	DriverPhone        string      `json:"driver_phone,omitempty"`
}

// ItemCount is the number of units across all items.
func (o Order) ItemCount() int {
	n := 0
	for _, item := range o.Items {
		n += item.Quantity
	}
	return n
}

/*
MySQL schema (one copy per shard):

CREATE TABLE orders (
	order_key VARCHAR(64) PRIMARY KEY,
	user_id VARCHAR(128) NOT NULL,
	subtotal DECIMAL(10,2) NOT NULL,
	delivery_fee DECIMAL(10,2) NOT NULL,
	total DECIMAL(10,2) NOT NULL,
	method VARCHAR(16) NOT NULL,
	status VARCHAR(32) NOT NULL,
	cancellation_reason VARCHAR(255) NOT NULL DEFAULT '',
	driver_id VARCHAR(64) NOT NULL DEFAULT '',
	driver_name VARCHAR(128) NOT NULL DEFAULT '',
	driver_phone VARCHAR(16) NOT NULL DEFAULT '',
	address_name VARCHAR(128) NOT NULL,
	address_phone VARCHAR(16) NOT NULL,
	address_pincode VARCHAR(8) NOT NULL,
	address_line VARCHAR(255) NOT NULL,
	address_landmark VARCHAR(255) NOT NULL DEFAULT '',
	address_state VARCHAR(64) NOT NULL DEFAULT '',
	address_district VARCHAR(64) NOT NULL DEFAULT '',
	idempotency_key VARCHAR(255) NULL,
	created_at DATETIME(6) NOT NULL,
	UNIQUE KEY (user_id, idempotency_key)
);

CREATE TABLE order_items (
	order_key VARCHAR(64) NOT NULL REFERENCES orders(order_key),
	position INT NOT NULL,
	dish_key VARCHAR(64) NOT NULL,
	name VARCHAR(255) NOT NULL,
	price DECIMAL(10,2) NOT NULL,
	quantity INT NOT NULL,
	line_total DECIMAL(10,2) NOT NULL,
	image VARCHAR(512) NOT NULL,
	unit VARCHAR(32) NOT NULL,
	PRIMARY KEY (order_key, position)
);
*/
