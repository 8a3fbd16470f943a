package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"

	"storefront-service/internal/apperr"
	"storefront-service/internal/cart"
	"storefront-service/internal/entity"
	"storefront-service/internal/feed"
	"storefront-service/internal/pricing"
	"storefront-service/internal/repository"
	"storefront-service/internal/status"
)

var (
	ErrSignInRequired     = apperr.New(apperr.Authorization, "sign in to place an order")
	ErrBelowMinimum       = apperr.New(apperr.BusinessRule, "cart does not meet the minimum order")
	ErrItemOutOfStock     = apperr.New(apperr.BusinessRule, "an item in your cart is out of stock")
	ErrNameRequired       = apperr.New(apperr.Validation, "please enter a name")
	ErrInvalidPhone       = apperr.New(apperr.Validation, "phone number must be exactly 10 digits")
	ErrInvalidPincode     = apperr.New(apperr.Validation, "pincode must be exactly 6 digits")
	ErrAddressRequired    = apperr.New(apperr.Validation, "please enter an address")
	ErrSubmitFailed       = apperr.New(apperr.Remote, "could not place your order, please try again")
	ErrSubmissionInFlight = apperr.New(apperr.Remote, "this order is already being placed, please wait")
	ErrOrdersFailed       = apperr.New(apperr.Remote, "could not load your orders, please try again")
	ErrOrderUpdateFailed  = apperr.New(apperr.Remote, "could not update your order, please try again")
	ErrOrderNotFound      = apperr.New(apperr.Validation, "order not found")
	ErrUnknownStatus      = apperr.New(apperr.Validation, "unknown order status")
)

var (
	phonePattern   = regexp.MustCompile(`^[0-9]{10}$`)
	pincodePattern = regexp.MustCompile(`^[0-9]{6}$`)
)

const (
	pendingClaim               = "pending"
	customerCancellationReason = "Cancelled by customer via app."
	followUpTimeout            = 5 * time.Second
)

// OrderStore persists orders.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *entity.Order) (*entity.Order, error)
	GetOrder(ctx context.Context, userID, key string) (*entity.Order, error)
	ListOrders(ctx context.Context, userID string) ([]entity.Order, error)
	CancelOrder(ctx context.Context, userID, key string, from entity.OrderStatus, reason string) error
	UpdateOrderStatus(ctx context.Context, update entity.StatusUpdate) error
	DeleteOrder(ctx context.Context, userID, key string) error
}

// DishSource reads live dish state for the checkout stock check.
type DishSource interface {
	FetchDish(ctx context.Context, key string) (*entity.Dish, error)
}

// EventWriter is the subset of *kafka.Writer used to publish order events.
type EventWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// OrderService is a service that provides order-related operations
type OrderService struct {
	orderRepo      OrderStore
	dishes         DishSource
	kafkaWriter    EventWriter
	rdb            *redis.Client
	feed           feed.Feed
	idempotencyTTL time.Duration
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(orderRepo OrderStore, dishes DishSource, kafkaWriter EventWriter, rdb *redis.Client, f feed.Feed, idempotencyTTL time.Duration) *OrderService {
	return &OrderService{
		orderRepo:      orderRepo,
		dishes:         dishes,
		kafkaWriter:    kafkaWriter,
		rdb:            rdb,
		feed:           f,
		idempotencyTTL: idempotencyTTL,
	}
}

type PlaceOrderRequest struct {
	UserID         string
	Address        entity.Address
	IdempotencyKey string
}

// Receipt is the result of a successful submission. Duplicate is set when
// the idempotency key matched an order placed earlier.
type Receipt struct {
	OrderKey  string        `json:"order_key"`
	Order     *entity.Order `json:"order"`
	Duplicate bool          `json:"duplicate"`
}

// Place validates the cart and address, freezes the cart into an order and
// persists it. The ordered lines leave the cart only after the order is
// committed; anything added meanwhile stays.
func (s *OrderService) Place(ctx context.Context, req PlaceOrderRequest, c *cart.Store) (*Receipt, error) {
	if req.UserID == "" {
		return nil, ErrSignInRequired
	}

	if req.IdempotencyKey != "" {
		receipt, claimed, err := s.claimIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if !claimed {
			return receipt, nil
		}
	}

	receipt, err := s.place(ctx, req, c)
	if req.IdempotencyKey != "" {
		bg, cancel := followUpContext(ctx)
		defer cancel()
		s.settleIdempotencyKey(bg, req.UserID, req.IdempotencyKey, receipt)
	}
	return receipt, err
}

// followUpContext outlives the request so work after a commit still runs
// when the client has gone away.
func followUpContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), followUpTimeout)
}

func (s *OrderService) place(ctx context.Context, req PlaceOrderRequest, c *cart.Store) (*Receipt, error) {
	summary := c.Summary()
	rules := c.Rules()
	if !summary.Valid {
		if summary.Count < rules.MinOrderQty {
			return nil, apperr.Wrap(apperr.BusinessRule, ErrBelowMinimum,
				fmt.Sprintf("add at least %d items to place an order", rules.MinOrderQty))
		}
		return nil, apperr.Wrap(apperr.BusinessRule, ErrBelowMinimum,
			fmt.Sprintf("minimum order amount is %s", pricing.Format(rules.MinOrderAmount)))
	}

	address, err := validateAddress(req.Address)
	if err != nil {
		return nil, err
	}

	if err := s.checkStock(ctx, summary.Lines); err != nil {
		return nil, err
	}

	items := make(entity.OrderItems, 0, len(summary.Lines))
	for _, line := range summary.Lines {
		items = append(items, entity.OrderItem{
			Key:       line.Key,
			Name:      line.Name,
			Price:     pricing.Format(line.Price),
			Quantity:  line.Quantity,
			LineTotal: pricing.Format(line.LineTotal()),
			Image:     line.Image,
			Unit:      line.Unit,
		})
	}

	order := &entity.Order{
		UserID:         req.UserID,
		Items:          items,
		Subtotal:       pricing.Format(summary.Subtotal),
		DeliveryFee:    pricing.Format(summary.DeliveryFee),
		Total:          pricing.Format(summary.Total),
		Method:         entity.MethodCOD,
		Status:         entity.StatusPlaced,
		Address:        address,
		IdempotencyKey: req.IdempotencyKey,
	}

	createdOrder, err := s.orderRepo.CreateOrder(ctx, order)
	if err != nil {
		logger.Error().Err(err).Msgf("Error creating order for user %s", req.UserID)
		return nil, apperr.Wrap(apperr.Remote, err, ErrSubmitFailed.Message)
	}
	status.Decorate(createdOrder)

	c.Remove(summary.Lines)

	bg, cancel := followUpContext(ctx)
	defer cancel()
	s.publishOrderEvent(bg, createdOrder, "created")
	s.notify(bg, req.UserID)

	logger.Info().Msgf("Order %s placed by user %s for %s", createdOrder.Key, req.UserID, createdOrder.Total)
	return &Receipt{OrderKey: createdOrder.Key, Order: createdOrder}, nil
}

func validateAddress(a entity.Address) (entity.Address, error) {
	a.Name = strings.TrimSpace(a.Name)
	a.Phone = strings.TrimSpace(a.Phone)
	a.Pincode = strings.TrimSpace(a.Pincode)
	a.Line = strings.TrimSpace(a.Line)
	a.Landmark = strings.TrimSpace(a.Landmark)
	a.State = strings.TrimSpace(a.State)
	a.District = strings.TrimSpace(a.District)

	switch {
	case a.Name == "":
		return a, ErrNameRequired
	case !phonePattern.MatchString(a.Phone):
		return a, ErrInvalidPhone
	case !pincodePattern.MatchString(a.Pincode):
		return a, ErrInvalidPincode
	case a.Line == "":
		return a, ErrAddressRequired
	}
	return a, nil
}

func (s *OrderService) checkStock(ctx context.Context, lines []entity.CartLine) error {
	for _, line := range lines {
		dish, err := s.dishes.FetchDish(ctx, line.Key)
		if err != nil {
			if apperr.KindOf(err) == apperr.Validation {
				return apperr.Wrap(apperr.BusinessRule, ErrItemOutOfStock, fmt.Sprintf("%s is no longer available", line.Name))
			}
			return err
		}
		if !dish.Available() {
			logger.Warn().Msgf("Dish %s out of stock at checkout", line.Key)
			return apperr.Wrap(apperr.BusinessRule, ErrItemOutOfStock, fmt.Sprintf("%s is out of stock", line.Name))
		}
	}
	return nil
}

func idempotencyRedisKey(userID, key string) string {
	return fmt.Sprintf("idempotent-key:%s:%s", userID, key)
}

// claimIdempotencyKey reserves key for a new submission. When the key was
// already used it returns the earlier receipt and claimed=false.
func (s *OrderService) claimIdempotencyKey(ctx context.Context, userID, key string) (*Receipt, bool, error) {
	redisKey := idempotencyRedisKey(userID, key)
	ok, err := s.rdb.SetNX(ctx, redisKey, pendingClaim, s.idempotencyTTL).Result()
	if err != nil {
		logger.Error().Err(err).Msgf("Error claiming idempotent key %s", redisKey)
		return nil, false, apperr.Wrap(apperr.Remote, err, ErrSubmitFailed.Message)
	}
	if ok {
		return nil, true, nil
	}

	val, err := s.rdb.Get(ctx, redisKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, false, apperr.Wrap(apperr.Remote, err, ErrSubmitFailed.Message)
	}
	if val == "" || val == pendingClaim {
		return nil, false, ErrSubmissionInFlight
	}

	order, err := s.orderRepo.GetOrder(ctx, userID, val)
	if err != nil {
		logger.Error().Err(err).Msgf("Error getting order %s for idempotent key %s", val, redisKey)
		return nil, false, apperr.Wrap(apperr.Remote, err, ErrSubmitFailed.Message)
	}
	status.Decorate(order)
	logger.Info().Msgf("Duplicate submission %s resolved to order %s", redisKey, order.Key)
	return &Receipt{OrderKey: order.Key, Order: order, Duplicate: true}, false, nil
}

// settleIdempotencyKey records the placed order, or releases the claim so
// the customer can retry.
func (s *OrderService) settleIdempotencyKey(ctx context.Context, userID, key string, receipt *Receipt) {
	redisKey := idempotencyRedisKey(userID, key)
	var err error
	if receipt != nil {
		err = s.rdb.Set(ctx, redisKey, receipt.OrderKey, s.idempotencyTTL).Err()
	} else {
		err = s.rdb.Del(ctx, redisKey).Err()
	}
	if err != nil {
		logger.Error().Err(err).Msgf("Error settling idempotent key %s", redisKey)
	}
}

// Listen delivers the user's orders now and again after every change, until
// the subscription is cancelled. Deliveries never overlap.
func (s *OrderService) Listen(ctx context.Context, userID string, fn func([]entity.Order)) (feed.Subscription, error) {
	if userID == "" {
		return nil, ErrSignInRequired
	}

	var mu sync.Mutex
	deliver := func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		orders, err := s.List(ctx, userID)
		if err != nil {
			return err
		}
		fn(orders)
		return nil
	}

	sub, err := s.feed.Subscribe(ctx, ordersChannel(userID), func([]byte) {
		if err := deliver(context.Background()); err != nil {
			logger.Error().Err(err).Msgf("Error refreshing orders of user %s", userID)
		}
	})
	if err != nil {
		logger.Error().Err(err).Msgf("Error subscribing to orders of user %s", userID)
		return nil, apperr.Wrap(apperr.Remote, err, ErrOrdersFailed.Message)
	}

	if err := deliver(ctx); err != nil {
		sub.Cancel()
		return nil, err
	}
	return sub, nil
}

// List returns the user's orders, newest first, with customer statuses.
func (s *OrderService) List(ctx context.Context, userID string) ([]entity.Order, error) {
	orders, err := s.orderRepo.ListOrders(ctx, userID)
	if err != nil {
		logger.Error().Err(err).Msgf("Error listing orders of user %s", userID)
		return nil, apperr.Wrap(apperr.Remote, err, ErrOrdersFailed.Message)
	}
	for i := range orders {
		status.Decorate(&orders[i])
	}
	return orders, nil
}

func (s *OrderService) Get(ctx context.Context, userID, key string) (*entity.Order, error) {
	order, err := s.orderRepo.GetOrder(ctx, userID, key)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		logger.Error().Err(err).Msgf("Error getting order %s", key)
		return nil, apperr.Wrap(apperr.Remote, err, ErrOrdersFailed.Message)
	}
	status.Decorate(order)
	return order, nil
}

// Cancel is the customer self-cancel. It only succeeds while the order is
// still placed; an operator update racing it wins.
func (s *OrderService) Cancel(ctx context.Context, userID, key, reason string) (*entity.Order, error) {
	order, err := s.Get(ctx, userID, key)
	if err != nil {
		return nil, err
	}
	if _, err := status.Cancel(order.Status); err != nil {
		return nil, err
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = customerCancellationReason
	}
	err = s.orderRepo.CancelOrder(ctx, userID, key, order.Status, reason)
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, status.ErrNotCancellable
		}
		logger.Error().Err(err).Msgf("Error cancelling order %s", key)
		return nil, apperr.Wrap(apperr.Remote, err, ErrOrderUpdateFailed.Message)
	}

	order.Status = entity.StatusCancelled
	order.CancellationReason = reason
	status.Decorate(order)

	bg, cancel := followUpContext(ctx)
	defer cancel()
	s.publishOrderEvent(bg, order, "cancelled")
	s.notify(bg, userID)
	return order, nil
}

// Remove deletes a finished order from the customer's history.
func (s *OrderService) Remove(ctx context.Context, userID, key string) error {
	order, err := s.Get(ctx, userID, key)
	if err != nil {
		return err
	}
	if err := status.CanRemove(order.Status); err != nil {
		return err
	}

	err = s.orderRepo.DeleteOrder(ctx, userID, key)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		logger.Error().Err(err).Msgf("Error deleting order %s", key)
		return apperr.Wrap(apperr.Remote, err, ErrOrderUpdateFailed.Message)
	}

	bg, cancel := followUpContext(ctx)
	defer cancel()
	s.notify(bg, userID)
	return nil
}

// ApplyStatusUpdate stores a status set by operator or courier systems.
func (s *OrderService) ApplyStatusUpdate(ctx context.Context, update entity.StatusUpdate) error {
	if !status.Valid(update.Status) {
		return apperr.Wrap(apperr.Validation, ErrUnknownStatus, fmt.Sprintf("unknown order status %q", update.Status))
	}
	if update.OrderKey == "" || update.UserID == "" {
		return ErrOrderNotFound
	}

	err := s.orderRepo.UpdateOrderStatus(ctx, update)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		logger.Error().Err(err).Msgf("Error updating status of order %s", update.OrderKey)
		return apperr.Wrap(apperr.Remote, err, ErrOrderUpdateFailed.Message)
	}

	bg, cancel := followUpContext(ctx)
	defer cancel()
	s.notify(bg, update.UserID)
	return nil
}

func ordersChannel(userID string) string {
	return "orders:" + userID
}

// publishOrderEvent emits order.<event>.<key>. The order is already committed,
// so a failure is logged and not returned.
func (s *OrderService) publishOrderEvent(ctx context.Context, order *entity.Order, event string) {
	orderJSON, err := json.Marshal(order)
	if err != nil {
		logger.Error().Err(err).Msgf("Error marshalling order %s", order.Key)
		return
	}

	// order.created.<key> or order.cancelled.<key>
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("order.%s.%s", event, order.Key)),
		Value: orderJSON,
	}

	if err := s.kafkaWriter.WriteMessages(ctx, msg); err != nil {
		logger.Error().Err(err).Msgf("Error publishing %s event for order %s", event, order.Key)
	}
}

func (s *OrderService) notify(ctx context.Context, userID string) {
	if err := s.feed.Publish(ctx, ordersChannel(userID), []byte("changed")); err != nil {
		logger.Error().Err(err).Msgf("Error notifying orders of user %s", userID)
	}
}
