package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-marketplace/internal/common"
	"github.com/noah-isme/toko-marketplace/internal/obs"
	"github.com/noah-isme/toko-marketplace/internal/resilience"
)

// TypeOrderConfirmation is the asynq task type for order confirmation emails.
const TypeOrderConfirmation = "order:confirmation"

// OrderConfirmation is the task payload. It carries everything the email
// needs so the worker never reads the database.
type OrderConfirmation struct {
	OrderID        string    `json:"orderId"`
	UserID         string    `json:"userId"`
	Email          string    `json:"email"`
	Currency       string    `json:"currency"`
	ItemCount      int       `json:"itemCount"`
	Subtotal       int64     `json:"subtotal"`
	Discount       int64     `json:"discount"`
	Tax            int64     `json:"tax"`
	ShippingMethod string    `json:"shippingMethod"`
	ShippingCost   int64     `json:"shippingCost"`
	Total          int64     `json:"total"`
	CouponCode     string    `json:"couponCode,omitempty"`
	PlacedAt       time.Time `json:"placedAt"`
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Client enqueues notifications. Tasks are never retried: a lost
// confirmation email is acceptable, a duplicate one is not.
type Client struct {
	Q       Enqueuer
	Queue   string
	Timeout time.Duration
	// Breaker, when set, stops enqueue attempts while the queue is failing.
	Breaker *resilience.Breaker
}

// EnqueueOrderConfirmation schedules the confirmation email for delivery.
func (c *Client) EnqueueOrderConfirmation(ctx context.Context, p OrderConfirmation) error {
	if c == nil || c.Q == nil {
		return errors.New("notify client not configured")
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode confirmation: %w", err)
	}
	opts := []asynq.Option{asynq.MaxRetry(0), asynq.TaskID("order-confirmation:" + p.OrderID)}
	if c.Queue != "" {
		opts = append(opts, asynq.Queue(c.Queue))
	}
	if c.Timeout > 0 {
		opts = append(opts, asynq.Timeout(c.Timeout))
	}
	task := asynq.NewTask(TypeOrderConfirmation, payload)
	enqueue := func(ctx context.Context) error {
		_, err := c.Q.EnqueueContext(ctx, task, opts...)
		return err
	}
	if c.Breaker != nil {
		err = c.Breaker.Do(ctx, enqueue)
	} else {
		err = enqueue(ctx)
	}
	if errors.Is(err, resilience.ErrOpenCircuit) {
		obs.ObserveNotification("enqueue", "circuit_open")
		return err
	}
	if err != nil {
		obs.ObserveNotification("enqueue", "error")
		return fmt.Errorf("enqueue confirmation: %w", err)
	}
	obs.ObserveNotification("enqueue", "ok")
	return nil
}

// Processor delivers confirmation tasks through an EmailSender.
type Processor struct {
	Mail   common.EmailSender
	Logger zerolog.Logger
}

// Register binds the processor to mux.
func (p *Processor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeOrderConfirmation, p.ProcessOrderConfirmation)
}

// ProcessOrderConfirmation renders and sends one confirmation email. Every
// failure is wrapped with SkipRetry.
func (p *Processor) ProcessOrderConfirmation(ctx context.Context, t *asynq.Task) error {
	var payload OrderConfirmation
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		obs.ObserveNotification("deliver", "bad_payload")
		return fmt.Errorf("decode confirmation: %v: %w", err, asynq.SkipRetry)
	}
	log := p.Logger.With().Str("order_id", payload.OrderID).Logger()
	to := strings.TrimSpace(payload.Email)
	if to == "" {
		log.Info().Msg("order_confirmation_skipped_no_email")
		obs.ObserveNotification("deliver", "skipped")
		return nil
	}
	subject, body := RenderOrderConfirmation(payload)
	if err := p.Mail.Send(ctx, to, subject, body); err != nil {
		log.Warn().Err(err).Msg("order_confirmation_failed")
		obs.ObserveNotification("deliver", "error")
		return fmt.Errorf("send confirmation: %v: %w", err, asynq.SkipRetry)
	}
	obs.ObserveNotification("deliver", "ok")
	return nil
}

// RenderOrderConfirmation builds a plain-text email.
func RenderOrderConfirmation(p OrderConfirmation) (subject, body string) {
	short := p.OrderID
	if len(short) > 8 {
		short = short[:8]
	}
	subject = fmt.Sprintf("Your order %s is confirmed", strings.ToUpper(short))

	var b strings.Builder
	fmt.Fprintf(&b, "Thanks for your order!\n\n")
	fmt.Fprintf(&b, "Order: %s\nPlaced: %s\nItems: %d\n\n", p.OrderID, p.PlacedAt.Format(time.RFC1123), p.ItemCount)
	fmt.Fprintf(&b, "Subtotal: %s\n", money(p.Currency, p.Subtotal))
	if p.Discount > 0 {
		fmt.Fprintf(&b, "Discount (%s): -%s\n", p.CouponCode, money(p.Currency, p.Discount))
	}
	fmt.Fprintf(&b, "Tax: %s\n", money(p.Currency, p.Tax))
	fmt.Fprintf(&b, "Shipping (%s): %s\n", p.ShippingMethod, money(p.Currency, p.ShippingCost))
	fmt.Fprintf(&b, "Total: %s\n", money(p.Currency, p.Total))
	return subject, b.String()
}

func money(currency string, amount int64) string {
	if currency == "" || currency == "INR" {
		return fmt.Sprintf("₹%d", amount)
	}
	return fmt.Sprintf("%s %d", currency, amount)
}
