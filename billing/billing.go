// Package billing is the invoice bookkeeping collaborator behind the
// invoice.create and invoice.receipt tools.
package billing

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

var (
	// ErrInvoiceNotFound is returned for unknown invoice identifiers.
	ErrInvoiceNotFound = errors.New("invoice not found")
	// ErrInvalidAmount is returned for non-positive or non-finite amounts.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvoiceClosed is returned when settling a void invoice.
	ErrInvoiceClosed = errors.New("invoice closed")
)

// Status is the lifecycle state of an invoice.
type Status string

const (
	StatusOpen    Status = "open"
	StatusPartial Status = "partially_paid"
	StatusPaid    Status = "paid"
	StatusVoid    Status = "void"
)

// LineItem is one billed position.
type LineItem struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

// InvoiceRequest describes an invoice to create.
type InvoiceRequest struct {
	Customer string     `json:"customer"`
	Amount   float64    `json:"amount"`
	Currency string     `json:"currency"`
	Memo     string     `json:"memo,omitempty"`
	Items    []LineItem `json:"items,omitempty"`
}

// Invoice is a billed amount owed by a customer.
type Invoice struct {
	ID        string     `json:"id"`
	Customer  string     `json:"customer"`
	Amount    float64    `json:"amount"`
	Paid      float64    `json:"paid"`
	Currency  string     `json:"currency"`
	Memo      string     `json:"memo,omitempty"`
	Items     []LineItem `json:"items,omitempty"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// Outstanding returns the unpaid remainder.
func (inv Invoice) Outstanding() float64 { return math.Max(0, inv.Amount-inv.Paid) }

// Receipt acknowledges a settlement. Digest is a BLAKE3 hash over the
// receipt's canonical fields so it can be verified independently.
type Receipt struct {
	ID        string    `json:"id"`
	InvoiceID string    `json:"invoice_id"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	IssuedAt  time.Time `json:"issued_at"`
	Digest    string    `json:"digest"`
}

// EventType names a bookkeeping event.
type EventType string

const (
	EventCreated EventType = "invoice.created"
	EventSettled EventType = "invoice.settled"
	EventVoided  EventType = "invoice.voided"
)

// Event is an entry in an invoice's audit trail.
type Event struct {
	Type      EventType `json:"type"`
	InvoiceID string    `json:"invoice_id"`
	Amount    float64   `json:"amount,omitempty"`
	At        time.Time `json:"at"`
}

// Service is the bookkeeping contract used by the invoicing tools.
type Service interface {
	CreateInvoice(ctx context.Context, req InvoiceRequest) (Invoice, error)
	// Settle records a payment. A zero amount settles the outstanding balance.
	Settle(ctx context.Context, invoiceID string, amount float64) (Receipt, error)
	Poll(ctx context.Context, invoiceID string) (Invoice, error)
	EventsFor(ctx context.Context, invoiceID string) ([]Event, error)
}

// Options configures a Ledger.
type Options struct {
	// DefaultCurrency applies when a request names none.
	DefaultCurrency string
	// Now is the clock used for timestamps.
	Now func() time.Time
}

// Ledger is an in-memory Service.
type Ledger struct {
	opts Options

	mu       sync.Mutex
	invoices map[string]Invoice
	events   map[string][]Event
}

var _ Service = (*Ledger)(nil)

// NewLedger creates an empty ledger.
func NewLedger(optFns ...func(o *Options)) *Ledger {
	opts := Options{
		DefaultCurrency: "USD",
		Now:             time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Ledger{
		opts:     opts,
		invoices: make(map[string]Invoice),
		events:   make(map[string][]Event),
	}
}

func validAmount(a float64) bool { return a > 0 && !math.IsInf(a, 0) && !math.IsNaN(a) }

// CreateInvoice opens a new invoice. When line items are given and Amount is
// zero, the amount is their sum.
func (l *Ledger) CreateInvoice(_ context.Context, req InvoiceRequest) (Invoice, error) {
	amount := req.Amount
	if amount == 0 {
		for _, it := range req.Items {
			amount += it.Amount
		}
	}
	if !validAmount(amount) {
		return Invoice{}, fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	if req.Customer == "" {
		return Invoice{}, errors.New("customer is required")
	}
	currency := req.Currency
	if currency == "" {
		currency = l.opts.DefaultCurrency
	}

	inv := Invoice{
		ID:        "inv_" + uuid.NewString(),
		Customer:  req.Customer,
		Amount:    round2(amount),
		Currency:  currency,
		Memo:      req.Memo,
		Items:     append([]LineItem(nil), req.Items...),
		Status:    StatusOpen,
		CreatedAt: l.opts.Now().UTC(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.invoices[inv.ID] = inv
	l.events[inv.ID] = append(l.events[inv.ID], Event{Type: EventCreated, InvoiceID: inv.ID, Amount: inv.Amount, At: inv.CreatedAt})
	return inv, nil
}

// Settle records a payment against an invoice and issues a receipt.
func (l *Ledger) Settle(_ context.Context, invoiceID string, amount float64) (Receipt, error) {
	l.mu.Lock()
	inv, ok := l.invoices[invoiceID]
	if !ok {
		l.mu.Unlock()
		return Receipt{}, fmt.Errorf("%w: %s", ErrInvoiceNotFound, invoiceID)
	}
	if inv.Status == StatusVoid {
		l.mu.Unlock()
		return Receipt{}, fmt.Errorf("%w: %s is %s", ErrInvoiceClosed, invoiceID, inv.Status)
	}
	if amount == 0 {
		amount = inv.Outstanding()
	}
	if !validAmount(amount) {
		l.mu.Unlock()
		return Receipt{}, fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	now := l.opts.Now().UTC()
	inv.Paid = round2(inv.Paid + amount)
	if inv.Outstanding() == 0 {
		inv.Status = StatusPaid
	} else {
		inv.Status = StatusPartial
	}
	l.invoices[invoiceID] = inv
	l.events[invoiceID] = append(l.events[invoiceID], Event{Type: EventSettled, InvoiceID: invoiceID, Amount: round2(amount), At: now})
	l.mu.Unlock()

	r := Receipt{
		ID:        "rcpt_" + uuid.NewString(),
		InvoiceID: invoiceID,
		Amount:    round2(amount),
		Currency:  inv.Currency,
		IssuedAt:  now,
	}
	r.Digest = Digest(r)
	return r, nil
}

// Void closes an open invoice without payment.
func (l *Ledger) Void(_ context.Context, invoiceID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	inv, ok := l.invoices[invoiceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvoiceNotFound, invoiceID)
	}
	if inv.Status == StatusPaid {
		return fmt.Errorf("%w: %s is %s", ErrInvoiceClosed, invoiceID, inv.Status)
	}
	inv.Status = StatusVoid
	l.invoices[invoiceID] = inv
	l.events[invoiceID] = append(l.events[invoiceID], Event{Type: EventVoided, InvoiceID: invoiceID, At: l.opts.Now().UTC()})
	return nil
}

// Poll returns the current state of an invoice.
func (l *Ledger) Poll(_ context.Context, invoiceID string) (Invoice, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	inv, ok := l.invoices[invoiceID]
	if !ok {
		return Invoice{}, fmt.Errorf("%w: %s", ErrInvoiceNotFound, invoiceID)
	}
	return inv, nil
}

// EventsFor returns the invoice's audit trail in chronological order.
func (l *Ledger) EventsFor(_ context.Context, invoiceID string) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	evs, ok := l.events[invoiceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvoiceNotFound, invoiceID)
	}
	out := append([]Event(nil), evs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

// Digest computes the hex BLAKE3 digest of a receipt's canonical fields.
func Digest(r Receipt) string {
	h := blake3.New()
	for _, field := range []string{
		r.ID,
		r.InvoiceID,
		strconv.FormatFloat(r.Amount, 'f', 2, 64),
		r.Currency,
		r.IssuedAt.UTC().Format(time.RFC3339Nano),
	} {
		_, _ = h.Write([]byte(field))
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyReceipt reports whether the receipt's digest matches its fields.
func VerifyReceipt(r Receipt) bool { return Digest(r) == r.Digest }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
