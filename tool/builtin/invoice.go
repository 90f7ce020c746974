package builtin

import (
	"context"
	"errors"

	"github.com/hupe1980/taskmesh/billing"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/tool"
)

type invoiceCreate struct {
	svc    billing.Service
	freeze FreezeSwitch
}

func invoiceCreateDescriptor(svc billing.Service, freeze FreezeSwitch) tool.Descriptor {
	return tool.Descriptor{
		Name:    "invoice.create",
		Summary: "Open an invoice for a customer.",
		Params: []tool.ParamSpec{
			tool.RequiredParam("customer", core.KindString, "customer identifier"),
			tool.RequiredParam("amount", core.KindDouble, "amount due"),
			tool.Param("currency", core.KindString, "ISO currency, default USD"),
			tool.Param("memo", core.KindString, "free text memo"),
		},
		Executor: &invoiceCreate{svc: svc, freeze: freeze},
	}
}

func (t *invoiceCreate) Execute(ctx context.Context, args tool.Args) (any, error) {
	if err := t.freeze.Check(ScopeBilling); err != nil {
		return nil, err
	}
	return t.svc.CreateInvoice(ctx, billing.InvoiceRequest{
		Customer: args.String("customer"),
		Amount:   args.DoubleOr("amount", 0),
		Currency: args.String("currency"),
		Memo:     args.String("memo"),
	})
}

// ReceiptPayload is the payload of invoice.receipt.
type ReceiptPayload struct {
	Receipt billing.Receipt `json:"receipt"`
	Invoice billing.Invoice `json:"invoice"`
	Events  []billing.Event `json:"events"`
}

type invoiceReceipt struct {
	svc billing.Service
}

func invoiceReceiptDescriptor(svc billing.Service) tool.Descriptor {
	return tool.Descriptor{
		Name:    "invoice.receipt",
		Summary: "Settle an invoice (fully by default) and issue a receipt.",
		Params: []tool.ParamSpec{
			tool.RequiredParam("invoice_id", core.KindString, "invoice identifier"),
			tool.Param("amount", core.KindDouble, "amount paid, default the outstanding balance"),
		},
		Executor: &invoiceReceipt{svc: svc},
	}
}

func (t *invoiceReceipt) Execute(ctx context.Context, args tool.Args) (any, error) {
	id := args.String("invoice_id")
	receipt, err := t.svc.Settle(ctx, id, args.DoubleOr("amount", 0))
	if errors.Is(err, billing.ErrInvoiceNotFound) {
		return notFound("invoice_id", id), nil
	}
	if err != nil {
		return nil, err
	}
	inv, err := t.svc.Poll(ctx, id)
	if err != nil {
		return nil, err
	}
	events, err := t.svc.EventsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	return ReceiptPayload{Receipt: receipt, Invoice: inv, Events: events}, nil
}
