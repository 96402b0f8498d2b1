package mocks

import (
	"context"
	"sync"

	"github.com/Talej/lnurl-cypherapp/lnclient"
)

// MockLNClient implements lnclient.LNClient with overridable behavior per
// method. The zero value succeeds with canned responses and records calls.
type MockLNClient struct {
	mu sync.Mutex

	PayInvoiceFunc  func(ctx context.Context, bolt11 string) (*lnclient.PayInvoiceResponse, error)
	MakeInvoiceFunc func(ctx context.Context, req *lnclient.MakeInvoiceRequest) (*lnclient.MakeInvoiceResponse, error)
	PayOnchainFunc  func(ctx context.Context, address string, amountSat int64) (*lnclient.PayOnchainResponse, error)

	PaidInvoices    []string
	InvoiceRequests []lnclient.MakeInvoiceRequest
	OnchainPayments []OnchainPayment
}

type OnchainPayment struct {
	Address   string
	AmountSat int64
}

var _ lnclient.LNClient = (*MockLNClient)(nil)

func (m *MockLNClient) PayInvoice(ctx context.Context, bolt11 string) (*lnclient.PayInvoiceResponse, error) {
	m.mu.Lock()
	m.PaidInvoices = append(m.PaidInvoices, bolt11)
	m.mu.Unlock()

	if m.PayInvoiceFunc != nil {
		return m.PayInvoiceFunc(ctx, bolt11)
	}
	return &lnclient.PayInvoiceResponse{
		PaymentHash: "0000000000000000000000000000000000000000000000000000000000000000",
		Preimage:    "1111111111111111111111111111111111111111111111111111111111111111",
	}, nil
}

func (m *MockLNClient) MakeInvoice(ctx context.Context, req *lnclient.MakeInvoiceRequest) (*lnclient.MakeInvoiceResponse, error) {
	m.mu.Lock()
	m.InvoiceRequests = append(m.InvoiceRequests, *req)
	m.mu.Unlock()

	if m.MakeInvoiceFunc != nil {
		return m.MakeInvoiceFunc(ctx, req)
	}
	return &lnclient.MakeInvoiceResponse{
		Bolt11:      "lnbc1mockinvoice" + req.Label,
		Label:       req.Label,
		PaymentHash: "2222222222222222222222222222222222222222222222222222222222222222",
	}, nil
}

func (m *MockLNClient) PayOnchain(ctx context.Context, address string, amountSat int64) (*lnclient.PayOnchainResponse, error) {
	m.mu.Lock()
	m.OnchainPayments = append(m.OnchainPayments, OnchainPayment{Address: address, AmountSat: amountSat})
	m.mu.Unlock()

	if m.PayOnchainFunc != nil {
		return m.PayOnchainFunc(ctx, address, amountSat)
	}
	return &lnclient.PayOnchainResponse{
		TxId: "3333333333333333333333333333333333333333333333333333333333333333",
	}, nil
}
