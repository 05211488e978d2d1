package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
)

// MockCall — запись одного вызова MockClient.
type MockCall struct {
	Call    string
	Family  domain.OrderFamily
	Country string
	Request any
}

type mockResult struct {
	resp domain.VendorResponse
	err  error
}

// MockClient — детерминированная реализация VendorClient для тестов и локального запуска.
// Ответы ставятся в очередь на каждый вызов; без очереди провайдер принимает запрос.
type MockClient struct {
	mu      sync.Mutex
	queue   map[string][]mockResult
	calls   []MockCall
	counter int
}

// NewMockClient создаёт MockClient.
func NewMockClient() *MockClient {
	return &MockClient{queue: make(map[string][]mockResult)}
}

// Enqueue добавляет ответ для следующего вызова call.
func (m *MockClient) Enqueue(call string, resp domain.VendorResponse, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue[call] = append(m.queue[call], mockResult{resp: resp, err: err})
}

// Reject ставит в очередь отказ провайдера с кодом и сообщением.
func (m *MockClient) Reject(call string, code int, message string) {
	m.Enqueue(call, domain.VendorResponse{Accepted: false, ResultCode: code, ErrorMessage: message}, nil)
}

// Calls возвращает копию журнала вызовов.
func (m *MockClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount возвращает число вызовов call (для пустой строки считаются все вызовы).
func (m *MockClient) CallCount(call string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if call == "" {
		return len(m.calls)
	}
	n := 0
	for _, c := range m.calls {
		if c.Call == call {
			n++
		}
	}
	return n
}

// Reset очищает журнал и очереди.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = make(map[string][]mockResult)
	m.calls = nil
}

func (m *MockClient) Create(ctx context.Context, req domain.CreateRequest) (domain.VendorResponse, error) {
	return m.next(ctx, CallCreate, req.Target, req, func(n int) domain.VendorResponse {
		resp := domain.VendorResponse{Accepted: true, OrderID: fmt.Sprintf("MOCK-%d", n)}
		if req.Family == domain.FamilyCard || req.Family == domain.FamilyDirectBank {
			resp.RedirectURL = fmt.Sprintf("%s/mock/%d", req.Endpoint, n)
		}
		return resp
	})
}

func (m *MockClient) Query(ctx context.Context, ref domain.VendorRef) (domain.VendorResponse, error) {
	return m.next(ctx, CallQuery, ref.Target, ref, func(int) domain.VendorResponse {
		return domain.VendorResponse{Accepted: true, OrderID: ref.OrderID, OrderStatus: "Active"}
	})
}

func (m *MockClient) Deliver(ctx context.Context, req domain.DeliverRequest) (domain.VendorResponse, error) {
	return m.next(ctx, CallDeliver, req.Target, req, func(n int) domain.VendorResponse {
		return domain.VendorResponse{Accepted: true, OrderID: req.OrderID, InvoiceID: fmt.Sprintf("INV-%d", n)}
	})
}

func (m *MockClient) Credit(ctx context.Context, req domain.CreditRequest) (domain.VendorResponse, error) {
	return m.next(ctx, CallCredit, req.Target, req, func(int) domain.VendorResponse {
		return domain.VendorResponse{Accepted: true, OrderID: req.OrderID, InvoiceID: req.InvoiceID}
	})
}

func (m *MockClient) Cancel(ctx context.Context, ref domain.VendorRef) (domain.VendorResponse, error) {
	return m.next(ctx, CallCancel, ref.Target, ref, func(int) domain.VendorResponse {
		return domain.VendorResponse{Accepted: true, OrderID: ref.OrderID}
	})
}

func (m *MockClient) Recur(ctx context.Context, req domain.RecurRequest) (domain.VendorResponse, error) {
	return m.next(ctx, CallRecur, req.Target, req, func(n int) domain.VendorResponse {
		return domain.VendorResponse{Accepted: true, TransactionID: fmt.Sprintf("MOCK-TX-%d", n)}
	})
}

func (m *MockClient) ParseHostedResponse(ctx context.Context, req domain.HostedResponseRequest) (domain.VendorResponse, error) {
	return m.next(ctx, CallHostedResponse, req.Target, req, func(n int) domain.VendorResponse {
		return domain.VendorResponse{Accepted: true, TransactionID: fmt.Sprintf("MOCK-TX-%d", n)}
	})
}

func (m *MockClient) next(ctx context.Context, call string, target domain.Target, req any, fallback func(int) domain.VendorResponse) (domain.VendorResponse, error) {
	if err := ctx.Err(); err != nil {
		return domain.VendorResponse{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.counter++
	m.calls = append(m.calls, MockCall{Call: call, Family: target.Family, Country: target.Country, Request: req})

	if queued := m.queue[call]; len(queued) > 0 {
		m.queue[call] = queued[1:]
		return queued[0].resp, queued[0].err
	}
	return fallback(m.counter), nil
}

var _ domain.VendorClient = (*MockClient)(nil)
