package specialist

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/supportd/internal/cache"
	"github.com/ashureev/supportd/internal/domain"
	"github.com/ashureev/supportd/internal/kv"
	"github.com/ashureev/supportd/internal/source"
)

type fixture struct {
	orders *cache.OrderCache
	faq    *cache.FAQCache
	states *cache.AgentStateCache
	mock   *source.Mock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend, err := kv.OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { backend.Close() })

	c := cache.New(backend)
	mock := source.NewMock(source.WithLatency(0, 0, 0))
	return &fixture{
		orders: cache.NewOrderCache(c, mock, time.Hour, time.Hour),
		faq:    cache.NewFAQCache(c, mock, time.Hour, 5),
		states: cache.NewAgentStateCache(c, time.Hour),
		mock:   mock,
	}
}

func TestOrderLookupByID(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	spec := NewOrderLookup(fx.orders, fx.states, nil)
	ctx := context.Background()

	order, err := fx.mock.LookupOrder(ctx, "ORD1001")
	if err != nil {
		t.Fatalf("LookupOrder: %v", err)
	}

	reply, err := spec.Handle(ctx, Request{SessionID: "s1", Message: "What's the status of order ORD1001?"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(reply, "ORD1001") || !strings.Contains(reply, order.Product) {
		t.Errorf("reply = %q, want order ID and product mentioned", reply)
	}

	state, err := fx.states.Get(ctx, "s1", domain.SpecialistOrderLookup)
	if err != nil {
		t.Fatalf("Get state: %v", err)
	}
	if state.Queries != 1 || len(state.Topics) != 1 || state.Topics[0] != "ORD1001" {
		t.Errorf("state = %+v, want 1 query with topic ORD1001", state)
	}
}

func TestOrderLookupUnknownIDIsPoliteNotAnError(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	spec := NewOrderLookup(fx.orders, fx.states, nil)

	reply, err := spec.Handle(context.Background(), Request{SessionID: "s1", Message: "where is ORD9999?"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(reply, "ORD9999") || !strings.Contains(reply, "not found") {
		t.Errorf("reply = %q, want a not-found explanation", reply)
	}
}

func TestOrderLookupLowercaseID(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	spec := NewOrderLookup(fx.orders, fx.states, nil)

	reply, err := spec.Handle(context.Background(), Request{SessionID: "s1", Message: "track ord1002 please"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(reply, "ORD1002") {
		t.Errorf("reply = %q, want normalized ORD1002", reply)
	}
}

func TestOrderLookupByEmail(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	spec := NewOrderLookup(fx.orders, fx.states, nil)

	reply, err := spec.Handle(context.Background(),
		Request{SessionID: "s1", Message: "show me orders for customer3@example.com"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(reply, "customer3@example.com") || !strings.Contains(reply, "ORD1003") {
		t.Errorf("reply = %q, want order list for the email", reply)
	}
}

func TestOrderLookupWithoutIdentifiersAsksForOne(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	spec := NewOrderLookup(fx.orders, fx.states, nil)

	reply, err := spec.Handle(context.Background(), Request{SessionID: "s1", Message: "my order is late"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(reply, "order ID") {
		t.Errorf("reply = %q, want a prompt for an order ID", reply)
	}
}

func TestFAQAnswersReturnPolicy(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	spec := NewFAQ(fx.faq, fx.states, nil)
	ctx := context.Background()

	reply, err := spec.Handle(ctx, Request{SessionID: "s1", Message: "What is your return policy?"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(reply, "30 days") {
		t.Errorf("reply = %q, want the return policy answer", reply)
	}

	state, err := fx.states.Get(ctx, "s1", domain.SpecialistFAQ)
	if err != nil {
		t.Fatalf("Get state: %v", err)
	}
	if len(state.Topics) == 0 || state.Topics[0] != "return" {
		t.Errorf("state topics = %v, want [return]", state.Topics)
	}
}

func TestFAQFallsBackToContactInfo(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	spec := NewFAQ(fx.faq, fx.states, nil)

	reply, err := spec.Handle(context.Background(), Request{SessionID: "s1", Message: "xyzzy plugh"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(reply, "support@example.com") {
		t.Errorf("reply = %q, want contact info fallback", reply)
	}
}

func TestFAQBusinessHours(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	spec := NewFAQ(fx.faq, fx.states, nil)

	reply, err := spec.Handle(context.Background(),
		Request{SessionID: "s1", Message: "what are your business hours?"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(reply, "9AM-6PM") {
		t.Errorf("reply = %q, want business hours", reply)
	}
}

func TestAnswerServiceComposesReply(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/compose" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"answer":"Here is what I found for you."}`))
	}))
	t.Cleanup(srv.Close)

	fx := newFixture(t)
	spec := NewFAQ(fx.faq, fx.states, NewAnswerClient(srv.URL, time.Second))

	reply, err := spec.Handle(context.Background(),
		Request{SessionID: "s1", Message: "What is your return policy?"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply != "Here is what I found for you." {
		t.Errorf("reply = %q, want the composed answer", reply)
	}
}

func TestAnswerServiceFailureSurfacesAsUpstream(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	fx := newFixture(t)
	spec := NewOrderLookup(fx.orders, fx.states, NewAnswerClient(srv.URL, time.Second))

	_, err := spec.Handle(context.Background(),
		Request{SessionID: "s1", Message: "status of ORD1001"})
	if !errors.Is(err, domain.ErrUpstream) {
		t.Errorf("Handle with failing answer service: err = %v, want ErrUpstream", err)
	}
}
