package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"craftshop-backend/internal/domain"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleOrder() domain.Order {
	return domain.Order{
		ID:     "ord-1",
		UserID: "u1",
		Items: []domain.OrderItem{
			{ProductID: "p1", Name: "Crochet Bunny", Price: decimal.NewFromInt(299), Quantity: 2},
		},
		Amount:        decimal.NewFromInt(648),
		DeliveryFee:   decimal.NewFromInt(50),
		Address:       domain.ShippingAddress{FirstName: "Asha", LastName: "Rao", Phone: "+911234567890"},
		PaymentMethod: domain.PaymentCOD,
		PaymentStatus: domain.PaymentPending,
		Status:        domain.OrderProcessing,
	}
}

type sms struct{ to, from, body string }

func twilioStub(t *testing.T, status int) (*httptest.Server, *[]sms) {
	t.Helper()
	var mu sync.Mutex
	var got []sms
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2010-04-01/Accounts/AC1/Messages.json", r.URL.Path)
		require.NoError(t, r.ParseForm())
		mu.Lock()
		got = append(got, sms{to: r.PostForm.Get("To"), from: r.PostForm.Get("From"), body: r.PostForm.Get("Body")})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status >= 400 {
			_, _ = w.Write([]byte(`{"message":"invalid number"}`))
			return
		}
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestTwilioSMS_OrderCreatedTextsCustomerAndAdmin(t *testing.T) {
	srv, got := twilioStub(t, http.StatusCreated)
	n, err := NewTwilioSMS(TwilioConfig{AccountSID: "AC1", AuthToken: "tok", From: "+100", AdminPhone: "+200", BaseURL: srv.URL})
	require.NoError(t, err)

	require.NoError(t, n.Notify(context.Background(), OrderCreated, sampleOrder()))
	require.Len(t, *got, 2)
	assert.Equal(t, "+911234567890", (*got)[0].to)
	assert.Contains(t, (*got)[0].body, "2x Crochet Bunny")
	assert.Contains(t, (*got)[0].body, "648.00")
	assert.Equal(t, "+200", (*got)[1].to)
	assert.Contains(t, (*got)[1].body, "Asha Rao")
}

func TestTwilioSMS_StatusChangeTextsCustomerOnly(t *testing.T) {
	srv, got := twilioStub(t, http.StatusCreated)
	n, err := NewTwilioSMS(TwilioConfig{AccountSID: "AC1", AuthToken: "tok", From: "+100", AdminPhone: "+200", BaseURL: srv.URL})
	require.NoError(t, err)

	o := sampleOrder()
	o.Status = domain.OrderShipped
	require.NoError(t, n.Notify(context.Background(), OrderStatusChanged, o))
	require.Len(t, *got, 1)
	assert.Contains(t, (*got)[0].body, "Shipped")
}

func TestTwilioSMS_ErrorStatus(t *testing.T) {
	srv, _ := twilioStub(t, http.StatusBadRequest)
	n, err := NewTwilioSMS(TwilioConfig{AccountSID: "AC1", AuthToken: "tok", From: "+100", BaseURL: srv.URL})
	require.NoError(t, err)
	err = n.Notify(context.Background(), OrderCreated, sampleOrder())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid number")
}

type fakeSQS struct {
	in  []*sqs.SendMessageInput
	err error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.in = append(f.in, in)
	return &sqs.SendMessageOutput{}, f.err
}

func TestSQSPublisher_SendsEnvelope(t *testing.T) {
	q := &fakeSQS{}
	p, err := NewSQSPublisher(q, "https://sqs.local/orders")
	require.NoError(t, err)

	require.NoError(t, p.Notify(context.Background(), OrderCreated, sampleOrder()))
	require.Len(t, q.in, 1)
	assert.Equal(t, "https://sqs.local/orders", *q.in[0].QueueUrl)
	assert.Equal(t, "order.created", *q.in[0].MessageAttributes["event"].StringValue)

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(*q.in[0].MessageBody), &env))
	assert.Equal(t, OrderCreated, env.Event)
	assert.Equal(t, "ord-1", env.Order.ID)
	assert.True(t, env.Order.Amount.Equal(decimal.NewFromInt(648)))
}

type stubNotifier struct {
	calls int
	err   error
}

func (s *stubNotifier) Notify(context.Context, Event, domain.Order) error {
	s.calls++
	return s.err
}

func TestFanout_CallsAllAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	a, b, c := &stubNotifier{}, &stubNotifier{err: boom}, &stubNotifier{}
	err := Fanout{a, b, Log{}, c}.Notify(context.Background(), OrderCreated, sampleOrder())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, c.calls)

	assert.NoError(t, Fanout{a}.Notify(context.Background(), OrderCreated, sampleOrder()))
}
