package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"xinyuan_tech/billing-sync-service/internal/biz"
	"xinyuan_tech/billing-sync-service/internal/conf"
	"xinyuan_tech/billing-sync-service/internal/constants"
	"xinyuan_tech/billing-sync-service/internal/service"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const testWebhookSecret = "whsec_test_secret"

// fakeAccountRepo 内存账户仓库
type fakeAccountRepo struct {
	accounts map[string]*biz.Account
	saveErr  error
}

func (r *fakeAccountRepo) GetAccount(_ context.Context, uid string) (*biz.Account, error) {
	return r.accounts[uid], nil
}

func (r *fakeAccountRepo) GetAccountByCustomerID(_ context.Context, customerID string) (*biz.Account, error) {
	for _, a := range r.accounts {
		if a.CustomerID == customerID {
			return a, nil
		}
	}
	return nil, nil
}

func (r *fakeAccountRepo) GetAccountBySubscriptionID(_ context.Context, subscriptionID string) (*biz.Account, error) {
	for _, a := range r.accounts {
		if a.SubscriptionID == subscriptionID {
			return a, nil
		}
	}
	return nil, nil
}

func (r *fakeAccountRepo) SaveAccount(_ context.Context, acct *biz.Account) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.accounts[acct.UID] = acct
	return nil
}

func (r *fakeAccountRepo) ExpireLapsed(_ context.Context, _ time.Time) (int, []string, error) {
	return 0, nil, nil
}

// fakePaymentRepo 内存支付记录仓库
type fakePaymentRepo struct {
	records []*biz.PaymentRecord
}

func (r *fakePaymentRepo) AddPaymentRecord(_ context.Context, rec *biz.PaymentRecord) error {
	for _, existing := range r.records {
		if existing.ProviderEventID == rec.ProviderEventID {
			return biz.ErrDuplicatePaymentRecord
		}
	}
	r.records = append(r.records, rec)
	return nil
}

func (r *fakePaymentRepo) GetPaymentHistory(_ context.Context, uid string, _, _ int) ([]*biz.PaymentRecord, int, error) {
	var items []*biz.PaymentRecord
	for _, rec := range r.records {
		if rec.UID == uid {
			items = append(items, rec)
		}
	}
	return items, len(items), nil
}

// fakeEventRepo 内存事件去重仓库
type fakeEventRepo struct {
	seen map[string]bool
}

func (r *fakeEventRepo) RecordEvent(_ context.Context, providerEventID, _ string, _ []byte) error {
	if r.seen[providerEventID] {
		return biz.ErrDuplicateEvent
	}
	r.seen[providerEventID] = true
	return nil
}

func (r *fakeEventRepo) PruneBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type fakeTx struct{}

func (fakeTx) Exec(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type serverFixture struct {
	ts       *httptest.Server
	accounts *fakeAccountRepo
	payments *fakePaymentRepo
	events   *fakeEventRepo
}

func newServerFixture(t *testing.T, accounts ...*biz.Account) *serverFixture {
	t.Helper()

	accountRepo := &fakeAccountRepo{accounts: make(map[string]*biz.Account)}
	for _, a := range accounts {
		accountRepo.accounts[a.UID] = a
	}
	paymentRepo := &fakePaymentRepo{}
	eventRepo := &fakeEventRepo{seen: make(map[string]bool)}

	config := &conf.Bootstrap{
		Server:  &conf.Server{},
		Stripe:  &conf.Stripe{WebhookSecret: testWebhookSecret},
		Webhook: &conf.Webhook{MissingAccountPolicy: constants.MissPolicyIgnore},
	}

	logger := log.NewStdLogger(io.Discard)
	rec := biz.NewReconcilerUsecase(accountRepo, paymentRepo, eventRepo, nil, fakeTx{}, nil, config, logger)
	svc := service.NewWebhookService(rec, config, logger)
	srv := NewHTTPServer(config, svc, logger)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return &serverFixture{ts: ts, accounts: accountRepo, payments: paymentRepo, events: eventRepo}
}

// signPayload 按提供方的签名头格式生成 Stripe-Signature
func signPayload(payload []byte, secret string, at time.Time) string {
	sig := webhook.ComputeSignature(at, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(sig))
}

func eventPayload(id, eventType, objectJSON string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"type":%q,"api_version":%q,"created":%d,"data":{"object":%s}}`,
		id, eventType, stripe.APIVersion, time.Now().Unix(), objectJSON))
}

func (f *serverFixture) postWebhook(t *testing.T, payload []byte, sigHeader string) (*stdhttp.Response, map[string]interface{}) {
	t.Helper()
	req, err := stdhttp.NewRequest(stdhttp.MethodPost, f.ts.URL+"/webhook", strings.NewReader(string(payload)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if sigHeader != "" {
		req.Header.Set("Stripe-Signature", sigHeader)
	}

	resp, err := f.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && json.Valid(raw) {
		require.NoError(t, json.Unmarshal(raw, &body))
	}
	return resp, body
}

func TestWebhookMissingSignature(t *testing.T) {
	fix := newServerFixture(t)

	payload := eventPayload("evt_1", constants.EventSubscriptionUpdated, `{"id":"sub_1","status":"active"}`)
	resp, _ := fix.postWebhook(t, payload, "")

	assert.Equal(t, stdhttp.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, fix.events.seen)
}

func TestWebhookInvalidSignature(t *testing.T) {
	fix := newServerFixture(t)

	payload := eventPayload("evt_1", constants.EventSubscriptionUpdated, `{"id":"sub_1","status":"active"}`)
	resp, _ := fix.postWebhook(t, payload, signPayload(payload, "whsec_wrong_secret", time.Now()))

	assert.Equal(t, stdhttp.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, fix.events.seen)
}

func TestWebhookTamperedPayload(t *testing.T) {
	fix := newServerFixture(t)

	payload := eventPayload("evt_1", constants.EventSubscriptionUpdated, `{"id":"sub_1","status":"active"}`)
	sig := signPayload(payload, testWebhookSecret, time.Now())
	tampered := []byte(strings.Replace(string(payload), "sub_1", "sub_2", 1))

	resp, _ := fix.postWebhook(t, tampered, sig)

	assert.Equal(t, stdhttp.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, fix.events.seen)
}

func TestWebhookStaleTimestamp(t *testing.T) {
	fix := newServerFixture(t)

	payload := eventPayload("evt_1", constants.EventSubscriptionUpdated, `{"id":"sub_1","status":"active"}`)
	resp, _ := fix.postWebhook(t, payload, signPayload(payload, testWebhookSecret, time.Now().Add(-time.Hour)))

	assert.Equal(t, stdhttp.StatusBadRequest, resp.StatusCode)
}

func TestWebhookSubscriptionUpdated(t *testing.T) {
	fix := newServerFixture(t, &biz.Account{
		UID:                "u1",
		SubscriptionID:     "sub_1",
		SubscriptionStatus: constants.StatusActive,
	})

	payload := eventPayload("evt_1", constants.EventSubscriptionUpdated, `{"id":"sub_1","status":"past_due"}`)
	resp, body := fix.postWebhook(t, payload, signPayload(payload, testWebhookSecret, time.Now()))

	assert.Equal(t, stdhttp.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["received"])
	assert.Equal(t, constants.StatusInactive, fix.accounts.accounts["u1"].SubscriptionStatus)
}

func TestWebhookDuplicateDelivery(t *testing.T) {
	fix := newServerFixture(t, &biz.Account{
		UID:                "u1",
		SubscriptionID:     "sub_1",
		SubscriptionStatus: constants.StatusActive,
	})

	payload := eventPayload("evt_1", constants.EventPaymentSucceeded,
		`{"id":"in_1","amount_paid":1999,"currency":"usd","subscription":{"id":"sub_1"}}`)

	resp, body := fix.postWebhook(t, payload, signPayload(payload, testWebhookSecret, time.Now()))
	assert.Equal(t, stdhttp.StatusOK, resp.StatusCode)
	assert.Nil(t, body["duplicate"])

	resp, body = fix.postWebhook(t, payload, signPayload(payload, testWebhookSecret, time.Now()))
	assert.Equal(t, stdhttp.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["duplicate"])

	assert.Len(t, fix.payments.records, 1)
}

func TestWebhookUnknownEventTypeAcknowledged(t *testing.T) {
	fix := newServerFixture(t)

	payload := eventPayload("evt_1", "customer.created", `{"id":"cus_1"}`)
	resp, body := fix.postWebhook(t, payload, signPayload(payload, testWebhookSecret, time.Now()))

	assert.Equal(t, stdhttp.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["received"])
	// 未知类型确认后丢弃, 不写去重记录
	assert.Empty(t, fix.events.seen)
}

func TestWebhookStoreWriteFailureReturns500(t *testing.T) {
	fix := newServerFixture(t, &biz.Account{
		UID:                "u1",
		SubscriptionID:     "sub_1",
		SubscriptionStatus: constants.StatusActive,
	})
	fix.accounts.saveErr = errors.New("connection reset")

	payload := eventPayload("evt_1", constants.EventSubscriptionUpdated, `{"id":"sub_1","status":"past_due"}`)
	resp, body := fix.postWebhook(t, payload, signPayload(payload, testWebhookSecret, time.Now()))

	// 持久化失败不能静默确认, 必须 500 触发提供方重投
	assert.Equal(t, stdhttp.StatusInternalServerError, resp.StatusCode)
	assert.Nil(t, body["received"])
	assert.Equal(t, float64(140202), body["code"])
}

func TestGetSubscriptionStatus(t *testing.T) {
	periodEnd := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	fix := newServerFixture(t, &biz.Account{
		UID:                "u1",
		SubscriptionID:     "sub_1",
		SubscriptionStatus: constants.StatusActive,
		CurrentPeriodEnd:   &periodEnd,
	})

	resp, err := fix.ts.Client().Get(fix.ts.URL + "/subscription-status/u1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "u1", body["uid"])
	assert.Equal(t, constants.StatusActive, body["subscription_status"])
	assert.Equal(t, "sub_1", body["subscription_id"])
}

func TestGetSubscriptionStatusNotFound(t *testing.T) {
	fix := newServerFixture(t)

	resp, err := fix.ts.Client().Get(fix.ts.URL + "/subscription-status/missing")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, stdhttp.StatusNotFound, resp.StatusCode)
}

func TestGetPaymentHistory(t *testing.T) {
	fix := newServerFixture(t, &biz.Account{
		UID:                "u1",
		SubscriptionID:     "sub_1",
		SubscriptionStatus: constants.StatusActive,
	})

	payload := eventPayload("evt_1", constants.EventPaymentSucceeded,
		`{"id":"in_1","amount_paid":1999,"currency":"usd","subscription":{"id":"sub_1"}}`)
	resp, _ := fix.postWebhook(t, payload, signPayload(payload, testWebhookSecret, time.Now()))
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)

	resp, err := fix.ts.Client().Get(fix.ts.URL + "/payment-history/u1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)

	var body struct {
		Items []struct {
			InvoiceID string `json:"invoice_id"`
			Amount    int64  `json:"amount"`
			Status    string `json:"status"`
		} `json:"items"`
		Total int `json:"total"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Total)
	require.Len(t, body.Items, 1)
	assert.Equal(t, "in_1", body.Items[0].InvoiceID)
	assert.Equal(t, int64(1999), body.Items[0].Amount)
	assert.Equal(t, constants.PaymentStatusSucceeded, body.Items[0].Status)
}

func TestHealthEndpoint(t *testing.T) {
	fix := newServerFixture(t)

	resp, err := fix.ts.Client().Get(fix.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, ServiceName, body["service"])
}

func TestMapErrorStatus(t *testing.T) {
	assert.Equal(t, stdhttp.StatusBadRequest, mapErrorStatus(140101))
	assert.Equal(t, stdhttp.StatusNotFound, mapErrorStatus(140201))
	assert.Equal(t, stdhttp.StatusInternalServerError, mapErrorStatus(140301))
	assert.Equal(t, stdhttp.StatusForbidden, mapErrorStatus(403))
}
