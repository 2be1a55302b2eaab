package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aloewind/exportremix-sub001/app/aiproto"
	"github.com/aloewind/exportremix-sub001/app/config"
	"github.com/aloewind/exportremix-sub001/app/llm"
	"github.com/aloewind/exportremix-sub001/app/models"
	"github.com/aloewind/exportremix-sub001/app/quota"
	"github.com/aloewind/exportremix-sub001/app/store"
	"github.com/aloewind/exportremix-sub001/app/tariff"
	"github.com/aloewind/exportremix-sub001/app/tiers"
	"github.com/aloewind/exportremix-sub001/auth"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"
)

const (
	testSecret   = "test-secret"
	testAudience = "authenticated"
	testUser     = "user-1"
	testWebhook  = "whsec_test"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router   *gin.Engine
	mem      *store.Memory
	calls    *atomic.Int32
	payments *fakePayments
}

type fakePayments struct {
	customers int
	checkout  CheckoutParams
}

func (f *fakePayments) CreateCustomer(_ context.Context, userID, _ string) (string, error) {
	f.customers++
	return "cus_" + userID, nil
}

func (f *fakePayments) CheckoutURL(_ context.Context, req CheckoutParams) (string, error) {
	f.checkout = req
	return "https://checkout.stripe.test/" + string(req.Tier), nil
}

func (f *fakePayments) PortalURL(_ context.Context, customerID, _ string) (string, error) {
	return "https://billing.stripe.test/" + customerID, nil
}

// newTestEnv serves every model call with reply.
func newTestEnv(t *testing.T, reply string, unlimited ...string) *testEnv {
	t.Helper()
	cfg := &config.Config{
		Auth: config.AuthConfig{Audience: testAudience, JWTSecret: testSecret},
		Stripe: config.StripeConfig{
			WebhookSecret: testWebhook,
			FrontendURL:   "https://app.example.test/",
			PriceIDs:      map[string]string{"pro": "price_pro", "enterprise": "price_ent"},
		},
	}
	verifier, err := auth.NewHMACVerifier("", testAudience, testSecret)
	require.NoError(t, err)

	calls := &atomic.Int32{}
	gen := llm.Func(func(context.Context, llm.Request) (string, error) {
		calls.Add(1)
		return reply, nil
	})

	mem := store.NewMemory()
	catalog := tiers.Default()
	payments := &fakePayments{}
	s := NewServer(Deps{
		Config:    cfg,
		Gate:      quota.NewGate(catalog, mem, mem, quota.WithUnlimitedAccounts(unlimited...)),
		Protocol:  aiproto.New(gen),
		Reference: tariff.Default(),
		Catalog:   catalog,
		Billing:   mem,
		Verifier:  verifier,
		Payments:  payments,
	})
	return &testEnv{router: NewRouter(s), mem: mem, calls: calls, payments: payments}
}

func bearer(t *testing.T, sub, email string) string {
	t.Helper()
	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"email": email,
		"aud":   testAudience,
		"exp":   now.Add(10 * time.Minute).Unix(),
		"iat":   now.Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

func (e *testEnv) do(t *testing.T, method, path, authz string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) used(t *testing.T, action models.ActionType) int {
	t.Helper()
	n, err := e.mem.ReadUsage(context.Background(), testUser, action, models.MonthKey(time.Now()))
	if errors.Is(err, store.ErrNotFound) {
		return 0
	}
	require.NoError(t, err)
	return n
}

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv(t, "{}")
	rec := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestMeteredRouteRequiresToken(t *testing.T) {
	env := newTestEnv(t, "{}")
	rec := env.do(t, http.MethodPost, "/api/hs-suggest", "", models.HSSuggestRequest{Description: "steel pipes"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, env.calls.Load())
}

func TestInvalidInputIsRejectedBeforeQuota(t *testing.T) {
	env := newTestEnv(t, "{}")
	rec := env.do(t, http.MethodPost, "/api/hs-suggest", bearer(t, testUser, ""), models.HSSuggestRequest{Description: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "description is required")
	assert.Zero(t, env.calls.Load())
	assert.Zero(t, env.used(t, models.ActionAIAnalysis))
}

func TestExhaustedFreeTierGets429WithoutModelCall(t *testing.T) {
	env := newTestEnv(t, "{}")
	_, err := env.mem.IncrementUsage(context.Background(), testUser, models.ActionAIAnalysis, models.MonthKey(time.Now()), 100)
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/hs-suggest", bearer(t, testUser, ""), models.HSSuggestRequest{Description: "steel pipes"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 0, body["remaining"])
	assert.EqualValues(t, 100, body["limit"])
	assert.NotEmpty(t, body["error"])
	assert.Zero(t, env.calls.Load())
	assert.Equal(t, 100, env.used(t, models.ActionAIAnalysis))
}

func TestUnlimitedAccountBypassesQuotaAndIsNotTracked(t *testing.T) {
	env := newTestEnv(t, "{}", "Owner@Example.com")
	_, err := env.mem.IncrementUsage(context.Background(), testUser, models.ActionAIAnalysis, models.MonthKey(time.Now()), 100)
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/hs-suggest", bearer(t, testUser, "owner@example.com"), models.HSSuggestRequest{Description: "steel pipes"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, env.used(t, models.ActionAIAnalysis))
}

func TestGarbageModelOutputFallsBackAndIsTracked(t *testing.T) {
	env := newTestEnv(t, "Sorry, I cannot classify that.")
	rec := env.do(t, http.MethodPost, "/api/hs-suggest", bearer(t, testUser, ""), models.HSSuggestRequest{Description: "welded steel pipes"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(aiproto.StateFallback), rec.Header().Get(outcomeHeader))
	assert.EqualValues(t, 3, env.calls.Load())

	var result models.HSSuggestionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.LessOrEqual(t, len(result.Suggestions), aiproto.MaxHSSuggestions)
	assert.Equal(t, 1, env.used(t, models.ActionAIAnalysis))
}

func TestValidModelOutputSucceeds(t *testing.T) {
	env := newTestEnv(t, "```json\n{\"suggestions\":[{\"code\":\"7306.30.50\",\"confidence\":95,\"description\":\"Welded steel tubes\"}]}\n```")
	rec := env.do(t, http.MethodPost, "/api/hs-suggest", bearer(t, testUser, ""), models.HSSuggestRequest{Description: "welded steel pipes"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(aiproto.StateSuccess), rec.Header().Get(outcomeHeader))

	var result models.HSSuggestionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotEmpty(t, result.Suggestions)
	assert.Equal(t, "73063050", result.Suggestions[0].Code)
	assert.Equal(t, 95, result.Suggestions[0].Confidence)
	assert.EqualValues(t, 1, env.calls.Load())
}

func TestDutyEstimateUnderUSMCA(t *testing.T) {
	env := newTestEnv(t, "not json")
	rec := env.do(t, http.MethodPost, "/api/duty-estimate", bearer(t, testUser, ""), models.DutyEstimateRequest{
		HSCode:             "7306.30",
		OriginCountry:      "Mexico",
		DestinationCountry: "US",
		Value:              25000,
		Currency:           "usd",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 0, body["tariffRate"])
	assert.EqualValues(t, 0, body["estimatedDuty"])
	assert.Equal(t, "USMCA", body["source"])
	assert.Equal(t, "USD", body["currency"])
}

func TestDutyEstimateRejectsShortCode(t *testing.T) {
	env := newTestEnv(t, "{}")
	rec := env.do(t, http.MethodPost, "/api/duty-estimate", bearer(t, testUser, ""), models.DutyEstimateRequest{
		HSCode: "73", OriginCountry: "CN", DestinationCountry: "US",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExtractManifestReturnsEveryField(t *testing.T) {
	env := newTestEnv(t, `{"shipperName":"  Acme Corp ","hsCode":"N/A","grossWeight":1200}`)
	rec := env.do(t, http.MethodPost, "/api/extract-manifest", bearer(t, testUser, ""), models.ExtractRequest{Text: "Shipper: Acme Corp"})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Fields map[string]*string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Fields, len(models.ManifestFieldNames))
	require.NotNil(t, body.Fields["shipperName"])
	assert.Equal(t, "Acme Corp", *body.Fields["shipperName"])
	assert.Nil(t, body.Fields["hsCode"])
}

func TestPolicyAndRemixCountSeparately(t *testing.T) {
	env := newTestEnv(t, "garbage")
	manifest := models.ManifestRequest{Manifest: map[string]any{"shipperName": "Acme", "hsCode": "730630"}}

	rec := env.do(t, http.MethodPost, "/api/policy-check", bearer(t, testUser, ""), manifest)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/remix", bearer(t, testUser, ""), manifest)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 1, env.used(t, models.ActionPolicyCheck))
	assert.Equal(t, 1, env.used(t, models.ActionRemix))
	assert.Zero(t, env.used(t, models.ActionAIAnalysis))
}

func TestExportWritesCSV(t *testing.T) {
	env := newTestEnv(t, "{}")
	rec := env.do(t, http.MethodPost, "/api/export", bearer(t, testUser, ""), models.ExportRequest{
		Filename: "../q3 manifest.csv",
		Rows: []map[string]any{
			{"shipperName": "Acme", "notes": "=HYPERLINK(\"x\")", "declaredValue": 1200},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="q3_manifest.csv"`, rec.Header().Get("Content-Disposition"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "shipperName,declaredValue,notes", lines[0])
	assert.Equal(t, `Acme,1200,"'=HYPERLINK(""x"")"`, lines[1])
	assert.Equal(t, 1, env.used(t, models.ActionExport))
	assert.Zero(t, env.calls.Load())
}

func TestFreeExportAllowanceIsSeparate(t *testing.T) {
	env := newTestEnv(t, "{}")
	_, err := env.mem.IncrementUsage(context.Background(), testUser, models.ActionExport, models.MonthKey(time.Now()), 20)
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/export", bearer(t, testUser, ""), models.ExportRequest{Rows: []map[string]any{{"a": 1}}})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/hs-suggest", bearer(t, testUser, ""), models.HSSuggestRequest{Description: "cotton shirts"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAbandonedRequestIsNotTracked(t *testing.T) {
	env := newTestEnv(t, "{}")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(models.ExportRequest{Rows: []map[string]any{{"a": 1}}}))
	req := httptest.NewRequest(http.MethodPost, "/api/export", &buf).WithContext(ctx)
	req.Header.Set("Authorization", bearer(t, testUser, ""))
	cancel()

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Zero(t, env.used(t, models.ActionExport))
	assert.Empty(t, rec.Body.String())
}

func TestUsageSummary(t *testing.T) {
	env := newTestEnv(t, "{}")
	_, err := env.mem.IncrementUsage(context.Background(), testUser, models.ActionAIAnalysis, models.MonthKey(time.Now()), 7)
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/usage", bearer(t, testUser, ""), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary quota.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, models.TierFree, summary.Tier)
	require.NotEmpty(t, summary.Actions)
	assert.Equal(t, models.ActionAIAnalysis, summary.Actions[0].Action)
	assert.Equal(t, 7, summary.Actions[0].Used)
	assert.Equal(t, 93, summary.Actions[0].Remaining)
}

func TestCheckoutCreatesCustomerOnce(t *testing.T) {
	env := newTestEnv(t, "{}")
	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPost, "/api/billing/create-checkout-session", bearer(t, testUser, "a@b.test"), models.CheckoutRequest{Tier: models.TierEnterprise})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"url":"https://checkout.stripe.test/enterprise"}`, rec.Body.String())
	}
	assert.Equal(t, 1, env.payments.customers)
	assert.Equal(t, "price_ent", env.payments.checkout.PriceID)
	assert.Equal(t, "cus_"+testUser, env.payments.checkout.CustomerID)
	assert.Equal(t, "https://app.example.test/billing/success", env.payments.checkout.SuccessURL)

	rec := env.do(t, http.MethodPost, "/api/billing/create-checkout-session", bearer(t, testUser, ""), models.CheckoutRequest{Tier: models.TierFree})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPortalNeedsCustomer(t *testing.T) {
	env := newTestEnv(t, "{}")
	rec := env.do(t, http.MethodPost, "/api/billing/portal-session", bearer(t, testUser, ""), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.NoError(t, env.mem.SaveStripeCustomer(context.Background(), testUser, "cus_9"))
	rec = env.do(t, http.MethodPost, "/api/billing/portal-session", bearer(t, testUser, ""), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"url":"https://billing.stripe.test/cus_9"}`, rec.Body.String())
}

func signedWebhook(t *testing.T, env *testEnv, payload string) *httptest.ResponseRecorder {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: []byte(payload),
		Secret:  testWebhook,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func TestWebhookSubscriptionLifecycle(t *testing.T) {
	env := newTestEnv(t, "{}")
	require.NoError(t, env.mem.SaveStripeCustomer(context.Background(), testUser, "cus_1"))

	sub := func(eventType, status string) string {
		return `{"id":"evt_1","object":"event","type":"` + eventType + `","data":{"object":{` +
			`"id":"sub_1","object":"subscription","customer":"cus_1","status":"` + status + `",` +
			`"current_period_start":1760000000,"current_period_end":1762600000,` +
			`"items":{"object":"list","data":[{"id":"si_1","price":{"id":"price_pro"}}]}}}}`
	}

	rec := signedWebhook(t, env, sub("customer.subscription.created", "active"))
	require.Equal(t, http.StatusOK, rec.Code)
	tier, err := env.mem.ReadSubscriptionTier(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, models.TierPro, tier)

	rec = signedWebhook(t, env, sub("customer.subscription.deleted", "active"))
	require.Equal(t, http.StatusOK, rec.Code)
	_, err = env.mem.ReadSubscriptionTier(context.Background(), testUser)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t, "{}")
	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", strings.NewReader(`{"type":"customer.subscription.created"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookDeletionWithRetiredPriceCancels(t *testing.T) {
	env := newTestEnv(t, "{}")
	ctx := context.Background()
	require.NoError(t, env.mem.SaveStripeCustomer(ctx, testUser, "cus_1"))
	require.NoError(t, env.mem.UpsertSubscription(ctx, models.Subscription{
		UserID: testUser, Tier: models.TierPro, Status: models.StatusActive, StripeCustomerID: "cus_1",
	}))

	payload := `{"id":"evt_2","object":"event","type":"customer.subscription.deleted","data":{"object":{` +
		`"id":"sub_old","object":"subscription","customer":"cus_1","status":"active",` +
		`"items":{"object":"list","data":[{"id":"si_9","price":{"id":"price_legacy"}}]}}}}`
	rec := signedWebhook(t, env, payload)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	_, err := env.mem.ReadSubscriptionTier(ctx, testUser)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWebhookUpdateWithUnknownPriceIsIgnored(t *testing.T) {
	env := newTestEnv(t, "{}")
	require.NoError(t, env.mem.SaveStripeCustomer(context.Background(), testUser, "cus_1"))

	payload := `{"id":"evt_3","object":"event","type":"customer.subscription.updated","data":{"object":{` +
		`"id":"sub_1","object":"subscription","customer":"cus_1","status":"active",` +
		`"items":{"object":"list","data":[{"id":"si_1","price":{"id":"price_unknown"}}]}}}}`
	rec := signedWebhook(t, env, payload)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ignored"}`, rec.Body.String())
}
