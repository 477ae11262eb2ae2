package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	clierr "github.com/intentfi/intentfi/internal/errors"
	"github.com/intentfi/intentfi/internal/intent"
	"github.com/intentfi/intentfi/internal/integration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeProcessor struct {
	plan intent.Plan
	err  error
	got  intent.Intent
}

func (f *fakeProcessor) Process(_ context.Context, in intent.Intent) (intent.Plan, error) {
	f.got = in
	return f.plan, f.err
}

type fakeHistory struct {
	recorded []intent.RecordRequest
	records  []intent.StoredIntent
	err      error
}

func (f *fakeHistory) Record(_ context.Context, req intent.RecordRequest) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.recorded = append(f.recorded, req)
	return "intent-1", nil
}

func (f *fakeHistory) Fetch(_ context.Context, _ string, _ int) ([]intent.StoredIntent, error) {
	return f.records, f.err
}

// fakeService implements the calls the tests hit; the embedded interface
// panics on anything else.
type fakeService struct {
	integration.Service
	tx      integration.TxResult
	err     error
	lastReq integration.LendRequest
	pools   []integration.PoolInfo
}

func (f *fakeService) Deposit(_ context.Context, req integration.LendRequest) (integration.TxResult, error) {
	f.lastReq = req
	return f.tx, f.err
}

func (f *fakeService) PoolInformation(context.Context, int64) ([]integration.PoolInfo, error) {
	return f.pools, f.err
}

type fakeStorage bool

func (f fakeStorage) Degraded() bool { return bool(f) }

type fixture struct {
	processor *fakeProcessor
	history   *fakeHistory
	service   *fakeService
	server    *Server
}

func newFixture(devMode bool) *fixture {
	f := &fixture{
		processor: &fakeProcessor{},
		history:   &fakeHistory{},
		service:   &fakeService{},
	}
	f.server = New(Deps{
		Processor:   f.processor,
		History:     f.history,
		Integration: f.service,
		Storage:     fakeStorage(false),
	}, Options{DevMode: devMode}, nil)
	return f
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Type    string          `json:"type"`
	Details string          `json:"details"`
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, response) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	var out response
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec.Code, out
}

func TestProcessIntent(t *testing.T) {
	f := newFixture(false)
	f.processor.plan = intent.Plan{Kind: intent.KindPlan, Steps: []intent.Step{{Description: "Deposited 10 USDC on Celo.", Status: intent.StepComplete}}}

	code, res := f.do(t, http.MethodPost, "/api/intent/process", `{"intent":"deposit 10 USDC","chainId":44787,"userAddress":"0xabc"}`)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, res.Success)
	var plan intent.Plan
	require.NoError(t, json.Unmarshal(res.Data, &plan))
	assert.Len(t, plan.Steps, 1)
	assert.Equal(t, intent.Intent{RawText: "deposit 10 USDC", ChainID: 44787, UserAddress: "0xabc"}, f.processor.got)
}

func TestProcessIntentValidation(t *testing.T) {
	f := newFixture(false)
	for _, body := range []string{
		`{"chainId":44787,"userAddress":"0xabc"}`,
		`{"intent":42,"chainId":44787,"userAddress":"0xabc"}`,
		`{"intent":"deposit 10 USDC","chainId":44787}`,
		`not json`,
	} {
		code, res := f.do(t, http.MethodPost, "/api/intent/process", body)
		assert.Equal(t, http.StatusBadRequest, code, body)
		assert.False(t, res.Success)
		assert.NotEmpty(t, res.Error)
	}
}

func TestProcessIntentInternalErrorHidesDetails(t *testing.T) {
	f := newFixture(false)
	f.processor.err = clierr.New(clierr.CodePlanGeneration, "all plan providers failed")
	code, res := f.do(t, http.MethodPost, "/api/intent/process", `{"intent":"grow my yield","userAddress":"0xabc"}`)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "failed to process intent", res.Error)
	assert.Equal(t, "plan_generation_error", res.Type)
	assert.Empty(t, res.Details)

	dev := newFixture(true)
	dev.processor.err = f.processor.err
	_, res = dev.do(t, http.MethodPost, "/api/intent/process", `{"intent":"grow my yield","userAddress":"0xabc"}`)
	assert.Equal(t, "all plan providers failed", res.Details)
}

func TestSubmitAndStoreIntent(t *testing.T) {
	f := newFixture(false)
	code, res := f.do(t, http.MethodPost, "/api/intent/submit",
		`{"walletAddress":"0xabc","originalIntent":"deposit 10 USDC","intentPlan":{"kind":"plan","steps":[{"description":"Deposited 10 USDC on Celo.","chain":"Celo","status":"complete","transactionHash":"0x1"}]}}`)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"intentId":"intent-1"}`, string(res.Data))
	require.Len(t, f.history.recorded, 1)
	assert.Equal(t, "deposit 10 USDC", f.history.recorded[0].Description)
	assert.Len(t, f.history.recorded[0].Steps, 1)

	code, _ = f.do(t, http.MethodPost, "/api/intent/store", `{"userAddress":"0xabc","description":"stake","chain":"Celo","type":"stake","steps":[]}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, intent.TypeStake, f.history.recorded[1].Type)
}

func TestStorageErrorIsDistinct(t *testing.T) {
	f := newFixture(false)
	f.history.err = clierr.Wrap(clierr.CodeStorage, "store intent", context.DeadlineExceeded)
	code, res := f.do(t, http.MethodPost, "/api/intent/store", `{"userAddress":"0xabc","description":"x","steps":[]}`)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "storage_error", res.Type)
}

func TestIntentHistory(t *testing.T) {
	f := newFixture(false)
	code, _ := f.do(t, http.MethodGet, "/api/intent/history", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, res := f.do(t, http.MethodGet, "/api/intent/history?userAddress=0xabc", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(res.Data))
}

func TestBlockchainDeposit(t *testing.T) {
	f := newFixture(false)
	f.service.tx = integration.TxResult{Success: true, TransactionHash: "0xabc"}
	code, res := f.do(t, http.MethodPost, "/api/blockchain/deposit", `{"chainId":44787,"token":"USDC","amount":"10"}`)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"success":true,"transactionHash":"0xabc"}`, string(res.Data))
	assert.Equal(t, integration.LendRequest{ChainID: 44787, Token: "USDC", Amount: "10"}, f.service.lastReq)
}

func TestBlockchainMissingParams(t *testing.T) {
	f := newFixture(false)
	for path, body := range map[string]string{
		"/api/blockchain/deposit":         `{"chainId":44787,"token":"USDC"}`,
		"/api/blockchain/stake":           `{"chainId":44787,"amount":"1"}`,
		"/api/blockchain/getpools":        `{}`,
		"/api/blockchain/getUserPoolInfo": `{"chainId":44787,"poolId":1}`,
		"/api/blockchain/create-pool":     `{"chainId":44787,"stakingToken":"CELO","rewardToken":""}`,
		"/api/blockchain/set-tokenprice":  `[]`,
	} {
		code, res := f.do(t, http.MethodPost, path, body)
		assert.Equal(t, http.StatusBadRequest, code, path)
		assert.False(t, res.Success, path)
	}
}

func TestBlockchainFailureIs500WithMessage(t *testing.T) {
	f := newFixture(false)
	f.service.tx = integration.Failed("insufficient collateral")
	code, res := f.do(t, http.MethodPost, "/api/blockchain/deposit", `{"chainId":44787,"token":"USDC","amount":"10"}`)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.False(t, res.Success)
	assert.Equal(t, "insufficient collateral", res.Message)

	f.service.err = clierr.New(clierr.CodeUnsupported, "no lending pool contract configured on Base")
	code, res = f.do(t, http.MethodPost, "/api/blockchain/deposit", `{"chainId":84532,"token":"USDC","amount":"10"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "no lending pool contract configured on Base", res.Error)
}

func TestGetPools(t *testing.T) {
	f := newFixture(false)
	f.service.pools = []integration.PoolInfo{{PoolID: 4, StakingToken: "CELO", RewardToken: "USDC", Active: true}}
	code, res := f.do(t, http.MethodPost, "/api/blockchain/getpools", `{"chainId":44787}`)
	require.Equal(t, http.StatusOK, code)
	var pools []integration.PoolInfo
	require.NoError(t, json.Unmarshal(res.Data, &pools))
	assert.Equal(t, f.service.pools, pools)
}

func TestOperationalRoutes(t *testing.T) {
	f := newFixture(false)
	code, _ := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)

	degraded := New(Deps{Storage: fakeStorage(true)}, Options{}, nil)
	rec := httptest.NewRecorder()
	degraded.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","storageDegraded":true}`, rec.Body.String())

	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "intentfi_http_requests_total")
}
