package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Talej/lnurl-cypherapp/config"
	"github.com/Talej/lnurl-cypherapp/events"
	"github.com/Talej/lnurl-cypherapp/pay"
	"github.com/Talej/lnurl-cypherapp/tests"
	"github.com/Talej/lnurl-cypherapp/withdraw"
)

// testAppService satisfies the service wiring contract against the
// in-memory test fixtures.
type testAppService struct {
	testSvc     *tests.TestService
	withdrawSvc withdraw.WithdrawService
	paySvc      pay.PayService
}

func (s *testAppService) GetConfig() config.Config                     { return s.testSvc.Cfg }
func (s *testAppService) GetDB() *gorm.DB                              { return s.testSvc.DB }
func (s *testAppService) GetWithdrawService() withdraw.WithdrawService { return s.withdrawSvc }
func (s *testAppService) GetPayService() pay.PayService                { return s.paySvc }
func (s *testAppService) GetEventPublisher() events.EventPublisher     { return s.testSvc.EventPublisher }
func (s *testAppService) Shutdown()                                    {}

type testSetup struct {
	echo    *echo.Echo
	testSvc *tests.TestService
	token   string
}

func createTestSetup(t *testing.T) *testSetup {
	testSvc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	t.Cleanup(testSvc.Remove)

	appSvc := &testAppService{
		testSvc: testSvc,
		withdrawSvc: withdraw.NewWithdrawService(
			testSvc.DB, testSvc.Cfg, testSvc.LNClient, testSvc.Notifier, testSvc.EventPublisher,
		),
		paySvc: pay.NewPayService(
			testSvc.DB, testSvc.Cfg, testSvc.LNClient, testSvc.Notifier, testSvc.EventPublisher,
		),
	}

	e := echo.New()
	NewHttpService(appSvc).RegisterSharedRoutes(e)

	secret, err := testSvc.Cfg.GetJWTSecret()
	require.NoError(t, err)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &jwtCustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	return &testSetup{echo: e, testSvc: testSvc, token: signed}
}

func (s *testSetup) apiRequest(t *testing.T, method string, params interface{}) (*httptest.ResponseRecorder, ResponseMessage) {
	rawParams, err := json.Marshal(params)
	require.NoError(t, err)
	body, err := json.Marshal(RequestMessage{Id: 1, Method: method, Params: rawParams})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+s.token)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	var response ResponseMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	return rec, response
}

func TestAuth(t *testing.T) {
	setup := createTestSetup(t)

	body, _ := json.Marshal(map[string]string{"password": "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/auth", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	setup.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// One auth attempt per second; a fresh setup gets a fresh limiter.
	setup = createTestSetup(t)
	body, _ = json.Marshal(map[string]string{"password": tests.TestAdminPassword})
	req = httptest.NewRequest(http.MethodPost, "/auth", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	setup.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var response authTokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.NotEmpty(t, response.Token)
}

func TestApi_RequiresToken(t *testing.T) {
	setup := createTestSetup(t)

	body, _ := json.Marshal(RequestMessage{Id: 1, Method: "getConfig"})
	req := httptest.NewRequest(http.MethodPost, "/api", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	setup.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestApi_MethodNotFound(t *testing.T) {
	setup := createTestSetup(t)

	rec, response := setup.apiRequest(t, "noSuchMethod", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, response.Error)
	assert.Equal(t, ErrorCodeMethodNotFound, response.Error.Code)
}

func TestApi_CreateLnurlWithdraw(t *testing.T) {
	setup := createTestSetup(t)

	rec, response := setup.apiRequest(t, "createLnurlWithdraw", withdraw.CreateLnurlWithdrawRequest{
		MinWithdrawable: 1000,
		MaxWithdrawable: 5000,
		Description:     "gift voucher",
		ExpiresAt:       time.Now().Add(time.Hour),
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, response.Error)

	result, err := json.Marshal(response.Result)
	require.NoError(t, err)
	var created withdraw.LnurlWithdrawResult
	require.NoError(t, json.Unmarshal(result, &created))
	assert.NotZero(t, created.ID)
	assert.NotEmpty(t, created.Lnurl)
}

func TestApi_InvalidParams(t *testing.T) {
	setup := createTestSetup(t)

	rec, response := setup.apiRequest(t, "createLnurlWithdraw", withdraw.CreateLnurlWithdrawRequest{
		MinWithdrawable: 5000,
		MaxWithdrawable: 1000,
		ExpiresAt:       time.Now().Add(time.Hour),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, response.Error)
	assert.Equal(t, ErrorCodeInvalidParams, response.Error.Code)
	// The failing params are echoed back for the operator.
	assert.NotEmpty(t, response.Error.Data)
}

func TestApi_Bech32RoundTrip(t *testing.T) {
	setup := createTestSetup(t)

	url := "https://lnurl.test/withdrawRequest?s=abc123"

	_, response := setup.apiRequest(t, "encodeBech32", bech32Params{S: url})
	require.Nil(t, response.Error)
	encoded, ok := response.Result.(string)
	require.True(t, ok)

	_, response = setup.apiRequest(t, "decodeBech32", bech32Params{S: encoded})
	require.Nil(t, response.Error)
	assert.Equal(t, url, response.Result)
}

func TestApi_NotFoundCode(t *testing.T) {
	setup := createTestSetup(t)

	rec, response := setup.apiRequest(t, "getLnurlWithdraw", idParams{LnurlWithdrawId: 999})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, response.Error)
	assert.Equal(t, ErrorCodeNotFound, response.Error.Code)
}

func TestWalletRoutes(t *testing.T) {
	setup := createTestSetup(t)

	// Provision a voucher through the admin envelope.
	_, response := setup.apiRequest(t, "createLnurlWithdraw", withdraw.CreateLnurlWithdrawRequest{
		MinWithdrawable: 100000000,
		MaxWithdrawable: 300000000,
		ExpiresAt:       time.Now().Add(time.Hour),
	})
	require.Nil(t, response.Error)
	result, err := json.Marshal(response.Result)
	require.NoError(t, err)
	var created withdraw.LnurlWithdrawResult
	require.NoError(t, json.Unmarshal(result, &created))

	req := httptest.NewRequest(http.MethodGet, "/withdrawRequest?s="+created.SecretToken, nil)
	rec := httptest.NewRecorder()
	setup.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var withdrawResponse struct {
		Tag string `json:"tag"`
		K1  string `json:"k1"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &withdrawResponse))
	assert.Equal(t, "withdrawRequest", withdrawResponse.Tag)
	require.NotEmpty(t, withdrawResponse.K1)

	req = httptest.NewRequest(http.MethodGet,
		"/withdraw?k1="+withdrawResponse.K1+"&pr="+tests.MockInvoice, nil)
	rec = httptest.NewRecorder()
	setup.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"OK"}`, rec.Body.String())
}

func TestWalletRoutes_ProtocolErrorShape(t *testing.T) {
	setup := createTestSetup(t)

	req := httptest.NewRequest(http.MethodGet, "/withdrawRequest?s=no-such-token", nil)
	rec := httptest.NewRecorder()
	setup.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errorResponse struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errorResponse))
	assert.Equal(t, "ERROR", errorResponse.Status)
	assert.NotEmpty(t, errorResponse.Reason)
}

func TestLnAddressRoute(t *testing.T) {
	setup := createTestSetup(t)

	_, response := setup.apiRequest(t, "createLnurlPay", pay.CreateLnurlPayRequest{
		ExternalId:  "alice",
		MinSendable: 1000,
		MaxSendable: 100000000,
		Metadata:    json.RawMessage(`[["text/plain","Pay alice"]]`),
	})
	require.Nil(t, response.Error)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/lnurlp/alice", nil)
	rec := httptest.NewRecorder()
	setup.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var specs struct {
		Tag      string `json:"tag"`
		Callback string `json:"callback"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &specs))
	assert.Equal(t, "payRequest", specs.Tag)
	assert.Contains(t, specs.Callback, "alice")

	req = httptest.NewRequest(http.MethodGet, "/payRequest/alice?amount=50000", nil)
	rec = httptest.NewRecorder()
	setup.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var invoice struct {
		Pr string `json:"pr"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &invoice))
	assert.NotEmpty(t, invoice.Pr)
}

func TestBatchWebhookRoute(t *testing.T) {
	setup := createTestSetup(t)

	_, response := setup.apiRequest(t, "createLnurlWithdraw", withdraw.CreateLnurlWithdrawRequest{
		MinWithdrawable: 1000,
		MaxWithdrawable: 5000,
		ExpiresAt:       time.Now().Add(time.Hour),
	})
	require.Nil(t, response.Error)
	result, err := json.Marshal(response.Result)
	require.NoError(t, err)
	var created withdraw.LnurlWithdrawResult
	require.NoError(t, json.Unmarshal(result, &created))

	body, _ := json.Marshal(withdraw.BatchWebhookPayload{
		BatchRequestId:   42,
		LnurlWithdrawIds: []uint{created.ID, 999},
	})
	req := httptest.NewRequest(http.MethodPost, "/withdrawWebhooks", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	setup.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var batchResult withdraw.BatchWebhookResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batchResult))
	assert.Equal(t, []uint{created.ID}, batchResult.Batched)
	assert.Equal(t, []uint{999}, batchResult.Skipped)
}

func TestPayWebhookRoute(t *testing.T) {
	setup := createTestSetup(t)

	_, response := setup.apiRequest(t, "createLnurlPay", pay.CreateLnurlPayRequest{
		ExternalId:  "alice",
		MinSendable: 1000,
		MaxSendable: 100000000,
		Metadata:    json.RawMessage(`[["text/plain","Pay alice"]]`),
	})
	require.Nil(t, response.Error)

	req := httptest.NewRequest(http.MethodGet, "/payRequest/alice?amount=50000", nil)
	rec := httptest.NewRecorder()
	setup.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, setup.testSvc.LNClient.InvoiceRequests, 1)
	label := setup.testSvc.LNClient.InvoiceRequests[0].Label

	req = httptest.NewRequest(http.MethodPost, "/payWebhooks/"+label, nil)
	rec = httptest.NewRecorder()
	setup.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/payWebhooks/no-such-label", nil)
	rec = httptest.NewRecorder()
	setup.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
