package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Talej/lnurl-cypherapp/config"
	"github.com/Talej/lnurl-cypherapp/constants"
	"github.com/Talej/lnurl-cypherapp/events"
	"github.com/Talej/lnurl-cypherapp/lnurl"
	"github.com/Talej/lnurl-cypherapp/logger"
	"github.com/Talej/lnurl-cypherapp/pay"
	"github.com/Talej/lnurl-cypherapp/service"
	"github.com/Talej/lnurl-cypherapp/withdraw"
)

type jwtCustomClaims struct {
	jwt.RegisteredClaims
}

type HttpService struct {
	cfg            config.Config
	withdrawSvc    withdraw.WithdrawService
	paySvc         pay.PayService
	eventPublisher events.EventPublisher
}

func NewHttpService(svc service.Service) *HttpService {
	return &HttpService{
		cfg:            svc.GetConfig(),
		withdrawSvc:    svc.GetWithdrawService(),
		paySvc:         svc.GetPayService(),
		eventPublisher: svc.GetEventPublisher(),
	}
}

func (httpSvc *HttpService) RegisterSharedRoutes(e *echo.Echo) {
	e.HideBanner = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogRemoteIP:  true,
		LogUserAgent: true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, values middleware.RequestLoggerValues) error {
			logger.HttpLogger.Info().
				Str("uri", values.URI).
				Int("status", values.Status).
				Str("remote_ip", values.RemoteIP).
				Str("user_agent", values.UserAgent).
				Str("request_id", values.RequestID).
				Msg("handled request")
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	// Wallet-facing LN service endpoints, protocol-mandated paths, no auth.
	e.GET(constants.WITHDRAW_REQUEST_CTX, httpSvc.withdrawRequestHandler)
	e.GET(constants.WITHDRAW_CTX, httpSvc.withdrawHandler)
	e.GET(constants.PAY_SPECS_CTX+"/:externalId", httpSvc.paySpecsHandler)
	e.GET(constants.LN_ADDRESS_CTX+"/:externalId", httpSvc.paySpecsHandler)
	e.GET(constants.PAY_REQUEST_CTX+"/:externalId", httpSvc.payRequestHandler)

	// Inbound webhooks from the lightning backend and the batching engine.
	e.POST(constants.PAY_WEBHOOKS_CTX+"/:label", httpSvc.payWebhookHandler)
	e.POST(constants.WITHDRAW_WEBHOOKS_CTX, httpSvc.batchWebhookHandler)

	// allow one auth attempt per second
	authRateLimiter := middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(1))
	e.POST(constants.AUTH_CTX, httpSvc.authHandler, authRateLimiter)

	jwtConfig := echojwt.Config{
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(jwtCustomClaims)
		},
		KeyFunc: func(token *jwt.Token) (interface{}, error) {
			secret, err := httpSvc.cfg.GetJWTSecret()
			if err != nil {
				return nil, err
			}
			return []byte(secret), nil
		},
		TokenLookup: "header:Authorization:Bearer ",
	}
	e.POST(constants.API_CTX, httpSvc.apiHandler, echojwt.WithConfig(jwtConfig))
}

func (httpSvc *HttpService) authHandler(c echo.Context) error {
	var req authRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid request"})
	}

	if !httpSvc.cfg.CheckAdminPassword(req.Password) {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "invalid password"})
	}

	claims := &jwtCustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	secret, err := httpSvc.cfg.GetJWTSecret()
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to load JWT secret")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "internal error"})
	}

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "internal error"})
	}

	return c.JSON(http.StatusOK, authTokenResponse{Token: signed})
}

// apiHandler dispatches the admin envelope.
func (httpSvc *HttpService) apiHandler(c echo.Context) error {
	ctx := c.Request().Context()

	var reqMessage RequestMessage
	if err := c.Bind(&reqMessage); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseMessage{
			Error: &ResponseError{
				Code:    ErrorCodeParseError,
				Message: "could not parse request",
			},
		})
	}

	logger.Logger.Debug().Str("method", reqMessage.Method).Msg("Admin API request")

	response := ResponseMessage{Id: reqMessage.Id}

	var result interface{}
	var err error

	switch reqMessage.Method {
	case "createLnurlWithdraw":
		var params withdraw.CreateLnurlWithdrawRequest
		if err = bindParams(reqMessage.Params, &params); err == nil {
			result, err = httpSvc.withdrawSvc.CreateLnurlWithdraw(ctx, &params)
		}

	case "deleteLnurlWithdraw":
		var params idParams
		if err = bindParams(reqMessage.Params, &params); err == nil {
			result, err = httpSvc.withdrawSvc.DeleteLnurlWithdraw(ctx, params.LnurlWithdrawId)
		}

	case "getLnurlWithdraw":
		var params idParams
		if err = bindParams(reqMessage.Params, &params); err == nil {
			result, err = httpSvc.withdrawSvc.GetLnurlWithdraw(ctx, params.LnurlWithdrawId)
		}

	case "forceFallback":
		var params idParams
		if err = bindParams(reqMessage.Params, &params); err == nil {
			result, err = httpSvc.withdrawSvc.ForceFallback(ctx, params.LnurlWithdrawId)
		}

	case "createLnurlPay":
		var params pay.CreateLnurlPayRequest
		if err = bindParams(reqMessage.Params, &params); err == nil {
			result, err = httpSvc.paySvc.CreateLnurlPay(ctx, &params)
		}

	case "updateLnurlPay":
		var params pay.CreateLnurlPayRequest
		if err = bindParams(reqMessage.Params, &params); err == nil {
			result, err = httpSvc.paySvc.UpdateLnurlPay(ctx, &params)
		}

	case "deleteLnurlPay":
		var params idParams
		if err = bindParams(reqMessage.Params, &params); err == nil {
			result, err = httpSvc.paySvc.DeleteLnurlPay(ctx, params.LnurlPayId)
		}

	case "getLnurlPay":
		var params idParams
		if err = bindParams(reqMessage.Params, &params); err == nil {
			result, err = httpSvc.paySvc.GetLnurlPay(ctx, params.LnurlPayId)
		}

	case "getLnurlPayRequest":
		var params idParams
		if err = bindParams(reqMessage.Params, &params); err == nil {
			result, err = httpSvc.paySvc.GetLnurlPayRequest(ctx, params.LnurlPayRequestId)
		}

	case "deleteLnurlPayRequest":
		var params idParams
		if err = bindParams(reqMessage.Params, &params); err == nil {
			result, err = httpSvc.paySvc.DeleteLnurlPayRequest(ctx, params.LnurlPayRequestId)
		}

	case "payLnAddress":
		var params pay.PayLnAddressRequest
		if err = bindParams(reqMessage.Params, &params); err == nil {
			result, err = httpSvc.paySvc.PayLnAddress(ctx, &params)
		}

	case "processCallbacks":
		result = processCallbacksResult{
			Withdraw: httpSvc.withdrawSvc.ProcessCallbacks(ctx),
			Pay:      httpSvc.paySvc.ProcessPayCallbacks(ctx),
		}

	case "processFallbacks":
		result = httpSvc.withdrawSvc.ProcessFallbacks(ctx)

	case "encodeBech32":
		var params bech32Params
		if err = bindParams(reqMessage.Params, &params); err == nil {
			result, err = lnurl.EncodeURL(params.S)
		}

	case "decodeBech32":
		var params bech32Params
		if err = bindParams(reqMessage.Params, &params); err == nil {
			result, err = lnurl.DecodeURL(params.S)
		}

	case "reloadConfig":
		if err = httpSvc.cfg.Reload(); err == nil {
			result = httpSvc.cfg.GetEnv()
		}

	case "getConfig":
		result = httpSvc.cfg.GetEnv()

	default:
		response.Error = &ResponseError{
			Code:    ErrorCodeMethodNotFound,
			Message: "no such method",
		}
	}

	if err != nil {
		response.Error = toResponseError(err)
	}
	if response.Error != nil {
		response.Error.Data = reqMessage.Params
		return c.JSON(http.StatusBadRequest, response)
	}

	response.Result = result
	return c.JSON(http.StatusOK, response)
}

func (httpSvc *HttpService) withdrawRequestHandler(c echo.Context) error {
	response, err := httpSvc.withdrawSvc.LnServiceWithdrawRequest(
		c.Request().Context(), c.QueryParam("s"),
	)
	if err != nil {
		return lnurlError(c, err)
	}
	return c.JSON(http.StatusOK, response)
}

func (httpSvc *HttpService) withdrawHandler(c echo.Context) error {
	err := httpSvc.withdrawSvc.LnServiceWithdraw(
		c.Request().Context(),
		c.QueryParam("k1"),
		c.QueryParam("pr"),
		c.QueryParam("balanceNotify"),
	)
	if err != nil {
		return lnurlError(c, err)
	}
	return c.JSON(http.StatusOK, lnurl.Ok())
}

func (httpSvc *HttpService) paySpecsHandler(c echo.Context) error {
	response, err := httpSvc.paySvc.LnServicePaySpecs(
		c.Request().Context(), c.Param("externalId"),
	)
	if err != nil {
		return lnurlError(c, err)
	}
	return c.JSON(http.StatusOK, response)
}

func (httpSvc *HttpService) payRequestHandler(c echo.Context) error {
	var amountMsat int64
	if err := echo.QueryParamsBinder(c).Int64("amount", &amountMsat).BindError(); err != nil {
		return lnurlError(c, lnurl.NewProtocolError("invalid amount parameter"))
	}

	response, err := httpSvc.paySvc.LnServicePayRequest(
		c.Request().Context(), c.Param("externalId"), amountMsat,
	)
	if err != nil {
		return lnurlError(c, err)
	}
	return c.JSON(http.StatusOK, response)
}

func (httpSvc *HttpService) payWebhookHandler(c echo.Context) error {
	payRequest, err := httpSvc.paySvc.LnurlPayRequestCallback(
		c.Request().Context(), c.Param("label"),
	)
	if err != nil {
		if lnurl.IsNotFoundError(err) {
			return c.JSON(http.StatusNotFound, ErrorResponse{Message: err.Error()})
		}
		logger.Logger.Error().Err(err).Msg("Failed to process settlement callback")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "internal error"})
	}
	return c.JSON(http.StatusOK, payRequest)
}

func (httpSvc *HttpService) batchWebhookHandler(c echo.Context) error {
	var payload withdraw.BatchWebhookPayload
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid payload"})
	}

	result, err := httpSvc.withdrawSvc.ProcessBatchWebhook(c.Request().Context(), &payload)
	if err != nil {
		if lnurl.IsValidationError(err) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Message: err.Error()})
		}
		logger.Logger.Error().Err(err).Msg("Failed to process batch webhook")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "internal error"})
	}
	return c.JSON(http.StatusOK, result)
}

func bindParams(raw json.RawMessage, target interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return lnurl.NewValidationError("could not parse params: %v", err)
	}
	return nil
}

// lnurlError renders engine failures on wallet-facing routes in the
// protocol's own error shape.
func lnurlError(c echo.Context, err error) error {
	if lnurl.IsProtocolError(err) || lnurl.IsValidationError(err) ||
		lnurl.IsConflictError(err) || lnurl.IsNotFoundError(err) {
		return c.JSON(http.StatusBadRequest, lnurl.NewErrorResponse(err))
	}
	logger.Logger.Error().Err(err).Msg("Wallet-facing request failed")
	return c.JSON(http.StatusInternalServerError, lnurl.NewErrorResponse(err))
}

func toResponseError(err error) *ResponseError {
	code := ErrorCodeInternalError
	switch {
	case lnurl.IsValidationError(err):
		code = ErrorCodeInvalidParams
	case lnurl.IsNotFoundError(err), lnurl.IsProtocolError(err):
		code = ErrorCodeNotFound
	case lnurl.IsConflictError(err):
		code = ErrorCodeConflict
	case lnurl.IsGatewayError(err):
		code = ErrorCodeGateway
	case lnurl.IsEncodingError(err), lnurl.IsDecodingError(err):
		code = ErrorCodeInvalidParams
	}
	return &ResponseError{
		Code:    code,
		Message: err.Error(),
	}
}
