package cyphernode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Talej/lnurl-cypherapp/lnclient"
	"github.com/Talej/lnurl-cypherapp/logger"
)

// CyphernodeService talks to a cyphernode gatekeeper over HTTP+JSON. It
// implements lnclient.LNClient.
type CyphernodeService struct {
	baseUrl    string
	apiKey     string
	httpClient *http.Client
}

func NewCyphernodeService(baseUrl string, apiKey string) *CyphernodeService {
	return &CyphernodeService{
		baseUrl: strings.TrimSuffix(baseUrl, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type lnPayRequest struct {
	Bolt11 string `json:"bolt11"`
}

type lnPayResponse struct {
	PaymentHash  string `json:"payment_hash"`
	Preimage     string `json:"payment_preimage"`
	MsatoshiSent int64  `json:"msatoshi_sent"`
	Msatoshi     int64  `json:"msatoshi"`
	Status       string `json:"status"`
}

func (svc *CyphernodeService) PayInvoice(ctx context.Context, bolt11 string) (*lnclient.PayInvoiceResponse, error) {
	var resp lnPayResponse
	err := svc.post(ctx, "/ln_pay", &lnPayRequest{Bolt11: bolt11}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.Status != "complete" {
		return nil, fmt.Errorf("ln_pay returned status %q", resp.Status)
	}

	feeMsat := resp.MsatoshiSent - resp.Msatoshi
	if feeMsat < 0 {
		feeMsat = 0
	}

	return &lnclient.PayInvoiceResponse{
		PaymentHash: resp.PaymentHash,
		Preimage:    resp.Preimage,
		FeeMsat:     feeMsat,
	}, nil
}

type lnCreateInvoiceRequest struct {
	Msatoshi        int64  `json:"msatoshi"`
	Label           string `json:"label"`
	Description     string `json:"description,omitempty"`
	DescriptionHash string `json:"deschashonly,omitempty"`
	CallbackUrl     string `json:"callbackUrl,omitempty"`
}

type lnCreateInvoiceResponse struct {
	Bolt11      string `json:"bolt11"`
	Label       string `json:"label"`
	PaymentHash string `json:"payment_hash"`
}

func (svc *CyphernodeService) MakeInvoice(ctx context.Context, req *lnclient.MakeInvoiceRequest) (*lnclient.MakeInvoiceResponse, error) {
	var resp lnCreateInvoiceResponse
	err := svc.post(ctx, "/ln_create_invoice", &lnCreateInvoiceRequest{
		Msatoshi:        req.AmountMsat,
		Label:           req.Label,
		Description:     req.Description,
		DescriptionHash: req.DescriptionHash,
		CallbackUrl:     req.CallbackUrl,
	}, &resp)
	if err != nil {
		return nil, err
	}

	return &lnclient.MakeInvoiceResponse{
		Bolt11:      resp.Bolt11,
		Label:       resp.Label,
		PaymentHash: resp.PaymentHash,
	}, nil
}

type spendRequest struct {
	Address string `json:"address"`
	// Amount is in whole bitcoin, the unit the gatekeeper expects.
	Amount float64 `json:"amount"`
}

type spendResponse struct {
	Status string `json:"status"`
	TxId   string `json:"txid"`
}

func (svc *CyphernodeService) PayOnchain(ctx context.Context, address string, amountSat int64) (*lnclient.PayOnchainResponse, error) {
	var resp spendResponse
	err := svc.post(ctx, "/spend", &spendRequest{
		Address: address,
		Amount:  float64(amountSat) / 1e8,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.Status != "accepted" {
		return nil, fmt.Errorf("spend returned status %q", resp.Status)
	}

	return &lnclient.PayOnchainResponse{TxId: resp.TxId}, nil
}

func (svc *CyphernodeService) post(ctx context.Context, path string, reqBody interface{}, respBody interface{}) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, svc.baseUrl+path, bytes.NewReader(payload),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if svc.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+svc.apiKey)
	}

	logger.Logger.Debug().Str("path", path).Msg("Calling cyphernode gatekeeper")

	resp, err := svc.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 300 {
		logger.Logger.Error().
			Str("path", path).
			Int("status", resp.StatusCode).
			Str("body", string(body)).
			Msg("Cyphernode gatekeeper call failed")
		return fmt.Errorf("gatekeeper %s returned status %d", path, resp.StatusCode)
	}

	return json.Unmarshal(body, respBody)
}
