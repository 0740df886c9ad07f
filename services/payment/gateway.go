// Package paymentsvc charges tokenized payments against the provider's HTTP
// API. Raw card data never transits this service; the frontend tokenizes
// up-front and only the token reaches the backend.
package paymentsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/uniroute/uniroute/core"
	"github.com/uniroute/uniroute/core/application"
)

// Error is a charge declined by the provider; the API maps it to 402.
type Error struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("payment declined (%s): %s", e.Code, e.Reason)
}

type httpGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  core.Logger
}

var _ application.PaymentGateway = (*httpGateway)(nil)

func NewHTTPGateway(conf core.PaymentConfig, logger core.Logger) *httpGateway {
	return &httpGateway{
		baseURL: conf.GatewayURL,
		apiKey:  conf.APIKey,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

type chargePayload struct {
	Reference   string `json:"reference"`
	Method      string `json:"method"`
	AmountCents int    `json:"amount_cents"`
	Currency    string `json:"currency"`
	CardToken   string `json:"card_token,omitempty"`
	CardHolder  string `json:"card_holder,omitempty"`
	PaypalEmail string `json:"paypal_email,omitempty"`
}

type chargeResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

func (gw *httpGateway) Charge(ctx context.Context, req application.ChargeRequest) (application.ChargeResult, error) {
	payload := chargePayload{
		Reference:   req.ApplicationID,
		Method:      string(req.Method),
		AmountCents: req.Amount * 100,
		Currency:    "USD",
		CardToken:   req.CardToken,
		CardHolder:  req.CardHolder,
		PaypalEmail: req.PaypalEmail,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return application.ChargeResult{}, errors.Wrap(err, "encoding charge")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, gw.baseURL+"/v1/charges", bytes.NewReader(body))
	if err != nil {
		return application.ChargeResult{}, errors.Wrap(err, "building charge request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+gw.apiKey)
	// retried submits reuse the application ID so the provider dedupes
	httpReq.Header.Set("Idempotency-Key", req.ApplicationID)

	res, err := gw.client.Do(httpReq)
	if err != nil {
		return application.ChargeResult{}, errors.Wrap(err, "calling payment gateway")
	}
	defer func() { _ = res.Body.Close() }()

	var cr chargeResponse
	if err = json.NewDecoder(res.Body).Decode(&cr); err != nil {
		return application.ChargeResult{}, errors.Wrap(err, "decoding gateway response")
	}

	switch {
	case res.StatusCode == http.StatusOK || res.StatusCode == http.StatusCreated:
		return application.ChargeResult{Reference: cr.ID}, nil
	case res.StatusCode == http.StatusPaymentRequired || res.StatusCode == http.StatusUnprocessableEntity:
		gw.logger.Warn("charge declined", map[string]interface{}{
			"application": req.ApplicationID,
			"code":        cr.Code,
		})
		return application.ChargeResult{}, &Error{Code: cr.Code, Reason: cr.Reason}
	default:
		return application.ChargeResult{}, errors.Errorf("payment gateway returned status %d", res.StatusCode)
	}
}

// consoleGateway approves every charge; dev and test default.
type consoleGateway struct {
	logger core.Logger
}

var _ application.PaymentGateway = (*consoleGateway)(nil)

func NewConsoleGateway(logger core.Logger) *consoleGateway {
	return &consoleGateway{logger: logger}
}

func (gw *consoleGateway) Charge(_ context.Context, req application.ChargeRequest) (application.ChargeResult, error) {
	ref := fmt.Sprintf("console-%s-%d", req.ApplicationID, time.Now().UnixNano())
	gw.logger.Info("charge approved", map[string]interface{}{
		"application": req.ApplicationID,
		"method":      string(req.Method),
		"amount":      req.Amount,
		"reference":   ref,
	})
	return application.ChargeResult{Reference: ref}, nil
}
