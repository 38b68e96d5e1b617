package square

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/dealflow-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/dealflow-backend/pkg/errors"
	"github.com/angelmondragon/dealflow-backend/pkg/logger"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"
)

var hosts = map[string]string{
	sandboxEnv:    "https://connect.squareupsandbox.com",
	productionEnv: "https://connect.squareup.com",
}

// Client is the slice of the Square SDK the payment gateway needs. It looks up
// a payment by receipt id and can complete, void or refund it.
type Client struct {
	sdk      *sqclient.Client
	currency string
	logg     *logger.Logger
}

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errors.New("square logger is required")
	}
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errors.New("square access token is required")
	}

	c := &Client{
		sdk:      sqclient.NewClient(sqoption.WithBaseURL(hosts[env]), sqoption.WithToken(token)),
		currency: strings.ToUpper(strings.TrimSpace(cfg.Currency)),
		logg:     logg,
	}
	logg.Info(logg.WithFields(ctx, map[string]any{"square_env": env, "currency": c.currency}), "square client ready")
	return c, nil
}

// GetPayment loads the payment a receipt id points at.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error) {
	return call(ctx, c, "get_payment", map[string]any{"payment_id": paymentID}, func() (*sq.Payment, error) {
		resp, err := c.sdk.Payments.Get(ctx, &sq.GetPaymentsRequest{PaymentID: paymentID})
		if err != nil {
			return nil, err
		}
		return resp.GetPayment(), nil
	})
}

// CompletePayment captures an APPROVED payment so the funds move to the seller account.
func (c *Client) CompletePayment(ctx context.Context, paymentID string) (*sq.Payment, error) {
	return call(ctx, c, "complete_payment", map[string]any{"payment_id": paymentID}, func() (*sq.Payment, error) {
		resp, err := c.sdk.Payments.Complete(ctx, &sq.CompletePaymentRequest{PaymentID: paymentID})
		if err != nil {
			return nil, err
		}
		return resp.GetPayment(), nil
	})
}

// CancelPayment voids an APPROVED payment. Completed payments need RefundPayment.
func (c *Client) CancelPayment(ctx context.Context, paymentID string) (*sq.Payment, error) {
	return call(ctx, c, "cancel_payment", map[string]any{"payment_id": paymentID}, func() (*sq.Payment, error) {
		resp, err := c.sdk.Payments.Cancel(ctx, &sq.CancelPaymentsRequest{PaymentID: paymentID})
		if err != nil {
			return nil, err
		}
		return resp.GetPayment(), nil
	})
}

// RefundPayment returns params.Amount of a completed payment. Reusing the
// caller's idempotency key makes a retried refund a no-op at Square.
func (c *Client) RefundPayment(ctx context.Context, params RefundCreateParams) (*sq.PaymentRefund, error) {
	if params.Currency == "" {
		params.Currency = c.currency
	}
	key := strings.TrimSpace(params.IdempotencyKey)
	if key == "" {
		key = "refund-" + uuid.NewString()
	}
	fields := map[string]any{"payment_id": params.PaymentID, "amount": params.Amount, "idempotency_key": key}
	return call(ctx, c, "refund_payment", fields, func() (*sq.PaymentRefund, error) {
		resp, err := c.sdk.Refunds.RefundPayment(ctx, params.toSquareRequest(key))
		if err != nil {
			return nil, err
		}
		return resp.GetRefund(), nil
	})
}

// call runs one SDK request, logs it with its latency and maps failures onto
// domain error codes.
func call[T any](ctx context.Context, c *Client, op string, fields map[string]any, fn func() (T, error)) (T, error) {
	started := time.Now()
	out, err := fn()

	logFields := map[string]any{"square_op": op, "duration_ms": time.Since(started).Milliseconds()}
	for k, v := range fields {
		logFields[k] = v
	}
	logCtx := c.logg.WithFields(ctx, logFields)
	if err != nil {
		mapped := mapError(err, op)
		c.logg.Error(logCtx, "square call failed", mapped)
		return out, mapped
	}
	c.logg.Info(logCtx, "square call ok")
	return out, nil
}

// mapError turns an SDK failure into a pkg/errors value. Square's error
// body can refine the HTTP status: a reused idempotency key or an auth
// failure wins over the generic mapping.
func mapError(err error, op string) error {
	msg := "square " + op + " failed"
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
	}
	code := codeForStatus(apiErr.StatusCode)
	for _, e := range apiErrors(apiErr) {
		switch {
		case e == nil:
		case e.Code == sq.ErrorCodeIdempotencyKeyReused:
			return pkgerrors.Wrap(pkgerrors.CodeIdempotency, err, msg)
		case e.Category == sq.ErrorCategoryAuthenticationError:
			return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, msg)
		}
	}
	return pkgerrors.Wrap(code, err, msg)
}

func apiErrors(apiErr *sqcore.APIError) []*sq.Error {
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	var body struct {
		Errors []*sq.Error `json:"errors"`
	}
	if json.Unmarshal([]byte(inner.Error()), &body) != nil {
		return nil
	}
	return body.Errors
}

func codeForStatus(status int) pkgerrors.Code {
	switch {
	case status == http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case status == http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case status == http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case status == http.StatusConflict:
		return pkgerrors.CodeConflict
	case status == http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case status == http.StatusUnprocessableEntity:
		return pkgerrors.CodeStateConflict
	case status >= 400 && status < 500:
		return pkgerrors.CodeValidation
	default:
		return pkgerrors.CodeDependency
	}
}

func normalizeEnv(raw string) (string, error) {
	env := strings.ToLower(strings.TrimSpace(raw))
	if env == "" {
		return sandboxEnv, nil
	}
	if _, ok := hosts[env]; !ok {
		return "", fmt.Errorf("square environment must be %q or %q, got %q", sandboxEnv, productionEnv, raw)
	}
	return env, nil
}
