package square

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dealflow-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/dealflow-backend/pkg/errors"
	"github.com/angelmondragon/dealflow-backend/pkg/logger"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want pkgerrors.Code
	}{
		{
			name: "reused idempotency key beats conflict status",
			err:  sqcore.NewAPIError(http.StatusConflict, errors.New(`{"errors":[{"category":"API_ERROR","code":"IDEMPOTENCY_KEY_REUSED"}]}`)),
			want: pkgerrors.CodeIdempotency,
		},
		{
			name: "authentication category",
			err:  sqcore.NewAPIError(http.StatusBadRequest, errors.New(`{"errors":[{"category":"AUTHENTICATION_ERROR","code":"UNAUTHORIZED"}]}`)),
			want: pkgerrors.CodeUnauthorized,
		},
		{
			name: "unparseable body falls back to status",
			err:  sqcore.NewAPIError(http.StatusNotFound, errors.New("not json")),
			want: pkgerrors.CodeNotFound,
		},
		{
			name: "transport failure",
			err:  errors.New("dial tcp: i/o timeout"),
			want: pkgerrors.CodeDependency,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := pkgerrors.As(mapError(tc.err, "get_payment"))
			require.NotNil(t, mapped)
			require.Equal(t, tc.want, mapped.Code())
		})
	}
}

func TestCodeForStatus(t *testing.T) {
	for status, want := range map[int]pkgerrors.Code{
		http.StatusForbidden:           pkgerrors.CodeForbidden,
		http.StatusTooManyRequests:     pkgerrors.CodeRateLimit,
		http.StatusUnprocessableEntity: pkgerrors.CodeStateConflict,
		http.StatusPaymentRequired:     pkgerrors.CodeValidation,
		http.StatusBadGateway:          pkgerrors.CodeDependency,
	} {
		require.Equal(t, want, codeForStatus(status), "status %d", status)
	}
}

func TestCallLogsAndMaps(t *testing.T) {
	c := &Client{logg: logger.New(logger.Options{ServiceName: "square-test", Output: io.Discard})}

	out, err := call(context.Background(), c, "get_payment", nil, func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	require.Equal(t, "ok", out)

	_, err = call(context.Background(), c, "cancel_payment", map[string]any{"payment_id": "p1"}, func() (string, error) {
		return "", sqcore.NewAPIError(http.StatusConflict, errors.New(`{}`))
	})
	require.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())
}

func TestNewClientValidatesConfig(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "square-test", Output: io.Discard})
	ctx := context.Background()

	_, err := NewClient(ctx, config.SquareConfig{AccessToken: "tok", Env: "staging"}, logg)
	require.Error(t, err)
	_, err = NewClient(ctx, config.SquareConfig{Env: "sandbox"}, logg)
	require.Error(t, err)
	_, err = NewClient(ctx, config.SquareConfig{AccessToken: "tok"}, nil)
	require.Error(t, err)

	c, err := NewClient(ctx, config.SquareConfig{AccessToken: "tok", Env: " Production ", Currency: "krw"}, logg)
	require.NoError(t, err)
	require.Equal(t, "KRW", c.currency)
}

func TestPaymentAmountPrefersTotalMoney(t *testing.T) {
	total, amount := int64(13000), int64(10000)
	payment := &sq.Payment{TotalMoney: &sq.Money{Amount: &total}, AmountMoney: &sq.Money{Amount: &amount}}
	require.Equal(t, total, PaymentAmount(payment))
	require.Equal(t, amount, PaymentAmount(&sq.Payment{AmountMoney: &sq.Money{Amount: &amount}}))
	require.Zero(t, PaymentAmount(nil))
}

func TestPaymentStatusNormalizes(t *testing.T) {
	status := "approved"
	require.Equal(t, PaymentStatusApproved, PaymentStatus(&sq.Payment{Status: &status}))
	require.Empty(t, PaymentStatus(nil))
}

func TestRefundParamsToSquareRequest(t *testing.T) {
	req := RefundCreateParams{PaymentID: " pay-1 ", Amount: 3000, Currency: "krw", Reason: "buyer refund"}.toSquareRequest("key-1")
	require.Equal(t, "key-1", req.IdempotencyKey)
	require.Equal(t, "pay-1", *req.PaymentID)
	require.Equal(t, int64(3000), *req.AmountMoney.Amount)
	require.Equal(t, "KRW", string(*req.AmountMoney.Currency))
	require.Equal(t, "buyer refund", *req.Reason)

	bare := RefundCreateParams{PaymentID: "pay-2"}.toSquareRequest("key-2")
	require.Nil(t, bare.AmountMoney)
	require.Nil(t, bare.Reason)
}
