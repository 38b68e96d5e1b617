package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestMetadataTable(t *testing.T) {
	cases := map[Code]Metadata{
		CodeValidation:    {http.StatusBadRequest, false, "validation failed", true},
		CodeUnauthorized:  {http.StatusUnauthorized, false, "authentication required", false},
		CodeNotFound:      {http.StatusNotFound, false, "resource not found", false},
		CodeStateConflict: {http.StatusUnprocessableEntity, false, "state transition disallowed", true},
		CodeIdempotency:   {http.StatusConflict, false, "idempotency key reused", true},
		CodeRateLimit:     {http.StatusTooManyRequests, false, "rate limit exceeded", false},
		CodeInternal:      {http.StatusInternalServerError, true, "internal server error", false},
		CodeDependency:    {http.StatusServiceUnavailable, true, "dependency unavailable", true},
		CodeInvariant:     {http.StatusInternalServerError, false, "invariant violated", false},
	}
	for code, want := range cases {
		require.Equal(t, want, MetadataFor(code), code)
	}
	require.Equal(t, MetadataFor(CodeInternal), MetadataFor("SOMETHING_UNKNOWN"))
}

func TestWrapKeepsCauseAndCode(t *testing.T) {
	cause := stdErrors.New("row locked")
	err := fmt.Errorf("settle: %w", Wrap(CodeConflict, cause, "wallet log busy").WithDetails(map[string]any{"id": "w-1"}))

	typed := As(err)
	require.NotNil(t, typed)
	require.Equal(t, CodeConflict, typed.Code())
	require.Equal(t, "wallet log busy", typed.Message())
	require.Equal(t, map[string]any{"id": "w-1"}, typed.Details())
	require.ErrorIs(t, err, cause)
	require.True(t, IsCode(err, CodeConflict))
	require.False(t, IsCode(err, CodeValidation))
	require.False(t, IsCode(cause, CodeConflict))

	require.Nil(t, As(nil))
	require.Equal(t, CodeInternal, (*Error)(nil).Code())
	require.Equal(t, "VALIDATION_ERROR: bad amount", New(CodeValidation, "bad amount").Error())
}

func TestRetryable(t *testing.T) {
	require.False(t, Retryable(nil))
	require.True(t, Retryable(stdErrors.New("socket closed")), "untyped errors are treated as internal")
	require.True(t, Retryable(New(CodeDependency, "square timeout")))
	require.False(t, Retryable(New(CodeStateConflict, "deal already completed")))
	require.False(t, Retryable(New(CodeInvariant, "wallet exceeds remain")))
}

func TestDump(t *testing.T) {
	require.Equal(t, ErrorDump{}, Dump(nil))

	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_wallet_logs_deal_id", TableName: "wallet_logs"}
	dump := Dump(Wrap(CodeConflict, fmt.Errorf("insert wallet log: %w", pgErr), "already settled"))
	require.Equal(t, CodeConflict, dump.Code)
	require.False(t, dump.Retryable)
	require.Len(t, dump.Chain, 3)
	require.Equal(t, &PGInfo{Code: "23505", Constraint: "ux_wallet_logs_deal_id", Table: "wallet_logs"}, dump.PG)

	pqDump := Dump(&pq.Error{Code: "40001", Message: "could not serialize access"})
	require.Equal(t, "40001", pqDump.PG.Code)
	require.True(t, pqDump.Retryable)
	require.Empty(t, pqDump.Code)
}
