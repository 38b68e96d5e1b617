package outbox_test

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dealflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
	"github.com/angelmondragon/dealflow-backend/pkg/enums"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox"
)

func TestDLQInsertClipsMessageAndIgnoresReplays(t *testing.T) {
	conn := dbtest.Open(t)
	repo := outbox.NewDLQRepository(conn)

	long := strings.Repeat("x", 4096)
	entry := models.OutboxDLQ{
		EventID:       uuid.New(),
		EventType:     enums.EventDealSettled,
		AggregateType: enums.AggregateWalletLog,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &long,
		AttemptCount:  10,
	}
	require.NoError(t, repo.InsertTx(conn, entry))
	require.NoError(t, repo.InsertTx(conn, entry))

	var rows []models.OutboxDLQ
	require.NoError(t, conn.Where("event_id = ?", entry.EventID).Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Len(t, *rows[0].ErrorMessage, 1024)

	require.Error(t, repo.InsertTx(nil, entry))
}
