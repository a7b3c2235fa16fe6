package conflict

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/solarfab/linesync/types"
)

func updateMutation(data string) *types.Mutation {
	return &types.Mutation{
		Operation: types.OperationUpdate,
		Table:     "panels",
		RecordID:  "panel-7",
		Data:      json.RawMessage(data),
		CreatedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestResolve_DeleteAgainstSurvivingRecord(t *testing.T) {
	m := &types.Mutation{
		Operation: types.OperationDelete,
		Table:     "panels",
		RecordID:  "panel-7",
	}

	res := Resolve(m, json.RawMessage(`{"id":"panel-7","version":2}`))
	assert.Equal(t, WinnerRemote, res.Winner)
}

func TestResolve_HigherVersionWins(t *testing.T) {
	res := Resolve(updateMutation(`{"version":6}`), json.RawMessage(`{"version":4}`))
	assert.Equal(t, WinnerLocal, res.Winner)

	res = Resolve(updateMutation(`{"version":3}`), json.RawMessage(`{"version":5}`))
	assert.Equal(t, WinnerRemote, res.Winner)
}

func TestResolve_VersionBeatsTimestamp(t *testing.T) {
	// Local version 3 with a later timestamp still loses to server
	// version 5. Version is authoritative when both sides carry one.
	local := updateMutation(`{"version":3,"updatedAt":"2026-03-02T10:00:00Z"}`)
	server := json.RawMessage(`{"version":5,"updatedAt":"2026-03-01T10:00:00Z"}`)

	res := Resolve(local, server)
	assert.Equal(t, WinnerRemote, res.Winner)
}

func TestResolve_EqualVersionsFallToTimestamp(t *testing.T) {
	local := updateMutation(`{"version":4,"updatedAt":"2026-03-02T10:00:00Z"}`)
	server := json.RawMessage(`{"version":4,"updatedAt":"2026-03-01T10:00:00Z"}`)

	res := Resolve(local, server)
	assert.Equal(t, WinnerLocal, res.Winner)
}

func TestResolve_TimestampOnly(t *testing.T) {
	local := updateMutation(`{"updatedAt":"2026-03-01T06:00:00Z"}`)
	server := json.RawMessage(`{"updatedAt":"2026-03-01T09:30:00Z"}`)

	res := Resolve(local, server)
	assert.Equal(t, WinnerRemote, res.Winner)
}

func TestResolve_FallsBackToMutationCreatedAt(t *testing.T) {
	local := updateMutation(`{"status":"flashing"}`)
	server := json.RawMessage(`{"createdAt":"2026-02-28T12:00:00Z"}`)

	// Mutation was queued 2026-03-01, after the server record's timestamp.
	res := Resolve(local, server)
	assert.Equal(t, WinnerLocal, res.Winner)
}

func TestResolve_NoMetadataGoesManual(t *testing.T) {
	local := updateMutation(`{"status":"laminated"}`)
	server := json.RawMessage(`{"status":"framed"}`)

	res := Resolve(local, server)
	assert.Equal(t, WinnerManual, res.Winner)
}

func TestResolve_Deterministic(t *testing.T) {
	local := updateMutation(`{"version":3,"updatedAt":"2026-03-01T08:00:00Z"}`)
	server := json.RawMessage(`{"version":5,"updatedAt":"2026-03-02T08:00:00Z"}`)

	first := Resolve(local, server)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Resolve(local, server))
	}
	assert.Equal(t, WinnerRemote, first.Winner)
}

func TestAdvanceVersion(t *testing.T) {
	advanced, err := AdvanceVersion(
		json.RawMessage(`{"serial":"SP-2211","version":3}`),
		json.RawMessage(`{"version":7}`),
	)

	assert.NoError(t, err)
	assert.JSONEq(t, `{"serial":"SP-2211","version":8}`, string(advanced))
}

func TestAdvanceVersion_NoServerVersion(t *testing.T) {
	original := json.RawMessage(`{"serial":"SP-2211"}`)
	advanced, err := AdvanceVersion(original, json.RawMessage(`{"id":"panel-7"}`))

	assert.NoError(t, err)
	assert.Equal(t, string(original), string(advanced))
}
