package transform

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calltriage-server/pkg/errors"
)

func testEvent(ts, callID string) []byte {
	return []byte(`{
		"id": "ev-1",
		"type": "rum",
		"attributes": {
			"attributes": {
				"context": {"callID": "` + callID + `", "method": "POST"},
				"resource": {"url_path": "/res/SDK_CALL_STATUS_ACTIVE", "status_code": 200},
				"usr": {"id": "user-7"}
			},
			"tags": ["uid:1", "first_version:2.3.1", "env:prod"],
			"timestamp": "` + ts + `"
		}
	}`)
}

func TestBuildRow(t *testing.T) {
	b := NewRowBuilder(NewNormalizerIn(time.UTC))

	row, err := b.BuildRow(testEvent("2024-03-15T08:30:45.123Z", "call-1"))
	require.NoError(t, err)

	v, ok := row.NonNull(CallIDKey)
	assert.True(t, ok)
	assert.Equal(t, "call-1", v)

	path, ok := row.GetString("attributes.resource.url_path")
	assert.True(t, ok)
	assert.Equal(t, "/res/SDK_CALL_STATUS_ACTIVE", path)

	code, ok := row.GetNumber("attributes.resource.status_code")
	assert.True(t, ok)
	assert.Equal(t, float64(200), code)

	usr, ok := row.GetString("attributes.usr.id")
	assert.True(t, ok)
	assert.Equal(t, "user-7", usr)

	tags, ok := row.GetString("tags")
	assert.True(t, ok)
	assert.Equal(t, "uid:1, first_version:2.3.1, env:prod", tags)

	display, ok := row.GetString(TimestampKey)
	assert.True(t, ok)
	assert.Equal(t, "2024-03-15 08:30:45.123 UTC", display)

	// The raw ISO timestamp stays alongside the display column.
	raw, ok := row.GetString("timestamp")
	assert.True(t, ok)
	assert.Equal(t, "2024-03-15T08:30:45.123Z", raw)
}

func TestBuildRowEnvelopeUsrOverride(t *testing.T) {
	b := NewRowBuilder(NewNormalizerIn(time.UTC))

	row, err := b.BuildRow([]byte(`{
		"attributes": {"timestamp": "2024-03-15T08:30:45Z"},
		"usr": {"id": "outer-user"}
	}`))
	require.NoError(t, err)

	usr, ok := row.GetString("usr.id")
	assert.True(t, ok)
	assert.Equal(t, "outer-user", usr)
}

func TestBuildRowMissingTimestamp(t *testing.T) {
	b := NewRowBuilder(NewNormalizerIn(time.UTC))

	row, err := b.BuildRow([]byte(`{"attributes": {"attributes": {"context": {"callID": "x"}}}}`))
	require.NoError(t, err)

	display, ok := row.GetString(TimestampKey)
	assert.True(t, ok)
	assert.Equal(t, "", display)
}

func TestBuildRowMalformed(t *testing.T) {
	b := NewRowBuilder(NewNormalizerIn(time.UTC))

	_, err := b.BuildRow([]byte(`{broken`))
	assert.True(t, errors.IsErrorType(err, errors.ErrMalformedEvent))

	_, err = b.BuildRow([]byte(`{"id": "ev", "attributes": "not-an-object"}`))
	assert.True(t, errors.IsErrorType(err, errors.ErrMalformedEvent))

	_, err = b.BuildRow([]byte(`{"id": "ev"}`))
	assert.True(t, errors.IsErrorType(err, errors.ErrMalformedEvent))
}

func TestBuildRowsSkipsMalformed(t *testing.T) {
	b := NewRowBuilder(NewNormalizerIn(time.UTC))

	events := []json.RawMessage{
		testEvent("2024-03-15T08:30:45Z", "call-1"),
		json.RawMessage(`{oops`),
		testEvent("2024-03-15T08:30:46Z", "call-2"),
	}

	rows, skipped := b.BuildRows(events)
	assert.Equal(t, 1, skipped)
	require.Len(t, rows, 2)

	first, _ := rows[0].NonNull(CallIDKey)
	second, _ := rows[1].NonNull(CallIDKey)
	assert.Equal(t, "call-1", first)
	assert.Equal(t, "call-2", second)
}
