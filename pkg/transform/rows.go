package transform

import (
	"encoding/json"

	"github.com/valyala/fastjson"

	"calltriage-server/pkg/errors"
)

// TimestampKey is the derived column carrying the local display
// timestamp of a row.
const TimestampKey = "timestamp(local)"

// RowBuilder turns raw telemetry event documents into flattened rows.
// It is safe for concurrent use; parsers come from a shared pool.
type RowBuilder struct {
	parsers fastjson.ParserPool
	norm    *Normalizer
}

// NewRowBuilder creates a builder that renders timestamps in the
// normalizer's zone.
func NewRowBuilder(norm *Normalizer) *RowBuilder {
	return &RowBuilder{norm: norm}
}

// BuildRow flattens one event document into a row. The envelope's
// attributes subtree flattens at the top level, an envelope-level usr
// object lands under the "usr" prefix, envelope tags override attribute
// tags, the raw timestamp gains a local display twin, and the call
// identifier is unified.
func (b *RowBuilder) BuildRow(data []byte) (*FlatRow, error) {
	p := b.parsers.Get()
	defer b.parsers.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrMalformedEvent, err.Error())
	}

	attrs := v.Get("attributes")
	if attrs == nil || attrs.Type() != fastjson.TypeObject {
		return nil, errors.Wrap(errors.ErrMalformedEvent, "event has no attributes object")
	}

	row := NewFlatRow()
	Flatten("", attrs, row)

	if usr := v.Get("usr"); usr != nil {
		Flatten("usr", usr, row)
	}
	if tags := v.Get("tags"); tags != nil {
		Flatten("tags", tags, row)
	}

	if ts, ok := row.GetString("timestamp"); ok {
		row.Set(TimestampKey, b.norm.ToLocalMillis(ts))
	} else {
		row.Set(TimestampKey, "")
	}

	UnifyCallID(row)
	return row, nil
}

// BuildRows flattens a batch of raw event documents, preserving input
// order. Malformed events are skipped and counted instead of failing
// the batch.
func (b *RowBuilder) BuildRows(events []json.RawMessage) ([]*FlatRow, int) {
	rows := make([]*FlatRow, 0, len(events))
	skipped := 0

	for _, ev := range events {
		row, err := b.BuildRow(ev)
		if err != nil {
			skipped++
			continue
		}
		rows = append(rows, row)
	}

	return rows, skipped
}
