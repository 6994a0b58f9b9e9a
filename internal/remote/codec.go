package remote

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"wardsync/internal/census"
)

// optionalFields are the record fields that are semantically optional. The
// wire document keeps an explicit null for a cleared optional so peers can
// tell "cleared by an edit" apart from "never set"; domain records collapse
// both to the zero value.
var optionalFields = []string{
	"handoffNovedadesDayShift",
	"handoffNovedadesNightShift",
	"medicalHandoffDoctor",
	"medicalHandoffSentAt",
	"medicalSignature",
}

// encodeDoc renders a record as a wire document: canonical JSON with every
// optional field present, cleared ones as explicit nulls. Encoding is the
// write boundary, so invalid records are rejected here and stored documents
// always decode.
func encodeDoc(rec *census.Record) ([]byte, error) {
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("cannot store invalid record: %w", err)
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record %s: %w", rec.Date, err)
	}
	for _, field := range optionalFields {
		if gjson.GetBytes(doc, field).Exists() {
			continue
		}
		doc, err = sjson.SetRawBytes(doc, field, []byte("null"))
		if err != nil {
			return nil, fmt.Errorf("failed to encode record %s: %w", rec.Date, err)
		}
	}
	return doc, nil
}

// decodeDoc parses a wire document back into a domain record. Explicit nulls
// decode to zero values, and the canonical collection shape is restored.
func decodeDoc(doc []byte) (*census.Record, error) {
	var rec census.Record
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode remote document: %w", err)
	}
	rec.SetDefaults()
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid remote document: %w", err)
	}
	return &rec, nil
}

// patchStamp rewrites the document's embedded lastUpdated after a partial
// update, keeping it in step with the backend's version column.
func patchStamp(doc []byte, stamp time.Time) ([]byte, error) {
	return sjson.SetBytes(doc, "lastUpdated", stamp.UTC().Format(time.RFC3339Nano))
}
