package sources

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/opsforge/buildingcompliance/pkg/compliance/model"
)

// decodeRecord validates a raw open-data row against the dataset schema and
// unmarshals it into v. A shape mismatch yields *model.SourceDataInvalidError
// so callers can skip the record without failing the fetch.
func decodeRecord(source string, schema *jsonschema.Schema, raw json.RawMessage, v any) error {
	var inst any
	if err := json.Unmarshal(raw, &inst); err != nil {
		return &model.SourceDataInvalidError{Source: source, Reason: "malformed JSON: " + err.Error()}
	}
	if err := schema.Validate(inst); err != nil {
		return &model.SourceDataInvalidError{Source: source, Reason: err.Error()}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &model.SourceDataInvalidError{Source: source, Reason: err.Error()}
	}
	return nil
}

// issueID derives the stable issue identity from the source name and the
// record's native ID. Deterministic so re-fetches of the same record map to
// the same issue.
func issueID(source, nativeID string) string {
	h := sha256.Sum256([]byte(source + ":" + nativeID))
	return strings.ToLower(source) + "-" + hex.EncodeToString(h[:])[:16]
}
