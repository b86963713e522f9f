package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// CanonicalJSON re-serialises raw as compact JSON with sorted object keys,
// original number literals and no HTML escaping.
func CanonicalJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canonical json: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("canonical json: trailing data")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("canonical json: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// transactionIDPaths are tried in order to find the provider's transaction id
var transactionIDPaths = []string{
	"transaction_id",
	"transactionId",
	"data.id",
	"id",
	"external_id",
	"data.attributes.reference_number",
}

// ExtractTransactionID finds the provider transaction id in a JSON payload.
// It returns "" when none of the known fields is present.
func ExtractTransactionID(raw []byte) string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return ""
	}
	for _, path := range transactionIDPaths {
		if id := lookup(doc, strings.Split(path, ".")); id != "" {
			return id
		}
	}
	return ""
}

func lookup(doc map[string]any, path []string) string {
	var cur any = doc
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = m[p]
	}
	switch v := cur.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	}
	return ""
}
