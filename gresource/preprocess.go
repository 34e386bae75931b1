package gresource

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
)

// applyPreprocessor runs one named preprocessor over data (spec §4.7).
// Preprocessors are applied in manifest order before compression.
func applyPreprocessor(name string, data []byte) ([]byte, error) {
	switch name {
	case "xml-stripblanks":
		return stripXMLBlanks(data)
	case "json-stripblanks":
		return stripJSONBlanks(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPreprocessor, name)
	}
}

// stripXMLBlanks re-serializes data with whitespace-only CharData tokens
// elided, a mechanical transform plain enough that no example repo in
// the pack reaches for a non-stdlib XML library for it.
func stripXMLBlanks(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gresource: xml-stripblanks: %w", err)
		}
		if cd, ok := tok.(xml.CharData); ok && len(bytes.TrimSpace(cd)) == 0 {
			continue
		}
		if err := enc.EncodeToken(tok); err != nil {
			return nil, fmt.Errorf("gresource: xml-stripblanks: %w", err)
		}
	}
	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("gresource: xml-stripblanks: %w", err)
	}
	return buf.Bytes(), nil
}

// stripJSONBlanks decodes and re-encodes with jsoniter, which minifies
// by default — the same jsoniter.ConfigCompatibleWithStandardLibrary
// entry point request-response.go and jsonbuilder/builder.go use for
// their own marshal/unmarshal pairs.
func stripJSONBlanks(data []byte) ([]byte, error) {
	var v interface{}
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("gresource: json-stripblanks: %w", err)
	}
	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("gresource: json-stripblanks: %w", err)
	}
	return out, nil
}
