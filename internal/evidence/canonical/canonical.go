// Package canonical produces byte-stable JSON and SHA-256 digests.
//
// Rules:
//   - Objects: keys sorted lexicographically by byte value.
//   - Arrays: order preserved.
//   - Numbers: textual form preserved via json.Number.
//   - No insignificant whitespace.
//
// Everything here is pure; the same input always yields the same bytes.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"unicode/utf8"

	dErrors "evidenceledger/pkg/domain-errors"
)

// Canonicalize returns deterministic JSON bytes for a JSON-like value or any
// value encoding/json can marshal.
func Canonicalize(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Hash returns the lowercase hex SHA-256 of b (always 64 characters).
func Hash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashCanonical canonicalizes v and hashes the result.
func HashCanonical(v any) (canon []byte, digest string, err error) {
	canon, err = Canonicalize(v)
	if err != nil {
		return nil, "", err
	}
	return canon, Hash(canon), nil
}

// ParseObject decodes raw as a single JSON object. Bare strings, numbers,
// arrays, free text, trailing data, invalid UTF-8 and duplicate object keys
// are INVALID_PAYLOAD: each would otherwise let two distinct inputs share
// one canonical form.
func ParseObject(raw []byte) (map[string]any, error) {
	if !utf8.Valid(raw) {
		return nil, dErrors.New(dErrors.CodeInvalidPayload, "payload is not valid UTF-8")
	}
	if err := checkDuplicateKeys(raw); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidPayload, "payload is not valid JSON")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidPayload, "payload must be a JSON object")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, dErrors.New(dErrors.CodeInvalidPayload, "payload has trailing data after the JSON object")
	}
	return obj, nil
}

// CanonicalObject parses raw as a JSON object and returns its canonical bytes.
func CanonicalObject(raw []byte) ([]byte, error) {
	obj, err := ParseObject(raw)
	if err != nil {
		return nil, err
	}
	return Canonicalize(obj)
}

// checkDuplicateKeys walks the token stream and fails on the first object
// that repeats a key. Syntax errors are left for the full decode to report.
func checkDuplicateKeys(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	err := walkValue(dec)
	if err == nil || dErrors.HasCode(err, dErrors.CodeInvalidPayload) {
		return err
	}
	return nil
}

func walkValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return nil
	}
	switch delim {
	case '{':
		seen := make(map[string]struct{})
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return err
			}
			key, ok := keyTok.(string)
			if !ok {
				return fmt.Errorf("unexpected object key token %v", keyTok)
			}
			if _, dup := seen[key]; dup {
				return dErrors.WithFields(dErrors.CodeInvalidPayload, "payload repeats an object key",
					[]dErrors.FieldError{{Field: key, Message: "duplicate key"}})
			}
			seen[key] = struct{}{}
			if err := walkValue(dec); err != nil {
				return err
			}
		}
	case '[':
		for dec.More() {
			if err := walkValue(dec); err != nil {
				return err
			}
		}
	}
	// Closing delimiter.
	_, err = dec.Token()
	return err
}

func encode(buf *bytes.Buffer, v any) error {
	switch vv := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if vv {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(vv.String())
	case string:
		b, err := json.Marshal(vv)
		if err != nil {
			return fmt.Errorf("canonical string: %w", err)
		}
		buf.Write(b)
	case []any:
		buf.WriteByte('[')
		for i, elem := range vv {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return fmt.Errorf("canonical key: %w", err)
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encode(buf, vv[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		// Structs, typed maps and native numbers: marshal, re-decode with
		// UseNumber and encode the generic form.
		b, err := json.Marshal(vv)
		if err != nil {
			return fmt.Errorf("canonical marshal fallback: %w", err)
		}
		var tmp any
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()
		if err := dec.Decode(&tmp); err != nil {
			return fmt.Errorf("canonical decode fallback: %w", err)
		}
		return encode(buf, tmp)
	}
	return nil
}
