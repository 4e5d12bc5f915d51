// Package canonical produces deterministic IDs for context conditions and
// overrides: the same content, however it arrived (key order, whitespace),
// always hashes to the same ID.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
)

// HashLen is the number of hex characters of the SHA-256 digest used as an
// ID. The full digest is 64 hex characters; a 32-character prefix keeps IDs
// short while remaining collision-resistant for this domain's cardinality.
const HashLen = 32

// Encode renders v as canonical JSON: object keys sorted, no insignificant
// whitespace, UTF-8. Supports the decoded-JSON value set produced by
// encoding/json (map[string]any, []any, string, float64, bool, nil) plus
// plain Go numeric/string types for convenience when building values in
// code rather than decoding them.
func Encode(v any) ([]byte, error) {
	buf := make([]byte, 0, 256)
	buf, err := appendCanonical(buf, v)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Hash returns the HashLen-character hex-encoded ID for v's canonical form.
func Hash(v any) (string, error) {
	enc, err := Encode(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(enc)
	full := hex.EncodeToString(sum[:])
	if len(full) < HashLen {
		return full, nil
	}
	return full[:HashLen], nil
}

func appendCanonical(buf []byte, v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return append(buf, "null"...), nil
	case bool:
		if x {
			return append(buf, "true"...), nil
		}
		return append(buf, "false"...), nil
	case string:
		return appendCanonicalString(buf, x), nil
	case float64:
		return appendCanonicalNumber(buf, x), nil
	case int:
		return strconv.AppendInt(buf, int64(x), 10), nil
	case int32:
		return strconv.AppendInt(buf, int64(x), 10), nil
	case int64:
		return strconv.AppendInt(buf, x, 10), nil
	case uint8:
		return strconv.AppendUint(buf, uint64(x), 10), nil
	case []any:
		return appendCanonicalArray(buf, x)
	case map[string]any:
		return appendCanonicalObject(buf, x)
	default:
		return nil, fmt.Errorf("canonical: unsupported value type %T", v)
	}
}

func appendCanonicalString(buf []byte, s string) []byte {
	buf = append(buf, '"')
	for _, r := range s {
		switch r {
		case '"':
			buf = append(buf, `\"`...)
		case '\\':
			buf = append(buf, `\\`...)
		case '\n':
			buf = append(buf, `\n`...)
		case '\r':
			buf = append(buf, `\r`...)
		case '\t':
			buf = append(buf, `\t`...)
		default:
			if r < 0x20 {
				buf = append(buf, fmt.Sprintf(`\u%04x`, r)...)
			} else {
				buf = append(buf, string(r)...)
			}
		}
	}
	return append(buf, '"')
}

func appendCanonicalNumber(buf []byte, f float64) []byte {
	if f == float64(int64(f)) {
		return strconv.AppendInt(buf, int64(f), 10)
	}
	return strconv.AppendFloat(buf, f, 'g', -1, 64)
}

func appendCanonicalArray(buf []byte, arr []any) ([]byte, error) {
	buf = append(buf, '[')
	for i, item := range arr {
		if i > 0 {
			buf = append(buf, ',')
		}
		var err error
		buf, err = appendCanonical(buf, item)
		if err != nil {
			return nil, err
		}
	}
	return append(buf, ']'), nil
}

func appendCanonicalObject(buf []byte, obj map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf = append(buf, '{')
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = appendCanonicalString(buf, k)
		buf = append(buf, ':')
		var err error
		buf, err = appendCanonical(buf, obj[k])
		if err != nil {
			return nil, err
		}
	}
	return append(buf, '}'), nil
}
