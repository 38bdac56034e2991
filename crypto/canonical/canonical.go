// Copyright (C) 2025 ember-net
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package canonical implements the one serializer spec.md §4.6 requires be
// used identically on both the signing and verifying side: a stable
// key-ordered JSON-like form where byte fields are base64-encoded and VDF
// iteration counts are stringified as digits. The signature field itself
// is never part of the encoded bytes — callers simply don't add a Field
// for it.
package canonical

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Field is one key/value pair of a canonical encoding, in the exact order
// the caller wants it to appear on the wire. Order matters: the whole point
// of a canonical form is that both peers produce byte-identical output for
// the same logical fields.
type Field struct {
	Key   string
	Value any
}

// Bytes marshals fields into the canonical encoding. Supported value types:
// string, bool, int, int64, []byte (base64-encoded), Iterations (digit
// string), and nil (JSON null). Any other type is an error — the canonical
// form is deliberately closed over a small set of primitives so both sides
// of the wire agree on encoding rules without needing a shared schema.
func Bytes(fields []Field) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(f.Key)
		if err != nil {
			return nil, fmt.Errorf("canonical: encode key %q: %w", f.Key, err)
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		val, err := encodeValue(f.Value)
		if err != nil {
			return nil, fmt.Errorf("canonical: encode field %q: %w", f.Key, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func encodeValue(v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return []byte("null"), nil
	case string:
		return json.Marshal(t)
	case bool:
		return json.Marshal(t)
	case int:
		return json.Marshal(t)
	case int64:
		return json.Marshal(t)
	case []byte:
		return json.Marshal(base64.StdEncoding.EncodeToString(t))
	case Iterations:
		return json.Marshal(t.Int.String())
	default:
		return nil, fmt.Errorf("unsupported canonical value type %T", v)
	}
}

// B64 is a convenience wrapper so call sites read naturally:
// canonical.Field{Key: "author_pub", Value: canonical.B64(pub)}.
func B64(b []byte) []byte { return b }
