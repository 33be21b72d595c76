package content

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Hash fingerprints an ordered field projection. Fields are serialized as a
// JSON object in the given order; empty values are omitted so an absent
// field never collides with a present one.
func Hash(fields []Field) string {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, f := range fields {
		if f.Value == "" {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		writeJSONString(&buf, f.Name)
		buf.WriteByte(':')
		writeJSONString(&buf, f.Value)
	}
	buf.WriteByte('}')

	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

// HashRecord hashes the record's mutable semantic fields.
func HashRecord(r Record) string {
	return Hash(r.HashFields())
}

func writeJSONString(buf *bytes.Buffer, s string) {
	enc, _ := json.Marshal(s) // strings always marshal
	buf.Write(enc)
}
