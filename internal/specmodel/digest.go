package specmodel

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// CanonicalJSON renders v as deterministic JSON: sorted object keys at every
// level (v is first decoded into a generic value, whose maps encoding/json
// writes in key order, so struct field declaration order does not leak
// through), 2-space indent, and a trailing newline. Spec §8's P1 property
// ("resolving the same Spec twice yields byte-identical Lock files") depends
// on this being exercised the same way every time.
func CanonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Digest returns the hex-encoded sha256 of the Spec's canonical JSON
// encoding, used as ResolvedLock.SpecDigest.
func (s *VersionSpec) Digest() (string, error) {
	data, err := CanonicalJSON(s)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
