package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/gowebpki/jcs"
)

// ErrInexactNumber is returned for a number whose value is lost when it is
// read as an IEEE 754 double and written back in shortest form, such as
// 9007199254740993 or 1e400. Canonical JSON serialises numbers that way, so
// such a value would share its digest with a different number.
var ErrInexactNumber = errors.New("number does not survive a float64 round trip")

// Digest returns the hex-encoded SHA-256 of the RFC 8785 canonical JSON form
// of v. Map keys are sorted and numbers normalised, so two payloads that
// serialise to the same JSON value always share a digest regardless of how
// they were built. Payloads holding a number that is not exactly a double are
// rejected with ErrInexactNumber, which keeps distinct payloads on distinct
// digests.
func Digest(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal for digest: %w", err)
	}
	if err := checkNumbers(raw); err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize for digest: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// DigestBlock returns the digest of b's full representation, including its
// own PreviousHash and DataHash. It is the PreviousHash of the next block.
func DigestBlock(b Block) (string, error) {
	return Digest(b)
}

// normalizeData converts an arbitrary payload into the generic JSON shape it
// will have after a reload (map[string]any, []any, json.Number, ...). Storing
// the normalised form keeps the in-memory chain identical to the durable one.
func normalizeData(data map[string]any) (map[string]any, error) {
	if data == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal data: %w", err)
	}
	var out map[string]any
	if err := decodeJSON(raw, &out); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func decodeJSON(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

// checkNumbers walks the JSON document raw and fails on the first number
// that does not survive a round trip through float64.
func checkNumbers(raw []byte) error {
	var doc any
	if err := decodeJSON(raw, &doc); err != nil {
		return fmt.Errorf("decode for digest: %w", err)
	}
	return walkNumbers(doc)
}

func walkNumbers(v any) error {
	switch t := v.(type) {
	case json.Number:
		return exactNumber(t.String())
	case map[string]any:
		for _, e := range t {
			if err := walkNumbers(e); err != nil {
				return err
			}
		}
	case []any:
		for _, e := range t {
			if err := walkNumbers(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// exactNumber fails unless the decimal literal s has the same value as the
// shortest representation of its nearest double. Every accepted literal thus
// maps to a distinct double.
func exactNumber(s string) error {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInexactNumber, s)
	}
	want, ok := new(big.Rat).SetString(s)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInexactNumber, s)
	}
	got, ok := new(big.Rat).SetString(strconv.FormatFloat(f, 'g', -1, 64))
	if !ok || want.Cmp(got) != 0 {
		return fmt.Errorf("%w: %s", ErrInexactNumber, s)
	}
	return nil
}
