package wire

import (
	"bytes"
	"fmt"
	"io"
)

// Record is a single entry in a TLV stream: an even type means it must be
// understood by the decoder (unknown even types are a protocol violation),
// an odd type may be safely ignored when unrecognized.
type Record struct {
	Type  uint64
	Value []byte
}

// IsUnknownEven reports whether typ would be rejected by a decoder that
// does not recognize it, per BOLT #1's it's-ok-to-be-odd rule.
func IsUnknownEven(typ uint64, known map[uint64]struct{}) bool {
	if typ%2 != 0 {
		return false
	}
	_, ok := known[typ]
	return !ok
}

// EncodeStream serializes records, which MUST already be in strictly
// ascending type order, as a TLV stream.
func EncodeStream(w io.Writer, records []Record) error {
	var lastType uint64
	for i, rec := range records {
		if i > 0 && rec.Type <= lastType {
			return fmt.Errorf("tlv stream out of order: "+
				"type %d follows type %d", rec.Type, lastType)
		}
		lastType = rec.Type

		if _, err := EncodeBigSize(w, rec.Type); err != nil {
			return err
		}
		if _, err := EncodeBigSize(w, uint64(len(rec.Value))); err != nil {
			return err
		}
		if _, err := w.Write(rec.Value); err != nil {
			return err
		}
	}
	return nil
}

// DecodeStream parses b as a TLV stream. It rejects any stream whose types
// are not strictly increasing, including duplicates, and rejects trailing
// truncated records.
func DecodeStream(b []byte) ([]Record, error) {
	r := bytes.NewReader(b)

	var (
		records []Record
		lastType uint64
		haveLast bool
	)

	for r.Len() > 0 {
		typ, _, err := DecodeBigSize(r)
		if err != nil {
			return nil, fmt.Errorf("tlv: reading type: %w", err)
		}

		if haveLast && typ <= lastType {
			return nil, fmt.Errorf("tlv stream not strictly "+
				"increasing: type %d follows type %d",
				typ, lastType)
		}
		lastType = typ
		haveLast = true

		length, _, err := DecodeBigSize(r)
		if err != nil {
			return nil, fmt.Errorf("tlv: reading length for "+
				"type %d: %w", typ, err)
		}

		value := make([]byte, length)
		if _, err := io.ReadFull(r, value); err != nil {
			return nil, fmt.Errorf("tlv: reading value for "+
				"type %d: %w", typ, err)
		}

		records = append(records, Record{Type: typ, Value: value})
	}

	return records, nil
}

// FindRecord returns the record of the given type, if present.
func FindRecord(records []Record, typ uint64) (Record, bool) {
	for _, rec := range records {
		if rec.Type == typ {
			return rec, true
		}
	}
	return Record{}, false
}
