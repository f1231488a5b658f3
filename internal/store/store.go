// Package store reads and writes named msgpack records.
//
// Every persisted object is written as one record: a kind string naming the
// object type, a format version, and a msgpack body whose fields are keyed by
// name. Readers check the kind and version before decoding the body, so a
// file written for one object type is never silently decoded as another.
package store

import (
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Version is the record format version written by Write.
const Version = 1

// ErrFormat is returned for unreadable records, kind or version mismatches,
// and bodies that are missing required fields.
var ErrFormat = errors.New("format error")

type record struct {
	Kind    string             `msgpack:"kind"`
	Version int                `msgpack:"version"`
	Body    msgpack.RawMessage `msgpack:"body"`
}

// Write encodes v as the body of a record named kind.
func Write(w io.Writer, kind string, v any) error {
	body, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s body: %w", kind, err)
	}
	if err := msgpack.NewEncoder(w).Encode(record{Kind: kind, Version: Version, Body: body}); err != nil {
		return fmt.Errorf("write %s record: %w", kind, err)
	}
	return nil
}

// Read decodes a record named kind from r into v.
func Read(r io.Reader, kind string, v any) error {
	var rec record
	if err := msgpack.NewDecoder(r).Decode(&rec); err != nil {
		return fmt.Errorf("%w: read %s record: %v", ErrFormat, kind, err)
	}
	if rec.Kind != kind {
		return fmt.Errorf("%w: record kind %q, want %q", ErrFormat, rec.Kind, kind)
	}
	if rec.Version != Version {
		return fmt.Errorf("%w: %s record version %d, want %d", ErrFormat, kind, rec.Version, Version)
	}
	if len(rec.Body) == 0 {
		return fmt.Errorf("%w: %s record has no body", ErrFormat, kind)
	}
	if err := msgpack.Unmarshal(rec.Body, v); err != nil {
		return fmt.Errorf("%w: decode %s body: %v", ErrFormat, kind, err)
	}
	return nil
}

// Kind returns the record kind stored at the start of data without decoding the body.
func Kind(data []byte) (string, error) {
	var rec record
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return "", fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return rec.Kind, nil
}

// Missing reports a required field absent from a record body.
func Missing(kind, field string) error {
	return fmt.Errorf("%w: %s record missing field %q", ErrFormat, kind, field)
}
