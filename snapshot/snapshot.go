// Package snapshot defines the on-disk record format for saved device
// state.
//
// A snapshot stream is a fixed header followed by a sequence of entity
// records. The header carries a magic tag and a semantic format version;
// restore accepts any stream whose format major version matches its own.
// Each record identifies one entity (a component, resource, or context) by
// tag and guest-visible id, with a length-prefixed JSON payload the owning
// layer interprets. Record payloads that fail to parse are scoped errors;
// the stream itself stays readable.
package snapshot

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/coreos/go-semver/semver"

	"github.com/virtgfx/gpu-bridge/errors"
)

// Magic opens every snapshot stream.
const Magic = "VGSN"

// FormatVersion is the stream format this build writes. Restore requires a
// matching major version.
const FormatVersion = "1.0.0"

// EntityTag identifies what a record describes.
type EntityTag uint8

const (
	EntityComponent EntityTag = 1
	EntityResource  EntityTag = 2
	EntityContext   EntityTag = 3
)

func (t EntityTag) String() string {
	switch t {
	case EntityComponent:
		return "component"
	case EntityResource:
		return "resource"
	case EntityContext:
		return "context"
	default:
		return fmt.Sprintf("entity(%d)", uint8(t))
	}
}

// Record is one serialized entity.
type Record struct {
	Tag     EntityTag
	ID      uint32
	Payload []byte
}

// DecodePayload parses the record's JSON payload into v, scoping parse
// failures to the entity.
func (r Record) DecodePayload(v any) error {
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return errors.Snapshot(fmt.Sprintf("%s %d payload", r.Tag, r.ID), err)
	}
	return nil
}

// maxPayload bounds a single record so a corrupt length prefix cannot ask
// for an absurd allocation.
const maxPayload = 1 << 30

// Writer emits a snapshot stream.
type Writer struct {
	w io.Writer
}

// NewWriter writes the stream header and returns a record writer.
func NewWriter(w io.Writer) (*Writer, error) {
	if _, err := w.Write([]byte(Magic)); err != nil {
		return nil, errors.Snapshot("header", err)
	}
	version := []byte(FormatVersion)
	var vlen [2]byte
	binary.LittleEndian.PutUint16(vlen[:], uint16(len(version)))
	if _, err := w.Write(vlen[:]); err != nil {
		return nil, errors.Snapshot("header", err)
	}
	if _, err := w.Write(version); err != nil {
		return nil, errors.Snapshot("header", err)
	}
	return &Writer{w: w}, nil
}

// WriteRecord appends one entity record.
func (w *Writer) WriteRecord(rec Record) error {
	if uint64(len(rec.Payload)) > maxPayload {
		return errors.Snapshot(fmt.Sprintf("%s %d payload too large", rec.Tag, rec.ID), nil)
	}

	var hdr [9]byte
	hdr[0] = byte(rec.Tag)
	binary.LittleEndian.PutUint32(hdr[1:5], rec.ID)
	binary.LittleEndian.PutUint32(hdr[5:9], uint32(len(rec.Payload)))

	if _, err := w.w.Write(hdr[:]); err != nil {
		return errors.Snapshot(fmt.Sprintf("%s %d", rec.Tag, rec.ID), err)
	}
	if _, err := w.w.Write(rec.Payload); err != nil {
		return errors.Snapshot(fmt.Sprintf("%s %d", rec.Tag, rec.ID), err)
	}
	return nil
}

// WriteJSON marshals v and appends it as a record.
func (w *Writer) WriteJSON(tag EntityTag, id uint32, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Snapshot(fmt.Sprintf("%s %d payload", tag, id), err)
	}
	return w.WriteRecord(Record{Tag: tag, ID: id, Payload: payload})
}

// Reader consumes a snapshot stream.
type Reader struct {
	r io.Reader

	// Version is the format version the stream was written with.
	Version string
}

// NewReader validates the stream header. A magic mismatch or a format major
// version other than this build's is a snapshot error.
func NewReader(r io.Reader) (*Reader, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, errors.Snapshot("header magic", err)
	}
	if string(magic[:]) != Magic {
		return nil, errors.Snapshot(fmt.Sprintf("bad magic %q", magic[:]), nil)
	}

	var vlen [2]byte
	if _, err := io.ReadFull(r, vlen[:]); err != nil {
		return nil, errors.Snapshot("header version", err)
	}
	version := make([]byte, binary.LittleEndian.Uint16(vlen[:]))
	if _, err := io.ReadFull(r, version); err != nil {
		return nil, errors.Snapshot("header version", err)
	}

	streamVer, err := semver.NewVersion(string(version))
	if err != nil {
		return nil, errors.Snapshot(fmt.Sprintf("format version %q", version), err)
	}
	ownVer := semver.New(FormatVersion)
	if streamVer.Major != ownVer.Major {
		return nil, errors.Snapshot(fmt.Sprintf(
			"format version %s incompatible with %s", streamVer, FormatVersion), nil)
	}

	return &Reader{r: r, Version: streamVer.String()}, nil
}

// ReadRecord returns the next entity record, or io.EOF at a clean end of
// stream.
func (r *Reader) ReadRecord() (Record, error) {
	var hdr [9]byte
	if _, err := io.ReadFull(r.r, hdr[:]); err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, errors.Snapshot("record header", err)
	}

	rec := Record{
		Tag: EntityTag(hdr[0]),
		ID:  binary.LittleEndian.Uint32(hdr[1:5]),
	}
	size := binary.LittleEndian.Uint32(hdr[5:9])
	if uint64(size) > maxPayload {
		return Record{}, errors.Snapshot(fmt.Sprintf("%s %d payload length %d", rec.Tag, rec.ID, size), nil)
	}

	rec.Payload = make([]byte, size)
	if _, err := io.ReadFull(r.r, rec.Payload); err != nil {
		return Record{}, errors.Snapshot(fmt.Sprintf("%s %d payload", rec.Tag, rec.ID), err)
	}
	return rec, nil
}
