package snapshot

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	gpuerrors "github.com/virtgfx/gpu-bridge/errors"
)

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	type ctxState struct {
		CtxID uint32 `json:"ctx_id"`
	}
	records := []struct {
		tag EntityTag
		id  uint32
		v   any
	}{
		{EntityComponent, 0, map[string]string{"dir": "/tmp/snap"}},
		{EntityResource, 17, map[string]uint64{"size": 4096}},
		{EntityContext, 3, ctxState{CtxID: 3}},
	}
	for _, rec := range records {
		if err := w.WriteJSON(rec.tag, rec.id, rec.v); err != nil {
			t.Fatalf("WriteJSON(%s %d): %v", rec.tag, rec.id, err)
		}
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if r.Version != FormatVersion {
		t.Fatalf("stream version = %s, want %s", r.Version, FormatVersion)
	}

	for _, want := range records {
		rec, err := r.ReadRecord()
		if err != nil {
			t.Fatalf("ReadRecord: %v", err)
		}
		if rec.Tag != want.tag || rec.ID != want.id {
			t.Fatalf("record = (%s, %d), want (%s, %d)", rec.Tag, rec.ID, want.tag, want.id)
		}
	}

	var st ctxState
	// Re-encode to pull one payload back out.
	buf.Reset()
	w, _ = NewWriter(&buf)
	if err := w.WriteJSON(EntityContext, 3, ctxState{CtxID: 3}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	r, _ = NewReader(&buf)
	rec, err := r.ReadRecord()
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if err := rec.DecodePayload(&st); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if st.CtxID != 3 {
		t.Fatalf("decoded ctx id = %d, want 3", st.CtxID)
	}

	if _, err := r.ReadRecord(); err != io.EOF {
		t.Fatalf("read past end = %v, want io.EOF", err)
	}
}

func TestBadMagic(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte("NOPE\x05\x001.0.0")))
	if !gpuerrors.IsKind(err, gpuerrors.KindSnapshot) {
		t.Fatalf("bad magic = %v, want snapshot error", err)
	}
}

func writeHeader(version string) *bytes.Buffer {
	var buf bytes.Buffer
	buf.WriteString(Magic)
	var vlen [2]byte
	binary.LittleEndian.PutUint16(vlen[:], uint16(len(version)))
	buf.Write(vlen[:])
	buf.WriteString(version)
	return &buf
}

func TestVersionGate(t *testing.T) {
	tests := []struct {
		version string
		ok      bool
	}{
		{"1.0.0", true},
		{"1.9.3", true},
		{"2.0.0", false},
		{"0.1.0", false},
		{"garbage", false},
	}
	for _, tc := range tests {
		t.Run(tc.version, func(t *testing.T) {
			_, err := NewReader(writeHeader(tc.version))
			if tc.ok && err != nil {
				t.Fatalf("version %s rejected: %v", tc.version, err)
			}
			if !tc.ok && !gpuerrors.IsKind(err, gpuerrors.KindSnapshot) {
				t.Fatalf("version %s = %v, want snapshot error", tc.version, err)
			}
		})
	}
}

func TestCorruptPayloadScoped(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.WriteRecord(Record{Tag: EntityResource, ID: 5, Payload: []byte("{not json")}); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	if err := w.WriteJSON(EntityResource, 6, map[string]int{"size": 1}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	rec, err := r.ReadRecord()
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	var v map[string]int
	if err := rec.DecodePayload(&v); !gpuerrors.IsKind(err, gpuerrors.KindSnapshot) {
		t.Fatalf("corrupt payload = %v, want snapshot error", err)
	}

	// The stream stays readable past the bad payload.
	rec, err = r.ReadRecord()
	if err != nil {
		t.Fatalf("ReadRecord after corrupt payload: %v", err)
	}
	if rec.ID != 6 {
		t.Fatalf("next record id = %d, want 6", rec.ID)
	}
	if err := rec.DecodePayload(&v); err != nil || v["size"] != 1 {
		t.Fatalf("next record payload = %v, %v", v, err)
	}
}

func TestTruncatedStream(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.WriteJSON(EntityContext, 1, map[string]int{"ctx_id": 1}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	truncated := buf.Bytes()[:buf.Len()-3]
	r, err := NewReader(bytes.NewReader(truncated))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if _, err := r.ReadRecord(); !gpuerrors.IsKind(err, gpuerrors.KindSnapshot) {
		t.Fatalf("truncated record = %v, want snapshot error", err)
	}
}
