package ipc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/justapithecus/plug/types"
)

// encodeFrame encodes a payload with length prefix.
func encodeFrame(payload []byte) []byte {
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	return buf
}

func sampleForkData() *types.ForkData {
	return &types.ForkData{
		Type:      types.ForkDataType,
		Version:   types.Version,
		Plug:      "copy",
		Args:      []any{"@dist", map[string]any{"coverageDir": "/tmp/cov"}},
		RunID:     "run-001",
		TaskName:  "compile",
		BuildFile: "/project/build.go",
		FilesDir:  "/project/src",
		FilesList: []string{"a.go", "b/c.go"},
		LogOptions: types.LogOptions{
			Level:  -2,
			Color:  true,
			Format: "console",
		},
	}
}

func TestFrameEncoder_ForkDataRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFrameEncoder(&buf).WriteMessage(sampleForkData()); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	data, err := ReadForkData(NewFrameDecoder(&buf))
	if err != nil {
		t.Fatalf("ReadForkData failed: %v", err)
	}

	if data.Plug != "copy" {
		t.Errorf("Plug = %q, want %q", data.Plug, "copy")
	}
	if data.TaskName != "compile" || data.RunID != "run-001" {
		t.Errorf("identity = %q/%q, want compile/run-001", data.TaskName, data.RunID)
	}
	if len(data.FilesList) != 2 || data.FilesList[1] != "b/c.go" {
		t.Errorf("FilesList = %v", data.FilesList)
	}
	if data.LogOptions.Level != -2 || !data.LogOptions.Color {
		t.Errorf("LogOptions = %+v", data.LogOptions)
	}
	if len(data.Args) != 2 || data.Args[0] != "@dist" {
		t.Fatalf("Args = %v", data.Args)
	}
	opts, ok := data.Args[1].(map[string]any)
	if !ok || opts["coverageDir"] != "/tmp/cov" {
		t.Errorf("Args[1] = %#v", data.Args[1])
	}
}

func TestFrameEncoder_ForkResultRoundTrip(t *testing.T) {
	dir := "/project/out"
	var buf bytes.Buffer
	enc := NewFrameEncoder(&buf)

	if err := enc.WriteMessage(&types.ForkResult{Type: types.ForkResultType, FilesDir: &dir, FilesList: []string{"x"}}); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	if err := enc.WriteMessage(&types.ForkResult{Type: types.ForkResultType, Failed: true}); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	dec := NewFrameDecoder(&buf)

	first, err := ReadForkResult(dec)
	if err != nil {
		t.Fatalf("ReadForkResult failed: %v", err)
	}
	if first.Failed || first.FilesDir == nil || *first.FilesDir != dir {
		t.Errorf("first = %+v", first)
	}

	second, err := ReadForkResult(dec)
	if err != nil {
		t.Fatalf("ReadForkResult failed: %v", err)
	}
	if !second.Failed || second.FilesDir != nil || second.FilesList != nil {
		t.Errorf("second = %+v", second)
	}

	if _, err := dec.ReadFrame(); err != io.EOF {
		t.Errorf("expected io.EOF after last frame, got: %v", err)
	}
}

func TestFrameEncoder_TerminalResultOmitsFiles(t *testing.T) {
	payload, err := msgpack.Marshal(&types.ForkResult{Type: types.ForkResultType})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := msgpack.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, exists := decoded["files_dir"]; exists {
		t.Error("files_dir should be omitted for a terminal result")
	}
}

func TestReadForkResult_WrongType(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFrameEncoder(&buf).WriteMessage(sampleForkData()); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	_, err := ReadForkResult(NewFrameDecoder(&buf))

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}
	if frameErr.Kind != FrameErrorUnexpected {
		t.Errorf("Kind = %v, want FrameErrorUnexpected", frameErr.Kind)
	}
}

func TestDecodeFrame_UnknownType(t *testing.T) {
	payload, _ := msgpack.Marshal(map[string]any{"type": "mystery"})

	_, err := DecodeFrame(payload)
	if err == nil {
		t.Fatal("expected error for unknown frame type")
	}
	if IsFatalFrameError(err) {
		t.Error("unknown frame types should not be fatal")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestFrameEncoder_WriteError(t *testing.T) {
	err := NewFrameEncoder(failingWriter{}).WriteMessage(sampleForkData())

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}
	if frameErr.Kind != FrameErrorEncode {
		t.Errorf("Kind = %v, want FrameErrorEncode", frameErr.Kind)
	}
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Error("write error should unwrap to io.ErrClosedPipe")
	}
}

func TestFrameDecoder_PartialFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFrameEncoder(&buf).WriteMessage(sampleForkData()); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	frame := buf.Bytes()

	// Keep only length prefix + half payload
	truncated := frame[:LengthPrefixSize+len(frame[LengthPrefixSize:])/2]

	decoder := NewFrameDecoder(bytes.NewReader(truncated))
	_, err := decoder.ReadFrame()

	if err == nil {
		t.Fatal("expected error for truncated frame")
	}

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}

	if frameErr.Kind != FrameErrorPartial {
		t.Errorf("Kind = %v, want FrameErrorPartial", frameErr.Kind)
	}

	if !frameErr.IsFatal() {
		t.Error("FrameErrorPartial.IsFatal() should return true")
	}
}

// TestFrameDecoder_OversizedFrame validates fatal error for frames exceeding max size.
func TestFrameDecoder_OversizedFrame(t *testing.T) {
	// Create a length prefix claiming a payload larger than MaxPayloadSize
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(MaxPayloadSize+1))

	decoder := NewFrameDecoder(&buf)
	_, err := decoder.ReadFrame()

	if err == nil {
		t.Fatal("expected error for oversized frame")
	}

	if !IsFatalFrameError(err) {
		t.Errorf("expected fatal frame error, got: %v", err)
	}

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}

	if frameErr.Kind != FrameErrorTooLarge {
		t.Errorf("Kind = %v, want FrameErrorTooLarge", frameErr.Kind)
	}

	// Verify IsFatal() directly
	if !frameErr.IsFatal() {
		t.Error("FrameErrorTooLarge.IsFatal() should return true")
	}
}

func TestFrameDecoder_EmptyStream(t *testing.T) {
	decoder := NewFrameDecoder(bytes.NewReader(nil))
	_, err := decoder.ReadFrame()

	if err != io.EOF {
		t.Errorf("expected io.EOF, got: %v", err)
	}
}

// TestFrameDecoder_TruncatedLengthPrefix validates fatal error when length prefix is incomplete.
func TestFrameDecoder_TruncatedLengthPrefix(t *testing.T) {
	// Only 2 bytes instead of 4
	partial := []byte{0x00, 0x00}

	decoder := NewFrameDecoder(bytes.NewReader(partial))
	_, err := decoder.ReadFrame()

	if err == nil {
		t.Fatal("expected error for truncated length prefix")
	}

	if !IsFatalFrameError(err) {
		t.Errorf("expected fatal frame error, got: %v", err)
	}

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}

	if frameErr.Kind != FrameErrorPartial {
		t.Errorf("Kind = %v, want FrameErrorPartial", frameErr.Kind)
	}
}

// TestFrameDecoder_MalformedMsgpack validates decode error for invalid msgpack.
// Decode errors are non-fatal (the frame was read correctly, just couldn't decode).
func TestFrameDecoder_MalformedMsgpack(t *testing.T) {
	// Valid frame length prefix but garbage msgpack payload
	garbage := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	frame := encodeFrame(garbage)

	decoder := NewFrameDecoder(bytes.NewReader(frame))
	payload, err := decoder.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}

	// Decoding should fail
	_, err = DecodeFrame(payload)
	if err == nil {
		t.Fatal("expected decode error for malformed msgpack")
	}

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}

	if frameErr.Kind != FrameErrorDecode {
		t.Errorf("Kind = %v, want FrameErrorDecode", frameErr.Kind)
	}

	// Decode errors are NOT fatal (frame was valid, content wasn't)
	if IsFatalFrameError(err) {
		t.Error("decode errors should not be fatal")
	}
}

// TestFrameError_ErrorMessage validates error message formatting.
func TestFrameError_ErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *FrameError
		contains string
	}{
		{
			name:     "partial without underlying error",
			err:      &FrameError{Kind: FrameErrorPartial, Msg: "truncated"},
			contains: "truncated",
		},
		{
			name: "partial with underlying error",
			err: &FrameError{
				Kind: FrameErrorPartial,
				Msg:  "read failed",
				Err:  io.ErrUnexpectedEOF,
			},
			contains: "unexpected EOF",
		},
		{
			name:     "oversized",
			err:      &FrameError{Kind: FrameErrorTooLarge, Msg: "payload too big"},
			contains: "too big",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			if !bytes.Contains([]byte(msg), []byte(tt.contains)) {
				t.Errorf("error message %q does not contain %q", msg, tt.contains)
			}
		})
	}
}

// TestFrameError_Unwrap validates error unwrapping.
func TestFrameError_Unwrap(t *testing.T) {
	underlying := io.ErrUnexpectedEOF
	err := &FrameError{
		Kind: FrameErrorPartial,
		Msg:  "test",
		Err:  underlying,
	}

	if !errors.Is(err, underlying) {
		t.Error("Unwrap should allow errors.Is to find underlying error")
	}
}

// TestIsFatalFrameError_NonFrameError validates IsFatalFrameError with non-FrameError.
func TestIsFatalFrameError_NonFrameError(t *testing.T) {
	regularErr := errors.New("regular error")
	if IsFatalFrameError(regularErr) {
		t.Error("regular errors should not be fatal frame errors")
	}

	if IsFatalFrameError(nil) {
		t.Error("nil should not be a fatal frame error")
	}

	if IsFatalFrameError(io.EOF) {
		t.Error("io.EOF should not be a fatal frame error")
	}
}
