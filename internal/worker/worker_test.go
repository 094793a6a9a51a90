package worker

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/andresmejia3/faceid/internal/types"
)

// MockCloser wraps a bytes.Buffer to satisfy io.ReadCloser and io.WriteCloser interfaces.
// This allows us to use in-memory buffers as if they were OS Pipes.
type MockCloser struct {
	*bytes.Buffer
}

func (m *MockCloser) Close() error { return nil }

// newMockWorker returns a worker whose pipe already holds the given response body.
func newMockWorker(response []byte) (*PythonWorker, *MockCloser) {
	stdinMock := &MockCloser{Buffer: new(bytes.Buffer)}
	dataPipeMock := &MockCloser{Buffer: new(bytes.Buffer)}

	// Write the length header (Big Endian uint32)
	binary.Write(dataPipeMock, binary.BigEndian, uint32(len(response)))
	// Write the body
	dataPipeMock.Write(response)

	return &PythonWorker{
		ID:       1,
		Stdin:    stdinMock,
		DataPipe: dataPipeMock,
		// Cmd is nil because we aren't testing process management, just the protocol
	}, stdinMock
}

func TestEncode(t *testing.T) {
	// Protocol: [Status:0] [Dim] [Vec]
	payload := new(bytes.Buffer)
	payload.WriteByte(StatusOK)
	binary.Write(payload, binary.BigEndian, uint32(128))
	vec := [128]float64{}
	vec[0] = 0.5 // Set one value to verify
	vec[127] = -0.09123456789012345 // needs float64 to survive
	binary.Write(payload, binary.BigEndian, vec)

	w, stdinMock := newMockWorker(payload.Bytes())

	inputImage := []byte{0xDE, 0xAD, 0xBE, 0xEF} // Fake image bytes
	got, err := w.Encode(inputImage)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// Verify Go sent the correct data TO Python: header + opcode + image
	sentData := stdinMock.Bytes()
	if len(sentData) != 4+1+len(inputImage) {
		t.Errorf("Expected %d bytes sent, got %d", 4+1+len(inputImage), len(sentData))
	}
	if sentData[4] != OpEncode {
		t.Errorf("Expected opcode %d, got %d", OpEncode, sentData[4])
	}

	if len(got) != 128 {
		t.Fatalf("Expected 128-d encoding, got %d", len(got))
	}
	// Use epsilon for float comparison
	if math.Abs(got[0]-0.5) > 1e-15 || got[127] != -0.09123456789012345 {
		t.Errorf("Unexpected encoding values %f, %f", got[0], got[127])
	}
}

func TestEncode_Truncated(t *testing.T) {
	// Claims 128 float64 values but only carries 128 float32-sized ones
	payload := new(bytes.Buffer)
	payload.WriteByte(StatusOK)
	binary.Write(payload, binary.BigEndian, uint32(128))
	payload.Write(make([]byte, 128*4))

	w, _ := newMockWorker(payload.Bytes())
	if _, err := w.Encode([]byte("img")); err == nil {
		t.Fatal("Expected error for truncated encoding")
	}
}

func TestEncode_NoFace(t *testing.T) {
	w, _ := newMockWorker([]byte{StatusNoFace})

	_, err := w.Encode([]byte("cat"))
	if !errors.Is(err, ErrNoFace) {
		t.Fatalf("Expected ErrNoFace, got %v", err)
	}
}

func TestDetectFeature(t *testing.T) {
	payload := new(bytes.Buffer)
	payload.WriteByte(StatusOK)
	binary.Write(payload, binary.BigEndian, uint32(2))
	binary.Write(payload, binary.BigEndian, [4]int32{1, 2, 3, 4})
	binary.Write(payload, binary.BigEndian, [4]int32{10, 20, 30, 40})

	w, stdinMock := newMockWorker(payload.Bytes())

	boxes, err := w.DetectFeature(types.Nose, []byte{0x89, 0x50})
	if err != nil {
		t.Fatalf("DetectFeature failed: %v", err)
	}

	sent := stdinMock.Bytes()
	if sent[4] != OpDetectFeature || sent[5] != byte(types.Nose) {
		t.Errorf("Unexpected request prefix %v", sent[4:6])
	}

	want := []types.Box{{X: 1, Y: 2, W: 3, H: 4}, {X: 10, Y: 20, W: 30, H: 40}}
	if len(boxes) != len(want) {
		t.Fatalf("Expected %d boxes, got %d", len(want), len(boxes))
	}
	for i := range want {
		if boxes[i] != want[i] {
			t.Errorf("box %d = %+v, want %+v", i, boxes[i], want[i])
		}
	}
}

func TestDetectFaces_Truncated(t *testing.T) {
	payload := new(bytes.Buffer)
	payload.WriteByte(StatusOK)
	binary.Write(payload, binary.BigEndian, uint32(5)) // claims 5 boxes, sends none

	w, _ := newMockWorker(payload.Bytes())
	if _, err := w.DetectFaces([]byte("png")); err == nil {
		t.Fatal("Expected error for truncated payload")
	}
}

func TestEncode_Error(t *testing.T) {
	// Protocol: [Status:1] [MsgLen] [Msg]
	payload := new(bytes.Buffer)
	payload.WriteByte(StatusError)

	errMsg := "Python Exception: Import Error"
	binary.Write(payload, binary.BigEndian, uint32(len(errMsg)))
	payload.WriteString(errMsg)

	w, _ := newMockWorker(payload.Bytes())

	_, err := w.Encode([]byte("frame"))
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if err.Error() != "python worker error: "+errMsg {
		t.Errorf("Expected error message '%s', got '%v'", "python worker error: "+errMsg, err)
	}
}

// blockingReader never returns, simulating a hung interpreter.
type blockingReader struct{ ch chan struct{} }

func (b *blockingReader) Read(p []byte) (int, error) { <-b.ch; return 0, io.EOF }
func (b *blockingReader) Close() error               { close(b.ch); return nil }

func TestCommunicate_Timeout(t *testing.T) {
	pipe := &blockingReader{ch: make(chan struct{})}
	defer pipe.Close()

	w := &PythonWorker{
		ID:          2,
		Stdin:       &MockCloser{Buffer: new(bytes.Buffer)},
		DataPipe:    pipe,
		ReadTimeout: 20 * time.Millisecond,
	}

	if _, err := w.Communicate([]byte("x")); err == nil {
		t.Fatal("Expected timeout error")
	}
}

func TestLoadCascades(t *testing.T) {
	w, stdinMock := newMockWorker([]byte{StatusOK})

	if err := w.LoadCascades(); err != nil {
		t.Fatalf("LoadCascades failed: %v", err)
	}
	sent := stdinMock.Bytes()
	if len(sent) != 5 || sent[4] != OpLoadCascades {
		t.Errorf("Unexpected request %v", sent)
	}
}

func TestLoadCascades_Failure(t *testing.T) {
	// Protocol: [Status:3] [MsgLen] [Msg]
	payload := new(bytes.Buffer)
	payload.WriteByte(StatusCascadeLoad)
	msg := "failed to load cascade /models/haarcascade_mcs_nose.xml"
	binary.Write(payload, binary.BigEndian, uint32(len(msg)))
	payload.WriteString(msg)

	w, _ := newMockWorker(payload.Bytes())

	err := w.LoadCascades()
	if !errors.Is(err, ErrCascadeLoad) {
		t.Fatalf("Expected ErrCascadeLoad, got %v", err)
	}
	if !strings.Contains(err.Error(), "haarcascade_mcs_nose.xml") {
		t.Errorf("Expected the cascade path in %q", err)
	}
}

func TestDetectFaces_CascadeLoad(t *testing.T) {
	// A cascade that fails lazily during detection is reported the same way
	payload := new(bytes.Buffer)
	payload.WriteByte(StatusCascadeLoad)
	binary.Write(payload, binary.BigEndian, uint32(0))

	w, _ := newMockWorker(payload.Bytes())
	if _, err := w.DetectFaces([]byte("png")); !errors.Is(err, ErrCascadeLoad) {
		t.Fatalf("Expected ErrCascadeLoad, got %v", err)
	}
}
