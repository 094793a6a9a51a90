package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/andresmejia3/faceid/internal/types"
	"github.com/andresmejia3/faceid/internal/utils" // Using the SafeCommand wrapper
)

// Request opcodes understood by python/worker.py.
const (
	OpEncode        byte = 1
	OpDetectFaces   byte = 2
	OpDetectFeature byte = 3
	OpLoadCascades  byte = 4
)

// Response status bytes.
const (
	StatusOK     byte = 0
	StatusError  byte = 1
	StatusNoFace byte = 2

	// StatusCascadeLoad reports a Haar cascade file that could not be loaded.
	StatusCascadeLoad byte = 3
)

var (
	// ErrNoFace is returned when the worker found no face to encode.
	ErrNoFace = errors.New("no face detected")
	// ErrCascadeLoad is returned when the worker could not load a cascade file.
	ErrCascadeLoad = errors.New("cascade failed to load")
)

// Config controls how the Python process is launched.
type Config struct {
	Python      string
	Script      string
	CascadeDir  string
	ReadTimeout time.Duration
}

type PythonWorker struct {
	ID          int
	Cmd         *utils.SafeCommand
	Stdin       io.WriteCloser
	DataPipe    io.ReadCloser
	ReadTimeout time.Duration
}

func NewPythonWorker(ctx context.Context, id int, cfg Config) (*PythonWorker, error) {
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	if cfg.Script == "" {
		cfg.Script = "python/worker.py"
	}

	// 1. Initialize the SafeCommand we built
	args := []string{"-u", cfg.Script}
	if cfg.CascadeDir != "" {
		args = append(args, "--cascades", cfg.CascadeDir)
	}
	py := utils.NewSafeCommandContext(ctx, cfg.Python, args...)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close() // Close read-end too!
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close() // Close write end if start fails
		r.Close() // Close read-end too!
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonWorker{
		ID:          id,
		Cmd:         py,
		Stdin:       stdin,
		DataPipe:    r,
		ReadTimeout: cfg.ReadTimeout,
	}, nil
}

// Communicate sends one request frame and reads one response frame.
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	// Protocol: [Length][Data]
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	if w.ReadTimeout <= 0 {
		return readFrame(w.DataPipe)
	}

	type reply struct {
		body []byte
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		body, err := readFrame(w.DataPipe)
		done <- reply{body, err}
	}()

	select {
	case r := <-done:
		return r.body, r.err
	case <-time.After(w.ReadTimeout):
		// A stuck interpreter never answers; kill it so the reader unblocks.
		if w.Cmd != nil && w.Cmd.Process != nil {
			w.Cmd.Process.Kill()
		}
		return nil, fmt.Errorf("worker %d timed out after %s", w.ID, w.ReadTimeout)
	}
}

func readFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err // This is where we catch the "ModuleNotFoundError" crash
	}

	respLen := binary.BigEndian.Uint32(header)
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(r, respBody)
	return respBody, err
}

// Encode asks the worker for the encoding of the first face in an encoded image.
func (w *PythonWorker) Encode(img []byte) (types.Encoding, error) {
	resp, err := w.Communicate(append([]byte{OpEncode}, img...))
	if err != nil {
		return nil, err
	}
	body, err := checkStatus(resp)
	if err != nil {
		return nil, err
	}

	rd := bytes.NewReader(body)
	var dim uint32
	if err := binary.Read(rd, binary.BigEndian, &dim); err != nil {
		return nil, fmt.Errorf("read encoding size: %w", err)
	}
	if int64(dim)*8 > int64(rd.Len()) {
		return nil, fmt.Errorf("encoding size %d exceeds payload", dim)
	}
	// float64 on the wire, so stored values match face_recognition's exactly
	raw := make([]float64, dim)
	if err := binary.Read(rd, binary.BigEndian, raw); err != nil {
		return nil, fmt.Errorf("read encoding: %w", err)
	}
	return types.Encoding(raw), nil
}

// DetectFaces runs the face cascade on a PNG-encoded grayscale frame.
func (w *PythonWorker) DetectFaces(png []byte) ([]types.Box, error) {
	return w.detect(append([]byte{OpDetectFaces}, png...))
}

// DetectFeature runs the eye, nose or mouth cascade on a PNG-encoded face region.
func (w *PythonWorker) DetectFeature(kind types.Feature, png []byte) ([]types.Box, error) {
	req := make([]byte, 0, len(png)+2)
	req = append(req, OpDetectFeature, byte(kind))
	return w.detect(append(req, png...))
}

// LoadCascades makes the worker load every cascade up front, so a missing
// model file surfaces before the first frame is examined.
func (w *PythonWorker) LoadCascades() error {
	resp, err := w.Communicate([]byte{OpLoadCascades})
	if err != nil {
		return err
	}
	_, err = checkStatus(resp)
	return err
}

func (w *PythonWorker) detect(req []byte) ([]types.Box, error) {
	resp, err := w.Communicate(req)
	if err != nil {
		return nil, err
	}
	body, err := checkStatus(resp)
	if errors.Is(err, ErrNoFace) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rd := bytes.NewReader(body)
	var n uint32
	if err := binary.Read(rd, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("read box count: %w", err)
	}
	if int64(n)*16 > int64(rd.Len()) {
		return nil, fmt.Errorf("box count %d exceeds payload", n)
	}

	boxes := make([]types.Box, n)
	for i := range boxes {
		var b [4]int32
		if err := binary.Read(rd, binary.BigEndian, &b); err != nil {
			return nil, fmt.Errorf("read box %d: %w", i, err)
		}
		boxes[i] = types.Box{X: int(b[0]), Y: int(b[1]), W: int(b[2]), H: int(b[3])}
	}
	return boxes, nil
}

// checkStatus strips the status byte and turns error responses into Go errors.
func checkStatus(resp []byte) ([]byte, error) {
	if len(resp) == 0 {
		return nil, errors.New("empty response from python worker")
	}
	switch resp[0] {
	case StatusOK:
		return resp[1:], nil
	case StatusNoFace:
		return nil, ErrNoFace
	case StatusError:
		return nil, fmt.Errorf("python worker error: %s", readMessage(resp[1:]))
	case StatusCascadeLoad:
		return nil, fmt.Errorf("%w: %s", ErrCascadeLoad, readMessage(resp[1:]))
	default:
		return nil, fmt.Errorf("unknown worker status %d", resp[0])
	}
}

// readMessage decodes a length-prefixed error message.
func readMessage(body []byte) string {
	rd := bytes.NewReader(body)
	var msgLen uint32
	if err := binary.Read(rd, binary.BigEndian, &msgLen); err != nil || msgLen > math.MaxInt32 || int(msgLen) > rd.Len() {
		return "<unreadable message>"
	}
	msg := make([]byte, msgLen)
	rd.Read(msg)
	return string(msg)
}

func (w *PythonWorker) Close() {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd != nil {
		w.Cmd.Wait()
	}
}
