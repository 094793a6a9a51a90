package cmd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/faceid/internal/frame"
	"github.com/andresmejia3/faceid/internal/gate"
	"github.com/andresmejia3/faceid/internal/utils"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const megabyte = 1024 * 1024

var (
	captureOutput      string
	captureDevice      string
	captureFormat      string
	captureFPS         int
	captureEyesAtLeast bool
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Watch the webcam and save the first frame showing one complete face",
	Long: "Streams the camera through FFmpeg and checks every frame for exactly one face with two eyes, " +
		"a nose and a mouth. The first accepted frame is saved. Type q + Enter or press Ctrl+C to give up.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runCapture(cmd.Context())
	},
}

func init() {
	captureCmd.Flags().StringVarP(&captureOutput, "output", "o", "capture.jpg", "Output image path, or a directory to save <uuid>.jpg into")
	captureCmd.Flags().StringVar(&captureDevice, "device", "", "Camera device passed to FFmpeg -i (default: /dev/video0, \"0\" on macOS)")
	captureCmd.Flags().StringVar(&captureFormat, "format", "", "FFmpeg capture format (default: v4l2, avfoundation or dshow by OS)")
	captureCmd.Flags().IntVar(&captureFPS, "fps", 0, "Camera frame rate (default from config)")
	captureCmd.Flags().BoolVar(&captureEyesAtLeast, "eyes-at-least", false, "Accept frames with at least, rather than exactly, the required eye count")
	rootCmd.AddCommand(captureCmd)
}

func runCapture(parent context.Context) error {
	outPath, err := resolveCaptureOutput(captureOutput)
	if err != nil {
		utils.ShowError("Invalid output path", err, nil)
		return err
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	w, err := startEngine(ctx)
	if err != nil {
		utils.ShowError("Failed to start AI worker", err, nil)
		return err
	}
	defer w.Close()

	req := cfg.Requirements()
	if captureEyesAtLeast {
		req.EyeRule = gate.AtLeast
	}
	g, cleanup, err := newGate(ctx, w, req)
	if err != nil {
		utils.ShowError(detectorContext("Failed to load detectors", err), err, w.Cmd())
		return err
	}
	defer cleanup()

	ffmpeg := utils.NewCameraCmd(ctx, firstNonEmpty(captureFormat, cfg.Camera.Format), cameraDevice(), firstPositive(captureFPS, cfg.Camera.FPS))
	var stderrBuf bytes.Buffer
	ffmpeg.Stderr = &stderrBuf

	ffmpegOut, err := ffmpeg.StdoutPipe()
	if err != nil {
		utils.ShowError("Failed to create FFmpeg stdout pipe", err, nil)
		return err
	}
	defer ffmpegOut.Close()

	if err := ffmpeg.Start(); err != nil {
		utils.ShowError("Failed to start FFmpeg", err, nil)
		return err
	}
	defer func() {
		cancel()
		ffmpeg.Wait()
	}()

	go watchQuit(os.Stdin, cancel)

	fmt.Fprintln(os.Stderr, "📷 Looking for a face... (q + Enter to quit)")
	last := gate.Scanning
	res, err := gate.Capture(ctx, g, newJpegSource(ffmpegOut), func(ev gate.Evaluation, err error) {
		if err != nil {
			log.Warn().Err(err).Msg("frame evaluation failed")
			return
		}
		if ev.State != last {
			log.Debug().Str("state", ev.State.String()).Str("reason", ev.Reason).Msg("gate")
			last = ev.State
		}
	})
	switch {
	case err != nil && ctx.Err() != nil:
		// killing ffmpeg on cancel may surface as an exhausted stream
		fmt.Fprintln(os.Stderr, "👋 Capture cancelled.")
		return nil
	case errors.Is(err, gate.ErrSourceExhausted):
		if stderrBuf.Len() > 0 {
			fmt.Fprintf(os.Stderr, "\nFFmpeg Logs:\n%s\n", stderrBuf.String())
		}
		utils.ShowError("Camera stream ended before a face was captured", err, nil)
		return err
	case err != nil:
		dieEngine(detectorContext("Capture failed", err), err, w)
	}

	if err := frame.Save(outPath, res.Frame); err != nil {
		utils.ShowError("Failed to save photo", err, nil)
		return err
	}
	fmt.Fprintf(os.Stderr, "📸 Face detected after %d frames!\n", res.Attempts)
	fmt.Println(outPath)
	return nil
}

// resolveCaptureOutput maps a directory (existing, or spelled with a trailing
// separator) to a fresh <uuid>.jpg inside it.
func resolveCaptureOutput(path string) (string, error) {
	if path == "" {
		return "", errors.New("output path is empty")
	}
	isDir := strings.HasSuffix(path, string(os.PathSeparator)) || strings.HasSuffix(path, "/")
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		isDir = true
	}
	if isDir {
		return filepath.Join(path, uuid.New().String()+".jpg"), nil
	}
	return path, nil
}

func cameraDevice() string {
	if d := firstNonEmpty(captureDevice, cfg.Camera.Device); d != "" {
		return d
	}
	if utils.DefaultCameraFormat() == "v4l2" {
		return "/dev/video0"
	}
	return "0"
}

// watchQuit cancels the capture when a line starting with q is read.
func watchQuit(r io.Reader, cancel context.CancelFunc) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(sc.Text())), "q") {
			cancel()
			return
		}
	}
}

// jpegSource turns an MJPEG byte stream into decoded frames.
type jpegSource struct {
	scanner *bufio.Scanner
}

func newJpegSource(r io.Reader) *jpegSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)
	return &jpegSource{scanner: scanner}
}

// Next returns the next decodable frame. Corrupt frames are dropped.
func (s *jpegSource) Next(ctx context.Context) (image.Image, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		img, err := frame.Decode(s.scanner.Bytes())
		if err != nil {
			log.Debug().Err(err).Msg("dropping undecodable frame")
			continue
		}
		return img, nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, s := range values {
		if s != "" {
			return s
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, n := range values {
		if n > 0 {
			return n
		}
	}
	return 0
}
