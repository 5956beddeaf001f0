package record

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/uos-liuyang/deepin-voice-note/internal/apperr"
	"github.com/uos-liuyang/deepin-voice-note/internal/models"
)

// CommandDetector detects capture devices backed by an external capture
// tool. parec covers both microphone and monitor (internal playback)
// sources on PulseAudio desktops; arecord is the microphone fallback.
type CommandDetector struct {
	sampleRate int
}

// NewCommandDetector creates a detector producing devices that capture at
// sampleRate Hz.
func NewCommandDetector(sampleRate int) *CommandDetector {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &CommandDetector{sampleRate: sampleRate}
}

// Detect locates a capture tool for the requested class.
func (d *CommandDetector) Detect(class models.DeviceClass) (Device, error) {
	if _, err := exec.LookPath("parec"); err == nil {
		return &commandDevice{class: class, rate: d.sampleRate, tool: "parec"}, nil
	}
	// arecord cannot tap playback streams, only microphones.
	if class == models.DeviceMicrophone {
		if _, err := exec.LookPath("arecord"); err == nil {
			return &commandDevice{class: class, rate: d.sampleRate, tool: "arecord"}, nil
		}
	}
	return nil, fmt.Errorf("record: no capture tool for %s source: %w", class, apperr.ErrDeviceUnavailable)
}

type commandDevice struct {
	class models.DeviceClass
	rate  int
	tool  string
}

func (d *commandDevice) Class() models.DeviceClass { return d.class }
func (d *commandDevice) SampleRate() int           { return d.rate }

// Capture starts the external tool and streams its stdout. The stream ends
// when ctx is cancelled and the process is reaped on Close.
func (d *commandDevice) Capture(ctx context.Context) (io.ReadCloser, error) {
	var cmd *exec.Cmd
	switch d.tool {
	case "parec":
		args := []string{"--format=s16le", "--channels=1", fmt.Sprintf("--rate=%d", d.rate)}
		if d.class == models.DeviceInternal {
			args = append(args, "--monitor-stream=0")
		}
		cmd = exec.CommandContext(ctx, "parec", args...)
	default:
		cmd = exec.CommandContext(ctx, "arecord",
			"--format=S16_LE", "--channels=1", fmt.Sprintf("--rate=%d", d.rate), "--file-type=raw", "--quiet")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("record: capture pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("record: start %s: %w: %v", d.tool, apperr.ErrDeviceUnavailable, err)
	}
	return &processStream{ReadCloser: stdout, cmd: cmd}, nil
}

// processStream reaps the capture process when the stream is closed.
type processStream struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (s *processStream) Close() error {
	err := s.ReadCloser.Close()
	_ = s.cmd.Wait()
	return err
}
