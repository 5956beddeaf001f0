package convert

import (
	"fmt"
	"io"
	"os/exec"

	"github.com/uos-liuyang/deepin-voice-note/internal/apperr"
)

// CommandSink plays synthesized audio through an external player
// (paplay on PulseAudio desktops).
type CommandSink struct{}

// Open starts the player and returns its stdin.
func (CommandSink) Open() (io.WriteCloser, error) {
	if _, err := exec.LookPath("paplay"); err != nil {
		return nil, fmt.Errorf("convert: no audio player: %w", apperr.ErrDeviceUnavailable)
	}
	cmd := exec.Command("paplay")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("convert: player pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("convert: start player: %w: %v", apperr.ErrDeviceUnavailable, err)
	}
	return &playerStream{WriteCloser: stdin, cmd: cmd}, nil
}

type playerStream struct {
	io.WriteCloser
	cmd *exec.Cmd
}

func (s *playerStream) Close() error {
	err := s.WriteCloser.Close()
	_ = s.cmd.Wait()
	return err
}
