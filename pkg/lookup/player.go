package lookup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrPlaybackBlocked wraps every reason a FilePlayer refused to play.
var ErrPlaybackBlocked = errors.New("playback blocked")

// FilePlayer resolves audio references against BaseDir and hands the file
// to an external command such as mpg123. With no Command it only checks the
// file exists.
type FilePlayer struct {
	BaseDir string
	Command []string
}

// Play resolves ref and runs the player command on it.
func (f *FilePlayer) Play(ctx context.Context, ref string) error {
	path, err := f.resolve(ref)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %v", ErrPlaybackBlocked, err)
	}
	if len(f.Command) == 0 {
		return nil
	}

	args := append(append([]string{}, f.Command[1:]...), path)
	cmd := exec.CommandContext(ctx, f.Command[0], args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %s: %v: %s", ErrPlaybackBlocked, f.Command[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

// resolve keeps references inside BaseDir; remote references are refused.
func (f *FilePlayer) resolve(ref string) (string, error) {
	if strings.Contains(ref, "://") {
		return "", fmt.Errorf("%w: remote audio %q", ErrPlaybackBlocked, ref)
	}
	rel := filepath.FromSlash(strings.ReplaceAll(ref, `\`, "/"))
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: absolute path %q", ErrPlaybackBlocked, ref)
	}
	clean := filepath.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes audio directory", ErrPlaybackBlocked, ref)
	}
	return filepath.Join(f.BaseDir, clean), nil
}
