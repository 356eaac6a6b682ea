package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Workspace is one job's private directory. Every intermediate file lives under it,
// so concurrent jobs never share a path.
type Workspace struct {
	Dir string
}

// NewWorkspace creates <root>/<YYYYMMDD_HHMMSS>_<8 hex>/broll.
func NewWorkspace(root string, now time.Time) (Workspace, error) {
	name := fmt.Sprintf("%s_%s", now.Format("20060102_150405"), uuid.New().String()[:8])
	ws := Workspace{Dir: filepath.Join(root, name)}

	if err := os.MkdirAll(filepath.Join(ws.Dir, "broll"), 0755); err != nil {
		return Workspace{}, fmt.Errorf("failed to create work dir: %w", err)
	}
	return ws, nil
}

func (w Workspace) AvatarPath() string      { return filepath.Join(w.Dir, "avatar.mp4") }
func (w Workspace) AvatarAudioPath() string { return filepath.Join(w.Dir, "avatar_audio.mp3") }
func (w Workspace) CompositePath() string   { return filepath.Join(w.Dir, "final_video.mp4") }
func (w Workspace) CaptionedPath() string   { return filepath.Join(w.Dir, "captioned_video.mp4") }

// SceneImagePath takes the extension of the still's actual format (".png", ".jpg", ...).
func (w Workspace) SceneImagePath(index int, ext string) string {
	return filepath.Join(w.Dir, "broll", fmt.Sprintf("scene_%03d%s", index, ext))
}

func (w Workspace) SceneVideoPath(index int) string {
	return filepath.Join(w.Dir, "broll", fmt.Sprintf("broll_%03d.mp4", index))
}
