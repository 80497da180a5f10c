package audio

import (
	"fmt"
	"os"
	"path/filepath"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ArchiveWriter persists dispatched utterances as 16-bit mono WAV files for
// offline inspection.
type ArchiveWriter struct {
	dir string
}

// NewArchiveWriter creates the archive directory if needed.
func NewArchiveWriter(dir string) (*ArchiveWriter, error) {
	if dir == "" {
		return nil, fmt.Errorf("archive directory cannot be empty")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory %s: %w", dir, err)
	}

	return &ArchiveWriter{dir: dir}, nil
}

// Write stores the utterance as <dir>/<id>.wav and returns the file path.
func (a *ArchiveWriter) Write(u *Utterance) (string, error) {
	path := filepath.Join(a.dir, u.ID+".wav")

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create archive file: %w", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, u.SampleRate, 16, 1, 1)

	samples := u.Samples()
	buf := &gaudio.IntBuffer{
		Format: &gaudio.Format{
			NumChannels: 1,
			SampleRate:  u.SampleRate,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		buf.Data[i] = int(s * 32767)
	}

	if err := enc.Write(buf); err != nil {
		return "", fmt.Errorf("failed to write archive samples: %w", err)
	}

	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize archive file: %w", err)
	}

	return path, nil
}
