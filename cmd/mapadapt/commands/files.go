package commands

import (
	"bufio"
	"fmt"
	"os"

	"github.com/ieee0824/voiceprint-go/gmm"
	"github.com/ieee0824/voiceprint-go/internal/mathutil"
	"github.com/ieee0824/voiceprint-go/internal/store"
	"github.com/ieee0824/voiceprint-go/ivector"
)

// FeaturesKind is the record kind of a feature file: one utterance of frames.
const FeaturesKind = "features"

type serializedFeatures struct {
	Frames [][]float64 `msgpack:"frames"`
}

func readFeatures(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var sf serializedFeatures
	if err := store.Read(bufio.NewReader(f), FeaturesKind, &sf); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(sf.Frames) > 0 && !mathutil.IsRectangular(sf.Frames, len(sf.Frames[0])) {
		return nil, fmt.Errorf("%s: %w: ragged frames", path, store.ErrFormat)
	}
	return sf.Frames, nil
}

// readAllFeatures concatenates the frames of every file.
func readAllFeatures(paths []string) ([][]float64, error) {
	var all [][]float64
	for _, p := range paths {
		frames, err := readFeatures(p)
		if err != nil {
			return nil, err
		}
		all = append(all, frames...)
	}
	return all, nil
}

func readMachine(path string) (*gmm.Machine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := gmm.LoadMachine(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func readStats(path string) (*gmm.Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := gmm.LoadStats(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func readIVectorMachine(path string, ubm *gmm.Machine) (*ivector.Machine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := ivector.LoadMachine(bufio.NewReader(f), ubm)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// writeFile creates path and flushes what fn writes to it.
func writeFile(path string, fn func(*bufio.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := fn(w); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
