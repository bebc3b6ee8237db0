package lifecycle

import (
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/ngld/mmpack/pkg/fsutil"
)

// runLog records the hooks that finished successfully so that repeated sequences skip them
type runLog struct {
	Done map[Hook]bool
}

func readRunLog(file string) (*runLog, error) {
	log := &runLog{Done: map[Hook]bool{}}

	handle, err := os.Open(file)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return log, nil
		}
		return nil, eris.Wrapf(err, "Failed to open %s", file)
	}
	defer handle.Close()

	err = gob.NewDecoder(handle).Decode(log)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to parse %s, run clean to reset it", file)
	}

	return log, nil
}

func (l *runLog) write(file string) error {
	err := fsutil.EnsureDir(filepath.Dir(file))
	if err != nil {
		return err
	}

	handle, err := os.Create(file)
	if err != nil {
		return eris.Wrapf(err, "Failed to create %s", file)
	}
	defer handle.Close()

	err = gob.NewEncoder(handle).Encode(l)
	if err != nil {
		return eris.Wrapf(err, "Failed to write %s", file)
	}

	return nil
}

func removeRunLog(file string) error {
	return fsutil.RemoveTree(file)
}
