package pkg

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
)

// FindProjectRoot walks up from start until it finds a directory containing debian/
func FindProjectRoot(start string) (string, error) {
	mypath, err := filepath.Abs(start)
	if err != nil {
		return "", eris.Wrapf(err, "Failed to resolve %s", start)
	}

	for {
		debPath := filepath.Join(mypath, "debian")
		info, err := os.Stat(debPath)
		if err == nil && info.IsDir() {
			return mypath, nil
		}

		if err != nil && !eris.Is(err, os.ErrNotExist) {
			return "", eris.Wrap(err, "Error ocurred while searching for project root")
		}

		nextPath := filepath.Dir(mypath)
		if mypath == nextPath {
			break
		}
		mypath = nextPath
	}

	return "", eris.Errorf("No debian directory found in %s or any of its parents", start)
}

func PrintTask(msg string) {
	colorstring.Printf("[blue][bold]==>[default] %s\n", msg)
}

func PrintSubtask(msg string) {
	colorstring.Printf("[green][bold]  ->[reset] %s\n", msg)
}

func PrintError(msg string) {
	colorstring.Printf("[red][bold]  ->[reset] %s\n", msg)
}
