package extract

import (
	"fmt"

	"github.com/lu4p/cat"
)

// catText reads OpenDocument text and RTF files through lu4p/cat, which detects
// the format from the file itself.
func catText(path string, _ []byte) (string, error) {
	text, err := cat.File(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return text, nil
}
