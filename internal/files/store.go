package files

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// GetUniqueFilename returns a unique filename in the given directory.
// If the file already exists, it appends _1, _2, etc. before the extension.
// The filename is sanitized to prevent path traversal attacks.
func GetUniqueFilename(dir, name string) string {
	// Sanitize filename to prevent path traversal (e.g., "../../.bashrc")
	cleanName := filepath.Base(name)
	path := filepath.Join(dir, cleanName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}

	ext := filepath.Ext(cleanName)
	base := cleanName[:len(cleanName)-len(ext)]

	for i := 1; ; i++ {
		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, ext))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
	}
}

// SaveFile saves data to a file in the given directory, using a unique filename
// if the file already exists. Returns the final path used.
func SaveFile(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	path := GetUniqueFilename(dir, name)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return path, nil
}

// pngSignature starts every placeholder so image viewers recognize the type.
var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Screenshots stores simulated page captures as files in Dir.
type Screenshots struct {
	Dir string
	Now func() time.Time
}

// NewScreenshots creates a store rooted at dir.
func NewScreenshots(dir string) *Screenshots {
	return &Screenshots{Dir: dir, Now: time.Now}
}

// Capture writes a placeholder capture for provider/label and returns its path.
func (s *Screenshots) Capture(provider, label string) (string, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	ts := now().UTC()

	name := fmt.Sprintf("%s-%s-%s.png", sanitize(provider), sanitize(label), ts.Format("20060102T150405"))
	data := append([]byte{}, pngSignature...)
	data = append(data, fmt.Sprintf("mock capture provider=%s label=%s at=%s\n", provider, label, ts.Format(time.RFC3339))...)

	return SaveFile(s.Dir, name, data)
}

// sanitize keeps filename-safe characters only.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.' || r == '/':
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "capture"
	}
	return b.String()
}
