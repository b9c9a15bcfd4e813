package server

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var errOutsideDataDir = errors.New("path is outside the data directory")

// resolvePath maps a client supplied path onto the filesystem. With a data
// directory set, relative paths are joined to it and no path may leave it.
func (s *Server) resolvePath(p string) (string, error) {
	if p == "" {
		p = s.defaults.DataFile
	}
	if s.dataDir == "" {
		return p, nil
	}

	root, err := filepath.Abs(s.dataDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve data directory: %w", err)
	}
	target := p
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	target = filepath.Clean(target)

	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", p, errOutsideDataDir)
	}
	return target, nil
}
