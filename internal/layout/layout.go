// Package layout knows where canister sources and build artifacts live in a
// dfx project checkout.
package layout

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// CandidExtension is the extension of Candid interface description files
const CandidExtension = ".did"

// HasExtension returns true if the file has one of the given extensions
func HasExtension(p string, exts []string) bool {
	ext := path.Ext(p)
	for _, valid := range exts {
		if ext == valid {
			return true
		}
	}
	return false
}

// IsSupportedProject reports whether the project root contains at least one
// file matching pattern (for example "*.toml" for a Cargo workspace).
func IsSupportedProject(fsys billy.Filesystem, pattern string) (bool, error) {
	matches, err := util.Glob(fsys, pattern)
	if err != nil {
		return false, fmt.Errorf("failed to match %q: %w", pattern, err)
	}
	for _, m := range matches {
		info, err := fsys.Stat(m)
		if err == nil && !info.IsDir() {
			return true, nil
		}
	}
	return false, nil
}

// CandidPath returns the path a canister's interface description is written
// to, relative to the project root: <outputDir>/<name>/<name>.did
func CandidPath(outputDir, name string) string {
	return path.Join(filepath.ToSlash(outputDir), name, name+CandidExtension)
}

// DiscoverArtifacts finds all files below dir whose extension is one of
// exts. Hidden files and directories below dir are skipped. Returned paths
// are slash-separated, prefixed with dir, in walk order (lexical within each
// directory). A missing dir yields no files.
func DiscoverArtifacts(fsys billy.Filesystem, dir string, exts []string) ([]string, error) {
	if _, err := fsys.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var files []string

	err := util.Walk(fsys, dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		// Skip hidden files and directories (e.g. .DS_Store)
		if p != dir && strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !info.IsDir() && HasExtension(p, exts) {
			files = append(files, filepath.ToSlash(p))
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return files, nil
}
