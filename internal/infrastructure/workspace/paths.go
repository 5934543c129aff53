package workspace

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/0xcro3dile/localrag-agent/internal/domain/usecases"
)

var sensitiveHomeDirs = []string{
	".ssh",
	".gnupg",
	".aws",
	".config",
	filepath.Join(".local", "share", "keyrings"),
	filepath.Join("Library", "Keychains"),
}

func sensitiveDirs() []string {
	dirs := []string{"/etc", "/private/etc"}
	if home, err := os.UserHomeDir(); err == nil {
		for _, d := range sensitiveHomeDirs {
			dirs = append(dirs, filepath.Join(home, d))
		}
	}
	return dirs
}

// IsSensitive reports whether path is, or lies inside, a directory holding
// credentials or system configuration.
func IsSensitive(path string) bool {
	path = filepath.Clean(path)
	for _, d := range sensitiveDirs() {
		if path == d || strings.HasPrefix(path, d+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// DirectoryID derives the id of the directory at path from its base name.
func DirectoryID(path string) string {
	name := filepath.Base(filepath.Clean(path))
	if name == string(filepath.Separator) || name == "." || name == "" {
		return "root"
	}
	return strings.NewReplacer(" ", "_", "/", "_", "\\", "_").Replace(name)
}

// Stats describes the files of an indexed directory.
type Stats struct {
	FileCount    int              `json:"fileCount"`
	TotalSize    int64            `json:"totalSize"`
	Types        map[string]int   `json:"types"`
	SizeByType   map[string]int64 `json:"sizeByType"`
	LargestFiles []FileSize       `json:"largestFiles"`
	AvgFileSize  int64            `json:"avgFileSize"`
	Dirs         DirStats         `json:"dirs"`
}

type FileSize struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type DirStats struct {
	Count    int `json:"count"`
	MaxDepth int `json:"maxDepth"`
}

const largestFilesShown = 3

// CollectStats walks root the way the indexer does and aggregates file
// counts and sizes.
func CollectStats(root string) (*Stats, error) {
	st := &Stats{Types: map[string]int{}, SizeByType: map[string]int64{}}
	var files []FileSize
	baseDepth := strings.Count(filepath.Clean(root), string(filepath.Separator))

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if path == root {
			return nil
		}
		if usecases.SkipEntry(d) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			st.Dirs.Count++
			st.Dirs.MaxDepth = max(st.Dirs.MaxDepth, strings.Count(path, string(filepath.Separator))-baseDepth)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		size := info.Size()
		st.FileCount++
		st.TotalSize += size
		if ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")); ext != "" {
			st.Types[ext]++
			st.SizeByType[ext] += size
		}
		files = append(files, FileSize{Name: d.Name(), Size: size})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(files, func(i, j int) bool { return files[i].Size > files[j].Size })
	st.LargestFiles = files[:min(len(files), largestFilesShown)]
	if st.FileCount > 0 {
		st.AvgFileSize = st.TotalSize / int64(st.FileCount)
	}
	return st, nil
}

// resolveSources maps source names returned by the agent to absolute paths
// under root. Names that match no file are kept as they are.
func resolveSources(root string, sources []string) []string {
	if len(sources) == 0 {
		return []string{}
	}
	var byName map[string]string
	out := make([]string, 0, len(sources))
	seen := make(map[string]bool)
	for _, s := range sources {
		resolved := s
		switch {
		case filepath.IsAbs(s):
		case fileExists(filepath.Join(root, s)):
			resolved = filepath.Join(root, s)
		default:
			if byName == nil {
				byName = indexNames(root)
			}
			if p, ok := byName[filepath.Base(s)]; ok {
				resolved = p
			}
		}
		if !seen[resolved] {
			seen[resolved] = true
			out = append(out, resolved)
		}
	}
	return out
}

func indexNames(root string) map[string]string {
	names := make(map[string]string)
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path != root && usecases.SkipEntry(d) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			if _, ok := names[d.Name()]; !ok {
				names[d.Name()] = path
			}
		}
		return nil
	})
	return names
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
