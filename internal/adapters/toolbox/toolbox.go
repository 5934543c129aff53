// Package toolbox answers filesystem questions about an indexed directory.
// It implements ports.FileTools and ports.FileFinder.
package toolbox

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/0xcro3dile/localrag-agent/internal/domain/command"
)

const (
	maxGrepMatches    = 20
	maxMetadataFiles  = 10
	maxDiskUsageTypes = 10
	maxTreeLines      = 400
	timeLayout        = "2006-01-02 15:04"
	noExtension       = "(no extension)"
	rootFolder        = "(root)"
)

// Toolbox runs read-only filesystem tools under root. Hidden entries and
// directories named in skip are ignored.
type Toolbox struct {
	root string
	skip map[string]bool
}

// New creates a toolbox rooted at root.
func New(root string, skip ...string) *Toolbox {
	t := &Toolbox{root: filepath.Clean(root), skip: make(map[string]bool, len(skip))}
	for _, s := range skip {
		t.skip[s] = true
	}
	return t
}

type fileEntry struct {
	path    string
	rel     string
	name    string
	ext     string // lower-cased, without the dot
	size    int64
	modTime time.Time
}

// files walks the tree. ext, when set, keeps only files with that extension.
func (t *Toolbox) files(ctx context.Context, ext string) ([]fileEntry, error) {
	var out []fileEntry
	err := filepath.WalkDir(t.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == t.root {
				return err
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == t.root {
			return nil
		}
		if t.hidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		e := fileExt(d.Name())
		if ext != "" && e != ext {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(t.root, path)
		out = append(out, fileEntry{
			path:    path,
			rel:     filepath.ToSlash(rel),
			name:    d.Name(),
			ext:     e,
			size:    info.Size(),
			modTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", t.root, err)
	}
	return out, nil
}

func (t *Toolbox) hidden(name string) bool {
	return strings.HasPrefix(name, ".") || t.skip[name]
}

// CountFiles counts files, optionally of one extension.
func (t *Toolbox) CountFiles(ctx context.Context, c command.CountFiles) (string, error) {
	files, err := t.files(ctx, c.Extension)
	if err != nil {
		return "", err
	}
	if c.Extension != "" {
		return fmt.Sprintf("Found %d .%s files.", len(files), c.Extension), nil
	}
	return fmt.Sprintf("Found %d files.", len(files)), nil
}

// ListFiles lists up to c.Limit files ordered by date, size or name.
func (t *Toolbox) ListFiles(ctx context.Context, c command.ListFiles) (string, error) {
	files, err := t.files(ctx, c.Extension)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "No matching files found.", nil
	}

	sortBy := c.SortBy
	switch sortBy {
	case command.SortBySize:
		sort.SliceStable(files, func(i, j int) bool { return files[i].size > files[j].size })
	case command.SortByName:
		sort.SliceStable(files, func(i, j int) bool {
			return strings.ToLower(files[i].name) < strings.ToLower(files[j].name)
		})
	default:
		sortBy = command.SortByDate
		sort.SliceStable(files, func(i, j int) bool { return files[i].modTime.After(files[j].modTime) })
	}

	limit := c.Limit
	if limit <= 0 {
		limit = command.DefaultListLimit
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Files (sorted by %s):", sortBy)
	for _, f := range files[:min(limit, len(files))] {
		if sortBy == command.SortBySize {
			fmt.Fprintf(&sb, "\n  - %s (%s)", f.rel, humanize.IBytes(uint64(f.size)))
		} else {
			fmt.Fprintf(&sb, "\n  - %s (modified: %s)", f.rel, f.modTime.Format(timeLayout))
		}
	}
	return sb.String(), nil
}

// GrepFiles lists files whose name contains the pattern, case-insensitively.
func (t *Toolbox) GrepFiles(ctx context.Context, c command.GrepFiles) (string, error) {
	matches, err := t.match(ctx, c.Pattern)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return fmt.Sprintf("No files matching '%s'.", c.Pattern), nil
	}

	var sb strings.Builder
	plural := "s"
	if len(matches) == 1 {
		plural = ""
	}
	fmt.Fprintf(&sb, "Found %d file%s matching '%s':", len(matches), plural, c.Pattern)
	if len(matches) > maxGrepMatches {
		sb.WriteString(" (showing first 20)")
	}
	for _, f := range matches[:min(maxGrepMatches, len(matches))] {
		fmt.Fprintf(&sb, "\n  - %s", f.rel)
	}
	return sb.String(), nil
}

// FindByName returns the paths of files whose name contains one of patterns,
// at most perPattern per pattern, in one walk of the tree.
func (t *Toolbox) FindByName(ctx context.Context, patterns []string, perPattern int) ([]string, error) {
	var wanted []string
	for _, p := range patterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			wanted = append(wanted, p)
		}
	}
	if len(wanted) == 0 {
		return nil, nil
	}
	files, err := t.files(ctx, "")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var paths []string
	for _, p := range wanted {
		n := 0
		for _, f := range files {
			if perPattern > 0 && n == perPattern {
				break
			}
			if !strings.Contains(strings.ToLower(f.name), p) {
				continue
			}
			n++
			if !seen[f.path] {
				seen[f.path] = true
				paths = append(paths, f.path)
			}
		}
	}
	return paths, nil
}

func (t *Toolbox) match(ctx context.Context, pattern string) ([]fileEntry, error) {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return nil, nil
	}
	files, err := t.files(ctx, "")
	if err != nil {
		return nil, err
	}
	matches := files[:0]
	for _, f := range files {
		if strings.Contains(strings.ToLower(f.name), pattern) {
			matches = append(matches, f)
		}
	}
	return matches, nil
}

// FileMetadata reports size and modification time of up to ten files whose
// name contains the hint.
func (t *Toolbox) FileMetadata(ctx context.Context, c command.FileMetadata) (string, error) {
	files, err := t.files(ctx, "")
	if err != nil {
		return "", err
	}
	hint := strings.ToLower(c.NameHint)
	var sb strings.Builder
	n := 0
	for _, f := range files {
		if hint != "" && !strings.Contains(strings.ToLower(f.name), hint) {
			continue
		}
		if n == 0 {
			sb.WriteString("File metadata:")
		}
		fmt.Fprintf(&sb, "\n  - %s: %s, modified %s (%s)",
			f.rel, humanize.IBytes(uint64(f.size)), f.modTime.Format(timeLayout), humanize.Time(f.modTime))
		if n++; n == maxMetadataFiles {
			break
		}
	}
	if n == 0 {
		return "No matching files found.", nil
	}
	return sb.String(), nil
}

// DirectoryTree renders the folder structure, directories first. Entries
// deeper than maxDepth levels below the root's children are not expanded.
func (t *Toolbox) DirectoryTree(ctx context.Context, c command.DirectoryTree) (string, error) {
	lines := []string{filepath.Base(t.root) + "/"}
	if err := t.tree(ctx, t.root, "", 0, c.MaxDepth, &lines); err != nil {
		return "", err
	}
	if len(lines) > maxTreeLines {
		lines = append(lines[:maxTreeLines], "... (truncated)")
	}
	return strings.Join(lines, "\n"), nil
}

func (t *Toolbox) tree(ctx context.Context, dir, prefix string, depth, maxDepth int, lines *[]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(*lines) > maxTreeLines {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if dir == t.root {
			return fmt.Errorf("reading %s: %w", dir, err)
		}
		return nil
	}

	visible := entries[:0]
	for _, e := range entries {
		if !t.hidden(e.Name()) {
			visible = append(visible, e)
		}
	}
	sort.SliceStable(visible, func(i, j int) bool {
		if visible[i].IsDir() != visible[j].IsDir() {
			return visible[i].IsDir()
		}
		return strings.ToLower(visible[i].Name()) < strings.ToLower(visible[j].Name())
	})

	for i, e := range visible {
		last := i == len(visible)-1
		connector, extension := "├── ", "│   "
		if last {
			connector, extension = "└── ", "    "
		}
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		*lines = append(*lines, prefix+connector+name)
		if e.IsDir() && depth < maxDepth {
			if err := t.tree(ctx, filepath.Join(dir, e.Name()), prefix+extension, depth+1, maxDepth, lines); err != nil {
				return err
			}
		}
	}
	return nil
}

type folderStat struct {
	name  string
	size  int64
	count int
}

// FolderStats aggregates size and file count per folder.
func (t *Toolbox) FolderStats(ctx context.Context, c command.FolderStats) (string, error) {
	files, err := t.files(ctx, c.Extension)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "No files found.", nil
	}

	byFolder := make(map[string]*folderStat)
	var totalSize int64
	for _, f := range files {
		folder := filepath.ToSlash(filepath.Dir(f.rel))
		if folder == "." {
			folder = rootFolder
		}
		s, ok := byFolder[folder]
		if !ok {
			s = &folderStat{name: folder}
			byFolder[folder] = s
		}
		s.size += f.size
		s.count++
		totalSize += f.size
	}

	ranked := make([]*folderStat, 0, len(byFolder))
	for _, s := range byFolder {
		ranked = append(ranked, s)
	}
	sortBy := c.SortBy
	if sortBy != command.SortByCount {
		sortBy = command.SortBySize
	}
	asc := c.Order == command.OrderAsc
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		var ka, kb int64 = a.size, b.size
		if sortBy == command.SortByCount {
			ka, kb = int64(a.count), int64(b.count)
		}
		if ka != kb {
			if asc {
				return ka < kb
			}
			return ka > kb
		}
		return a.name < b.name
	})

	limit := c.Limit
	if limit <= 0 {
		limit = command.DefaultFolderLimit
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Folder sizes (sorted by %s):", sortBy)
	for _, s := range ranked[:min(limit, len(ranked))] {
		fmt.Fprintf(&sb, "\n  %s/: %s, %d files", s.name, humanize.IBytes(uint64(s.size)), s.count)
	}
	fmt.Fprintf(&sb, "\nTotal: %s across %d files", humanize.IBytes(uint64(totalSize)), len(files))
	return sb.String(), nil
}

// DiskUsage summarizes total usage and the ten largest file types.
func (t *Toolbox) DiskUsage(ctx context.Context) (string, error) {
	files, err := t.files(ctx, "")
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "No files found.", nil
	}

	byExt := make(map[string]*folderStat)
	var total int64
	for _, f := range files {
		key := noExtension
		if f.ext != "" {
			key = "." + f.ext
		}
		s, ok := byExt[key]
		if !ok {
			s = &folderStat{name: key}
			byExt[key] = s
		}
		s.size += f.size
		s.count++
		total += f.size
	}
	ranked := make([]*folderStat, 0, len(byExt))
	for _, s := range byExt {
		ranked = append(ranked, s)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].size != ranked[j].size {
			return ranked[i].size > ranked[j].size
		}
		return ranked[i].name < ranked[j].name
	})

	var sb strings.Builder
	sb.WriteString("Disk usage summary:")
	fmt.Fprintf(&sb, "\n  Total: %s across %s files", humanize.IBytes(uint64(total)), humanize.Comma(int64(len(files))))
	fmt.Fprintf(&sb, "\n  Average file size: %s", humanize.IBytes(uint64(total/int64(len(files)))))
	sb.WriteString("\n  By type:")
	for _, s := range ranked[:min(maxDiskUsageTypes, len(ranked))] {
		fmt.Fprintf(&sb, "\n    %s: %s (%d files)", s.name, humanize.IBytes(uint64(s.size)), s.count)
	}
	return sb.String(), nil
}

func fileExt(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}
