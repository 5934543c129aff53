// Package router maps a query to a tool command with keyword rules. It is the
// safety net used when the model produces no recognizable tool call, so it is
// total: every query yields exactly one command.
package router

import (
	"regexp"
	"strings"

	"github.com/0xcro3dile/localrag-agent/internal/domain/command"
	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
)

var extensions = map[string]string{
	"pdf": "pdf", "pdfs": "pdf",
	"txt": "txt", "text": "txt",
	"py": "py", "python": "py",
	"md": "md", "markdown": "md",
	"csv": "csv", "csvs": "csv",
	"json": "json", "xml": "xml",
	"doc": "doc", "docs": "doc", "docx": "docx",
	"xls": "xls", "xlsx": "xlsx",
	"png": "png", "pngs": "png",
	"jpg": "jpg", "jpgs": "jpg", "jpeg": "jpeg",
}

var (
	storagePhrases  = []string{"how much space", "how much storage", "how much disk", "disk usage"}
	overviewWords   = []string{"total", "usage", "overview", "summary"}
	sizeWords       = []string{"space", "biggest", "largest", "storage", "heavy", "disk usage"}
	rankingWords    = []string{"most", "least", "fewest"}
	ascendingWords  = []string{"least", "fewest"}
	fileWords       = []string{"file", "files", "document", "documents"}
	folderWords     = []string{"folder", "folders", "directory", "directories"}
	countPhrases    = []string{"how many", "number of", "count "}
	structureWords  = []string{"folder", "tree", "directory", "structure"}
	metadataPhrases = []string{"file size", "how big", "how large", "how old", "when was", "modified", "created"}

	fileNamePattern = regexp.MustCompile(`[\w-]+\.\w{2,4}`)
	quotedPattern   = regexp.MustCompile(`["']([^"']+)["']`)
	wordSplit       = regexp.MustCompile(`[^\w.-]+`)
)

var nameHintStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "was": true, "of": true, "for": true,
	"my": true, "what": true, "when": true, "how": true, "file": true, "size": true,
	"big": true, "large": true, "old": true, "modified": true, "created": true,
}

// Route returns the command for query. intent is the rewriter's
// classification and may be empty.
func Route(query string, intent entities.Intent) command.Command {
	q := strings.ToLower(strings.TrimSpace(query))
	ext := detectExtension(q)

	if containsAny(q, storagePhrases...) {
		return command.DiskUsage{}
	}

	metadata := intent == entities.IntentMetadata || containsAny(q, sizeWords...)
	ranking := containsAny(q, rankingWords...)
	if metadata || ranking {
		if containsAny(q, overviewWords...) {
			return command.DiskUsage{}
		}
		files := containsAny(q, fileWords...)
		folders := containsAny(q, folderWords...)

		if ranking && folders {
			order := command.OrderDesc
			if containsAny(q, ascendingWords...) {
				order = command.OrderAsc
			}
			return command.FolderStats{
				SortBy:    command.SortByCount,
				Limit:     command.DefaultFolderLimit,
				Extension: ext,
				Order:     order,
			}
		}
		if files && !folders {
			return command.ListFiles{Extension: ext, Limit: command.DefaultListLimit, SortBy: command.SortBySize}
		}
		return command.FolderStats{
			SortBy: command.SortBySize,
			Limit:  command.DefaultFolderLimit,
			Order:  command.OrderDesc,
		}
	}

	if (containsAny(q, countPhrases...) || intent == entities.IntentCount) && (ext != "" || containsAny(q, fileWords...)) {
		return command.CountFiles{Extension: ext}
	}

	if containsAny(q, structureWords...) {
		return command.DirectoryTree{MaxDepth: command.DefaultTreeDepth}
	}

	if containsAny(q, metadataPhrases...) {
		return command.FileMetadata{NameHint: nameHint(query)}
	}

	return command.Search{Query: strings.TrimSpace(query), TopK: command.DefaultTopK}
}

// detectExtension returns the file extension a whole word of q names.
func detectExtension(q string) string {
	for _, w := range strings.Fields(strings.Map(punctToSpace, q)) {
		if ext, ok := extensions[strings.TrimPrefix(w, ".")]; ok {
			return ext
		}
	}
	return ""
}

// nameHint guesses which file a metadata question is about: an explicit file
// name, then a quoted phrase, then the last meaningful word.
func nameHint(query string) string {
	if m := fileNamePattern.FindString(query); m != "" {
		return m
	}
	if m := quotedPattern.FindStringSubmatch(query); m != nil {
		return m[1]
	}
	var last string
	for _, w := range wordSplit.Split(strings.ToLower(query), -1) {
		w = strings.Trim(w, ".-")
		if len(w) > 2 && !nameHintStopwords[w] {
			last = w
		}
	}
	return last
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func punctToSpace(r rune) rune {
	switch r {
	case '?', '!', ',', ';', ':', '(', ')', '"', '\'':
		return ' '
	}
	return r
}
