package quality

import (
	"bufio"
	"bytes"
	"embed"
	"io/fs"
	"strings"
)

//go:embed commonwords/*
var commonWordsFolder embed.FS

// WordData carries the result of the loading process including metadata for logging.
type WordData struct {
	Words     []string
	Languages []string
}

// WordLoader reads and parses common-word dictionaries from embedded files.
// The dictionaries feed the common-word hit ratio of the language
// plausibility metric.
type WordLoader struct {
	fs embed.FS
}

func NewWordLoader(f embed.FS) *WordLoader {
	return &WordLoader{fs: f}
}

// LoadAll scans the given directory path in the embedded FS, identifying
// .txt files as language dictionaries and parsing their contents into a
// unique list of words.
func (l *WordLoader) LoadAll(path string) (*WordData, error) {
	entries, err := fs.ReadDir(l.fs, path)
	if err != nil {
		return nil, err
	}

	var languages []string
	uniqueWords := make(map[string]struct{})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		// Track the language based on the filename (e.g., "fr.txt" -> "fr")
		lang := strings.TrimSuffix(entry.Name(), ".txt")
		languages = append(languages, lang)

		data, err := l.fs.ReadFile(path + "/" + entry.Name())
		if err != nil {
			return nil, err
		}

		// Use a scanner to handle different line endings (\n vs \r\n) correctly
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.ToLower(strings.TrimSpace(scanner.Text()))
			if line != "" {
				uniqueWords[line] = struct{}{}
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	words := make([]string, 0, len(uniqueWords))
	for w := range uniqueWords {
		words = append(words, w)
	}

	return &WordData{Words: words, Languages: languages}, nil
}
