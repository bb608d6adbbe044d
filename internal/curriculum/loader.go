package curriculum

import (
	"bytes"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed topics.yaml
var defaultTopics []byte

// LoadDefault returns the built-in multiplication roadmap.
func LoadDefault() (*Static, error) {
	topics, err := parseCatalog(defaultTopics)
	if err != nil {
		return nil, fmt.Errorf("loading default curriculum: %w", err)
	}
	return NewStatic(topics)
}

// LoadDir reads every *.yaml / *.yml file under rootDir that has a top-level
// "topics" key and merges them into one ordered catalog. Files without that
// key are skipped; a file that has it but fails validation is an error.
func LoadDir(rootDir string) (*Static, error) {
	var topics []Topic

	err := filepath.WalkDir(rootDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if !hasTopicsKey(data) {
			slog.Debug("skipping non-catalog YAML", "path", path)
			return nil
		}

		parsed, err := parseCatalog(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		topics = append(topics, parsed...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}

	catalog, err := NewStatic(topics)
	if err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}

	slog.Info("curriculum loaded", "topics", len(topics), "root", rootDir)
	return catalog, nil
}

func hasTopicsKey(data []byte) bool {
	var probe map[string]any
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return false
	}
	_, ok := probe["topics"]
	return ok
}

func parseCatalog(data []byte) ([]Topic, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	var file catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decoding topics: %w", err)
	}
	return file.Topics, nil
}
