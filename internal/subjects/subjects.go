package subjects

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"aeo-score-service/internal/rules"
)

// NamedSubject pairs a loaded subject with its origin, so batch reports
// can be traced back to the file they came from
type NamedSubject struct {
	Name    string
	Path    string
	Subject rules.Subject
}

// ErrorRecord represents an error that occurred while loading a subject
type ErrorRecord struct {
	Path      string
	Operation string
	Error     string
	Timestamp time.Time
}

// Loader reads subject documents from disk
type Loader struct {
	maxConcurrentFiles int
}

// NewLoader creates a subject loader
func NewLoader() *Loader {
	return &Loader{
		maxConcurrentFiles: getEnvInt("CONCURRENT_SUBJECTS", 5),
	}
}

// SetConcurrency sets the number of subject files loaded in parallel
func (l *Loader) SetConcurrency(concurrency int) {
	if concurrency > 0 {
		l.maxConcurrentFiles = concurrency
	}
}

// getEnvInt gets an integer from environment variable or returns default
func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil && intVal > 0 {
			return intVal
		}
	}
	return defaultValue
}

// Load reads one subject file. The format follows the extension: .json is
// parsed as JSON, .yaml/.yml as YAML. The document must be a mapping at
// the top level; scalar or list documents cannot be addressed by dot-path.
func Load(path string) (rules.Subject, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read subject %s: %w", path, err)
	}

	var subject rules.Subject
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &subject); err != nil {
			return nil, fmt.Errorf("failed to parse subject %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &subject); err != nil {
			return nil, fmt.Errorf("failed to parse subject %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported subject format %s (want .json, .yaml or .yml)", path)
	}

	if subject == nil {
		return nil, fmt.Errorf("subject %s is not a top-level mapping", path)
	}
	return subject, nil
}

// LoadDirectory loads every subject file in a directory concurrently.
// A file that fails to load becomes an ErrorRecord; it never aborts the
// rest of the batch.
func (l *Loader) LoadDirectory(dir string) ([]NamedSubject, []ErrorRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read subject directory %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".json" || ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}

	var (
		loaded   []NamedSubject
		loadErrs []ErrorRecord
		mu       sync.Mutex
		wg       sync.WaitGroup
	)
	sem := make(chan struct{}, l.maxConcurrentFiles)

	for _, path := range paths {
		wg.Add(1)
		sem <- struct{}{}

		go func(p string) {
			defer wg.Done()
			defer func() { <-sem }()

			subject, err := Load(p)
			mu.Lock()
			if err != nil {
				loadErrs = append(loadErrs, ErrorRecord{
					Path:      p,
					Operation: "load_subject",
					Error:     err.Error(),
					Timestamp: time.Now(),
				})
			} else {
				loaded = append(loaded, NamedSubject{
					Name:    subjectName(p),
					Path:    p,
					Subject: subject,
				})
			}
			mu.Unlock()
		}(path)
	}
	wg.Wait()

	// Goroutine completion order is arbitrary, so batch output would
	// otherwise differ run to run
	sort.Slice(loaded, func(i, j int) bool { return loaded[i].Name < loaded[j].Name })
	sort.Slice(loadErrs, func(i, j int) bool { return loadErrs[i].Path < loadErrs[j].Path })

	return loaded, loadErrs, nil
}

func subjectName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// WriteErrorsToFile writes error records to a file
func WriteErrorsToFile(filename string, errors []ErrorRecord) error {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create error file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	writer.WriteString("TIMESTAMP|PATH|OPERATION|ERROR\n")
	for _, e := range errors {
		line := fmt.Sprintf("%s|%s|%s|%s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"),
			e.Path,
			e.Operation,
			e.Error)
		writer.WriteString(line)
	}

	return nil
}
