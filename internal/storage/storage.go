// Package storage lays out the per-run artifact directory. Nothing here
// outlives the run: one directory per video, holding the rendered documents,
// the raw model response, and the extracted frames.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	markdownName = "sop.md"
	pdfName      = "sop.pdf"
	responseName = "response.txt"
	runInfoName  = "run.json"
	framesDir    = "frames"
)

// Store manages one run's artifacts under outputDir/<videoName>/.
type Store struct {
	runDir string
}

// RunInfo is the run metadata written next to the artifacts.
type RunInfo struct {
	ID           string        `json:"id"`
	Model        string        `json:"model"`
	VideoPath    string        `json:"video_path"`
	VideoLength  time.Duration `json:"video_length_ns"`
	Frames       int           `json:"frames"`
	Started      time.Time     `json:"started"`
	Finished     time.Time     `json:"finished"`
	RenderIssues []string      `json:"render_issues,omitempty"`
}

// NewStore creates the run directory (and its frames subdirectory) if
// needed.
func NewStore(outputDir, videoName string) (*Store, error) {
	runDir := filepath.Join(outputDir, videoName)
	if err := os.MkdirAll(filepath.Join(runDir, framesDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory %q: %v", runDir, err)
	}
	return &Store{runDir: runDir}, nil
}

// Dir returns the run directory.
func (s *Store) Dir() string { return s.runDir }

// FramesDir returns the directory frames and snapshots are decoded into.
func (s *Store) FramesDir() string { return filepath.Join(s.runDir, framesDir) }

// PDFPath returns where the PDF artifact belongs.
func (s *Store) PDFPath() string { return filepath.Join(s.runDir, pdfName) }

// MarkdownPath returns where the Markdown artifact belongs.
func (s *Store) MarkdownPath() string { return filepath.Join(s.runDir, markdownName) }

// SaveRawResponse keeps the untouched model output for inspection.
func (s *Store) SaveRawResponse(text string) error {
	path := filepath.Join(s.runDir, responseName)
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write raw response: %v", err)
	}
	return nil
}

// SaveMarkdown writes the rendered Markdown and returns its path.
func (s *Store) SaveMarkdown(md string) (string, error) {
	path := s.MarkdownPath()
	if err := os.WriteFile(path, []byte(md), 0644); err != nil {
		return "", fmt.Errorf("failed to write markdown: %v", err)
	}
	return path, nil
}

// SaveRunInfo writes the run metadata.
func (s *Store) SaveRunInfo(info RunInfo) error {
	file, err := os.Create(filepath.Join(s.runDir, runInfoName))
	if err != nil {
		return fmt.Errorf("failed to create run info file: %v", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(info); err != nil {
		return fmt.Errorf("failed to encode run info: %v", err)
	}
	return nil
}
