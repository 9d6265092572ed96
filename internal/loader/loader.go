// Package loader runs batch learning and training from a YAML manifest:
//
//	documents:
//	  - path: manuals/bronze.pdf
//	    name: Bronze manual
//	authentic:
//	  - path: samples/pan card.pdf
//	    type: PAN
//
// Relative paths resolve against the manifest's directory.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"docsentry/internal/authenticity"
	"docsentry/internal/extract"
	"docsentry/internal/features"
	"docsentry/internal/knowledge"
	"docsentry/internal/logger"
)

// Manifest lists knowledge documents and authentic exemplars
type Manifest struct {
	Documents []DocumentEntry  `yaml:"documents"`
	Authentic []AuthenticEntry `yaml:"authentic"`

	dir string
}

type DocumentEntry struct {
	Path string `yaml:"path"`
	Name string `yaml:"name"`
}

type AuthenticEntry struct {
	Path string `yaml:"path"`
	Type string `yaml:"type"`
}

// Summary aggregates a Run; per-entry failures never stop the batch
type Summary struct {
	Learned []string               `json:"learned"`
	Chunks  int                    `json:"chunks"`
	Trained []string               `json:"trained"`
	Failed  []authenticity.Failure `json:"failed,omitempty"`
}

// Load reads and validates a manifest file
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	m.dir = filepath.Dir(path)
	return m, nil
}

// Parse decodes manifest YAML. Unknown keys are rejected.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	for i, d := range m.Documents {
		if d.Path == "" {
			return nil, fmt.Errorf("documents[%d]: path is required", i)
		}
	}
	for i, a := range m.Authentic {
		if a.Path == "" {
			return nil, fmt.Errorf("authentic[%d]: path is required", i)
		}
		if _, err := features.ParseDocType(a.Type); err != nil {
			return nil, fmt.Errorf("authentic[%d]: %w", i, err)
		}
	}
	return &m, nil
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) || m.dir == "" {
		return p
	}
	return filepath.Join(m.dir, p)
}

// Run learns every document into kb and trains every exemplar into auth. Either
// target may be nil, in which case its section is skipped.
func Run(ctx context.Context, m *Manifest, kb *knowledge.Base, auth *authenticity.Index, ex extract.Extractor) Summary {
	ctx = logger.WithContext(ctx, logger.ComponentKey, "loader")
	var sum Summary

	if kb != nil {
		for _, d := range m.Documents {
			path := m.resolve(d.Path)
			res := kb.AddFile(ctx, ex, path, d.Name)
			if !res.OK {
				logger.Warn(ctx, "document not learned", "path", path, "message", res.Message)
				sum.Failed = append(sum.Failed, authenticity.Failure{Path: path, Error: res.Message})
				continue
			}
			name := d.Name
			if name == "" {
				name = filepath.Base(path)
			}
			sum.Learned = append(sum.Learned, name)
			sum.Chunks += res.Chunks
		}
	}

	if auth != nil {
		samples := make([]authenticity.Sample, 0, len(m.Authentic))
		for _, a := range m.Authentic {
			dt, _ := features.ParseDocType(a.Type)
			samples = append(samples, authenticity.Sample{Path: m.resolve(a.Path), DocType: dt})
		}
		batch := auth.TrainAll(ctx, samples)
		for i, s := range samples {
			if batch.Succeeded[i] {
				sum.Trained = append(sum.Trained, s.Path)
			}
		}
		sum.Failed = append(sum.Failed, batch.Failed...)
	}

	logger.Info(ctx, "manifest processed",
		"learned", len(sum.Learned), "trained", len(sum.Trained), "failed", len(sum.Failed))
	return sum
}
