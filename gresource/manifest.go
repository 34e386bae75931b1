package gresource

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"
)

// Manifest is the typed representation of a GResource XML manifest
// (spec §4.8): a list of prefix-scoped file groups.
type Manifest struct {
	Groups []ResourceGroup
}

// ResourceGroup is one <gresource prefix="..."> element.
type ResourceGroup struct {
	Prefix string
	Files  []FileSpec
}

// FileSpec is one <file> leaf: a source path, its optional virtual
// alias (defaults to Path), whether to zlib-compress it, and the
// ordered list of preprocessors to run first.
type FileSpec struct {
	Path       string
	Alias      string
	Compressed bool
	Preprocess []string
}

type xmlManifest struct {
	XMLName xml.Name   `xml:"gresources"`
	Groups  []xmlGroup `xml:"gresource"`
}

type xmlGroup struct {
	Prefix string    `xml:"prefix,attr"`
	Files  []xmlFile `xml:"file"`
}

type xmlFile struct {
	Compressed bool   `xml:"compressed,attr"`
	Preprocess string `xml:"preprocess,attr"`
	Alias      string `xml:"alias,attr"`
	Path       string `xml:",chardata"`
}

// ParseManifestFile reads and parses a manifest from path.
func ParseManifestFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gresource: read manifest: %w", err)
	}
	return ParseManifestBytes(data)
}

// ParseManifestBytes parses a manifest already in memory.
func ParseManifestBytes(data []byte) (*Manifest, error) {
	var raw xmlManifest
	if err := xml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}

	m := &Manifest{Groups: make([]ResourceGroup, 0, len(raw.Groups))}
	for _, g := range raw.Groups {
		group := ResourceGroup{Prefix: g.Prefix, Files: make([]FileSpec, 0, len(g.Files))}
		for _, f := range g.Files {
			path := strings.TrimSpace(f.Path)
			if path == "" {
				return nil, fmt.Errorf("%w: <file> with empty path in group %q", ErrSchema, g.Prefix)
			}
			alias := f.Alias
			if alias == "" {
				alias = path
			}
			var preprocess []string
			if f.Preprocess != "" {
				for _, p := range strings.Split(f.Preprocess, ",") {
					preprocess = append(preprocess, strings.TrimSpace(p))
				}
			}
			group.Files = append(group.Files, FileSpec{
				Path:       path,
				Alias:      alias,
				Compressed: f.Compressed,
				Preprocess: preprocess,
			})
		}
		m.Groups = append(m.Groups, group)
	}
	return m, nil
}
