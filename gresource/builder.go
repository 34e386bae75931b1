package gresource

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/gvdbfs/gvdb/gvdb"
)

// FileEntry is one file destined for a bundle: its virtual resource
// path, raw source bytes, the preprocessors to run, and whether to
// zlib-compress the result (spec §4.7).
type FileEntry struct {
	VirtualPath string
	Data        []byte
	Preprocess  []string
	Compressed  bool
}

// BundleBuilder composes a GVDB file whose values obey the GResource
// value schema (spec §4.6–4.7).
type BundleBuilder struct {
	bo       gvdb.ByteOrder
	dedup    bool
	entries  []FileEntry
	metadata *Metadata
}

// BundleBuilderOption configures a BundleBuilder at construction.
type BundleBuilderOption func(*BundleBuilder)

// WithByteOrder selects the output byte order. Default is
// gvdb.NativeByteOrder.
func WithByteOrder(bo gvdb.ByteOrder) BundleBuilderOption {
	return func(b *BundleBuilder) { b.bo = bo }
}

// WithContentDedup enables FileWriter's optional content-addressed
// dedup for payload bytes (see gvdb.WithContentDedup).
func WithContentDedup() BundleBuilderOption {
	return func(b *BundleBuilder) { b.dedup = true }
}

// NewBundleBuilder returns an empty builder with no entries.
func NewBundleBuilder(opts ...BundleBuilderOption) *BundleBuilder {
	b := &BundleBuilder{bo: gvdb.NativeByteOrder}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AddFile appends a single entry directly, for callers assembling a
// bundle without a Manifest or directory scan.
func (b *BundleBuilder) AddFile(entry FileEntry) {
	b.entries = append(b.entries, entry)
}

// SetMetadata attaches bundle-level metadata (see Metadata), stored
// under a reserved key alongside the file tree and recoverable via
// Bundle.Metadata.
func (b *BundleBuilder) SetMetadata(m *Metadata) {
	b.metadata = m
}

// NewBundleBuilderFromManifest reads every file a Manifest names,
// relative to baseDir, and stages them as bundle entries.
func NewBundleBuilderFromManifest(m *Manifest, baseDir string, opts ...BundleBuilderOption) (*BundleBuilder, error) {
	b := NewBundleBuilder(opts...)
	for _, g := range m.Groups {
		for _, f := range g.Files {
			data, err := os.ReadFile(filepath.Join(baseDir, filepath.FromSlash(f.Path)))
			if err != nil {
				return nil, fmt.Errorf("gresource: read %s: %w", f.Path, err)
			}
			b.entries = append(b.entries, FileEntry{
				VirtualPath: path.Join(g.Prefix, f.Alias),
				Data:        data,
				Preprocess:  f.Preprocess,
				Compressed:  f.Compressed,
			})
		}
	}
	return b, nil
}

var defaultIgnoreNames = map[string]bool{".gitignore": true, ".license": true}

// FromDirectory walks root and stages every file matching extensions
// (an empty list means "no filtering") under the virtual prefix, the
// way gsfa/tools.go's getDirSize walks a tree with filepath.Walk — here
// via filepath.WalkDir since we need file names, not just sizes.
func FromDirectory(root, prefix string, extensions []string, opts ...BundleBuilderOption) (*BundleBuilder, error) {
	b := NewBundleBuilder(opts...)
	allow := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		allow[e] = true
	}

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if defaultIgnoreNames[d.Name()] {
			return nil
		}
		if len(allow) > 0 && !allow[filepath.Ext(d.Name())] {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return fmt.Errorf("gresource: %s: %w", p, err)
		}
		if strings.HasPrefix(rel, "..") {
			return fmt.Errorf("%w: %s", ErrStripPrefix, p)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("gresource: read %s: %w", p, err)
		}
		b.entries = append(b.entries, FileEntry{
			VirtualPath: path.Join(prefix, filepath.ToSlash(rel)),
			Data:        data,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Build runs every entry's preprocessors and compression, inserts the
// resulting (uuay) values plus synthetic "as" directory listings into a
// fresh HashTableBuilder, and flushes it through FileWriter.
//
// Intermediate preprocessed payloads are staged under a uuid-named
// scratch directory the way compactindexsized.NewBuilderSized stages
// per-bucket scratch files under os.MkdirTemp, except tagged with a
// random suffix so concurrent Build calls against the same os.TempDir
// never collide. The directory is removed unconditionally on return.
func (b *BundleBuilder) Build() ([]byte, error) {
	scratch, err := os.MkdirTemp("", "gresource-"+uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("gresource: scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	root := gvdb.NewHashTableBuilder()
	children := make(map[string]map[string]bool)

	for i, entry := range b.entries {
		data := entry.Data
		for _, name := range entry.Preprocess {
			processed, err := applyPreprocessor(name, data)
			if err != nil {
				return nil, fmt.Errorf("gresource: %s: %w", entry.VirtualPath, err)
			}
			data = processed
			stagePath := filepath.Join(scratch, fmt.Sprintf("%d-%s", i, name))
			if err := os.WriteFile(stagePath, data, 0o600); err != nil {
				return nil, fmt.Errorf("gresource: stage %s: %w", entry.VirtualPath, err)
			}
		}

		value, err := EncodeFileValue(data, entry.Compressed, gvariantByteOrder(b.bo))
		if err != nil {
			return nil, fmt.Errorf("gresource: %s: %w", entry.VirtualPath, err)
		}

		vpath := normalizeVirtualPath(entry.VirtualPath)
		if err := root.InsertBytes(vpath, "(uuay)", value); err != nil {
			return nil, err
		}
		recordChild(children, vpath)
	}

	if b.metadata != nil {
		encoded, err := marshalMetadata(b.metadata)
		if err != nil {
			return nil, err
		}
		if err := root.InsertBytes(metadataKey, "ay", encoded); err != nil {
			return nil, err
		}
	}

	for dir, names := range children {
		list := make([]string, 0, len(names))
		for n := range names {
			list = append(list, n)
		}
		sort.Strings(list)
		if err := root.InsertStringArray(dir, list); err != nil {
			return nil, fmt.Errorf("gresource: directory listing %q: %w", dir, err)
		}
	}

	opts := []gvdb.FileWriterOption{gvdb.WithByteOrder(b.bo)}
	if b.dedup {
		opts = append(opts, gvdb.WithContentDedup())
	}
	return gvdb.NewFileWriter(opts...).WriteToBytes(root)
}

// normalizeVirtualPath ensures every resource key starts with exactly
// one leading slash and carries no redundant separators.
func normalizeVirtualPath(p string) string {
	return path.Clean("/" + p)
}

// normalizeDirPath is normalizeVirtualPath plus a mandatory trailing
// slash, the form directory-listing keys are stored under (spec §4.6:
// "Directory keys end in /").
func normalizeDirPath(p string) string {
	c := normalizeVirtualPath(p)
	if !strings.HasSuffix(c, "/") {
		c += "/"
	}
	return c
}

// recordChild walks up from a file's full virtual path recording it (or
// its ancestor directory) as an immediate child of every enclosing
// directory, so every level of the tree gets a complete "as" listing.
func recordChild(children map[string]map[string]bool, vpath string) {
	dir, base := splitDir(vpath)
	for {
		if children[dir] == nil {
			children[dir] = make(map[string]bool)
		}
		children[dir][base] = true
		if dir == "/" {
			return
		}
		dir, base = splitDir(strings.TrimSuffix(dir, "/"))
	}
}

func splitDir(p string) (dir, base string) {
	idx := strings.LastIndexByte(p, '/')
	if idx < 0 {
		return "/", p
	}
	return p[:idx+1], p[idx+1:]
}
