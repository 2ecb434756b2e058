package vfs

import (
	"sort"
	"strings"
	"time"
)

// Default limits applied to filesystems created without explicit overrides.
const (
	DefaultMaxFiles   = 200
	DefaultMaxStorage = 5 * 1024 * 1024
	DefaultMaxDepth   = 5
	DefaultMaxPath    = 256
)

// Limits are the hard quotas enforced by a FileSystem. Every check runs
// before any mutation, so a failed operation leaves the store untouched.
type Limits struct {
	// MaxFiles is the maximum number of files the filesystem may hold
	MaxFiles int `json:"max_files"`

	// MaxStorage is the maximum total stored bytes across all files
	MaxStorage int64 `json:"max_storage"`

	// MaxDepth is the maximum number of path segments in a file path
	MaxDepth int `json:"max_depth"`

	// MaxPath is the maximum character length of a normalized file path
	MaxPath int `json:"max_path"`
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxFiles:   DefaultMaxFiles,
		MaxStorage: DefaultMaxStorage,
		MaxDepth:   DefaultMaxDepth,
		MaxPath:    DefaultMaxPath,
	}
}

// NodeKind distinguishes files from derived directories in listings.
type NodeKind string

const (
	KindDirectory NodeKind = "dir"
	KindFile      NodeKind = "file"
)

// DirEntry is one entry in a directory listing.
//
// Directories are derived from file paths, not stored, so a directory entry
// carries only its name and kind; the metadata fields are populated for
// files only.
type DirEntry struct {
	Name      string    `json:"name"`
	Kind      NodeKind  `json:"kind"`
	Ino       string    `json:"ino,omitempty"`
	Ctime     time.Time `json:"-"`
	Mtime     time.Time `json:"-"`
	Size      int64     `json:"size,omitempty"`
	Writeable bool      `json:"writeable"`
}

// FileInfo is the result of a stat.
type FileInfo struct {
	Path      string    `json:"path"`
	Kind      NodeKind  `json:"kind"`
	Ino       string    `json:"ino"`
	Ctime     time.Time `json:"-"`
	Mtime     time.Time `json:"-"`
	Size      int64     `json:"size"`
	Writeable bool      `json:"writeable"`
}

// Usage reports how much of a filesystem's quota is consumed.
type Usage struct {
	NoFiles   int   `json:"no_files"`
	BytesUsed int64 `json:"bytes_used"`
}

// fileRecord is the stored representation of one file.
//
// data is exclusively owned by the filesystem: it is copied on write and
// copied again on read, so callers can never observe or mutate the
// store-internal buffer.
type fileRecord struct {
	path  string
	ino   string
	ctime time.Time
	mtime time.Time
	data  []byte
}

// FileSystem is one quota-bounded set of files keyed by normalized path.
//
// It implements the single-store file operations; union composition and
// permission checks live in UnionView. A FileSystem performs no locking of
// its own: callers (Store, UnionView) serialize access, and the engine is
// specified as strictly sequential per tenant.
type FileSystem struct {
	name        string
	fsno        string
	limits      Limits
	idgen       IDGenerator
	files       map[string]*fileRecord
	storedBytes int64
}

// NewFileSystem creates an empty filesystem with the given identity and
// quotas.
func NewFileSystem(name, fsno string, limits Limits, idgen IDGenerator) *FileSystem {
	return &FileSystem{
		name:   name,
		fsno:   fsno,
		limits: limits,
		idgen:  idgen,
		files:  make(map[string]*fileRecord),
	}
}

// Name returns the filesystem's display name.
func (fs *FileSystem) Name() string { return fs.name }

// FSNo returns the filesystem's opaque unique identifier.
func (fs *FileSystem) FSNo() string { return fs.fsno }

// Limits returns the filesystem's quota limits.
func (fs *FileSystem) Limits() Limits { return fs.limits }

// Usage returns the filesystem's current quota consumption.
func (fs *FileSystem) Usage() Usage {
	return Usage{NoFiles: len(fs.files), BytesUsed: fs.storedBytes}
}

// StoredBytes returns the running total of stored bytes. Always equal to
// the sum of data lengths over all files.
func (fs *FileSystem) StoredBytes() int64 { return fs.storedBytes }

// uniqueIno draws a fresh ino that collides with no stored file.
func (fs *FileSystem) uniqueIno() (string, error) {
	return generateUnique(fs.idgen, func(ino string) bool {
		for _, f := range fs.files {
			if f.ino == ino {
				return true
			}
		}
		return false
	})
}

// Readdir lists the entries directly under path.
//
// Directories are derived: any stored path with a remaining suffix that
// still contains "/" collapses into a single directory entry named by its
// first segment. An empty or missing directory yields an empty list, never
// an error. The result is sorted by name, then kind on equal names.
func (fs *FileSystem) Readdir(path string) ([]DirEntry, error) {
	dir, err := NormalizeDirPath(path)
	if err != nil {
		return nil, err
	}
	result := make([]DirEntry, 0)
	seenDirs := make(map[string]bool)
	for p, f := range fs.files {
		// The trailing "/" on dir makes this an exact directory-prefix
		// match: "/a/" never matches "/ab".
		if len(p) < len(dir) || p[:len(dir)] != dir {
			continue
		}
		rest := p[len(dir):]
		if slash := strings.IndexByte(rest, '/'); slash < 0 {
			// No further "/": a file directly in this directory. Paths are
			// unique keys, so no duplicate check is needed.
			result = append(result, DirEntry{
				Name:      rest,
				Kind:      KindFile,
				Ino:       f.ino,
				Ctime:     f.ctime,
				Mtime:     f.mtime,
				Size:      int64(len(f.data)),
				Writeable: true,
			})
		} else {
			name := rest[:slash]
			if !seenDirs[name] {
				seenDirs[name] = true
				result = append(result, DirEntry{Name: name, Kind: KindDirectory})
			}
		}
	}
	SortDirEntries(result)
	return result, nil
}

// SortDirEntries orders entries by name ascending, comparing kind only on
// equal names. Union merges re-sort with the same rule so single-store and
// merged listings are ordered identically.
func SortDirEntries(entries []DirEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].Kind < entries[j].Kind
	})
}

// Stat returns the metadata of the file at path.
//
// Writeable is always true at this layer; a UnionView downgrades it when
// the file is served from a secondary or the view is read-only.
func (fs *FileSystem) Stat(path string) (*FileInfo, error) {
	path, err := NormalizeFilePath(path)
	if err != nil {
		return nil, err
	}
	f, ok := fs.files[path]
	if !ok {
		return nil, pathError(ErrNotFound, "File not found.", path)
	}
	return &FileInfo{
		Path:      path,
		Kind:      KindFile,
		Ino:       f.ino,
		Ctime:     f.ctime,
		Mtime:     f.mtime,
		Size:      int64(len(f.data)),
		Writeable: true,
	}, nil
}

// WriteFile stores data at path, creating or replacing the file.
//
// Quota checks (max_path, max_depth, then max_storage/max_files) all run
// before any state changes; a failed write leaves the filesystem exactly as
// it was.
//
// The truncate option controls identity on overwrite: with truncate the
// existing record keeps its ino and ctime and only data/mtime change;
// without it the record is replaced wholesale and a fresh ino is assigned.
// A write to a new path always creates a fresh record either way.
//
// Returns the ino of the resulting file.
func (fs *FileSystem) WriteFile(path string, data []byte, truncate bool) (string, error) {
	path, err := NormalizeFilePath(path)
	if err != nil {
		return "", err
	}
	if len(path) > fs.limits.MaxPath {
		return "", pathError(ErrQuotaExceeded, "max_path exceeded.", path)
	}
	if Depth(path) > fs.limits.MaxDepth {
		return "", pathError(ErrQuotaExceeded, "max_depth exceeded.", path)
	}

	f := fs.files[path]
	if f == nil || !truncate {
		var deltaBytes int64
		if f != nil {
			deltaBytes -= int64(len(f.data))
		}
		deltaBytes += int64(len(data))
		if deltaBytes+fs.storedBytes > fs.limits.MaxStorage {
			return "", pathError(ErrQuotaExceeded, "max_storage exceeded.", path)
		}
		if f == nil && len(fs.files)+1 > fs.limits.MaxFiles {
			return "", pathError(ErrQuotaExceeded, "max_files exceeded.", path)
		}
		ino, err := fs.uniqueIno()
		if err != nil {
			return "", err
		}
		now := time.Now()
		f = &fileRecord{
			path:  path,
			ino:   ino,
			ctime: now,
			mtime: now,
			data:  append([]byte(nil), data...),
		}
		fs.files[path] = f
		fs.storedBytes += deltaBytes
	} else {
		deltaBytes := int64(len(data)) - int64(len(f.data))
		if deltaBytes+fs.storedBytes > fs.limits.MaxStorage {
			return "", pathError(ErrQuotaExceeded, "max_storage exceeded.", path)
		}
		f.data = append([]byte(nil), data...)
		f.mtime = time.Now()
		fs.storedBytes += deltaBytes
	}
	return f.ino, nil
}

// ReadFile returns a copy of the bytes stored at path.
func (fs *FileSystem) ReadFile(path string) ([]byte, error) {
	path, err := NormalizeFilePath(path)
	if err != nil {
		return nil, err
	}
	f, ok := fs.files[path]
	if !ok {
		return nil, pathError(ErrNotFound, "File not found.", path)
	}
	return append([]byte(nil), f.data...), nil
}

// Unlink removes the file at path.
func (fs *FileSystem) Unlink(path string) error {
	path, err := NormalizeFilePath(path)
	if err != nil {
		return err
	}
	f, ok := fs.files[path]
	if !ok {
		return pathError(ErrNotFound, "File not found.", path)
	}
	delete(fs.files, path)
	fs.storedBytes -= int64(len(f.data))
	return nil
}

// Move renames the file at path to newPath.
//
// The moved record keeps its ino, ctime, and data; mtime is deliberately
// left untouched. An existing file at newPath is silently replaced and its
// bytes deducted from the running total. The new path is subject to
// max_path and max_depth like any write.
func (fs *FileSystem) Move(path, newPath string) error {
	path, err := NormalizeFilePath(path)
	if err != nil {
		return err
	}
	newPath, err = NormalizeFilePath(newPath)
	if err != nil {
		return err
	}
	if len(newPath) > fs.limits.MaxPath {
		return pathError(ErrQuotaExceeded, "max_path exceeded.", newPath)
	}
	if Depth(newPath) > fs.limits.MaxDepth {
		return pathError(ErrQuotaExceeded, "max_depth exceeded.", newPath)
	}
	f, ok := fs.files[path]
	if !ok {
		return pathError(ErrNotFound, "File not found.", path)
	}
	delete(fs.files, path)
	fs.storedBytes -= int64(len(f.data))
	if replaced, ok := fs.files[newPath]; ok {
		fs.storedBytes -= int64(len(replaced.data))
	}
	fs.files[newPath] = f
	fs.storedBytes += int64(len(f.data))
	f.path = newPath
	return nil
}
