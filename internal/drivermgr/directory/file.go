package directory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/autopeer-io/drivermgr/internal/drivermgr/core"
	"github.com/autopeer-io/drivermgr/pkg/log"
)

// File reads the vehicle directory from a local document on every call.
type File struct {
	path     string
	logger   log.Logger
	onChange func(fsnotify.Event)
}

var _ core.Directory = (*File)(nil)

// FileOption configures a File.
type FileOption func(*File)

// WithChangeHook is called for every change Watch observes.
func WithChangeHook(fn func(fsnotify.Event)) FileOption {
	return func(f *File) { f.onChange = fn }
}

func NewFile(path string, opts ...FileOption) *File {
	f := &File{path: path, logger: log.WithValues("directory", path)}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Path returns the document path.
func (f *File) Path() string { return f.path }

func (f *File) Vehicles(context.Context) ([]core.VehicleDescriptor, error) {
	doc, err := f.read()
	if err != nil {
		return nil, err
	}
	return doc.Descriptors()
}

func (f *File) read() (*Document, error) {
	r, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open vehicle directory: %w", err)
	}
	defer r.Close()
	return Parse(r, FormatOf(f.path))
}

// Watch warns whenever the document changes until ctx ends. Changes are not applied
// to an initialised entry pool.
func (f *File) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer w.Close()

	// Watch the parent so that atomic replaces (rename over the file) are seen.
	target := filepath.Clean(f.path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			f.logger.Warn("Vehicle directory changed; restart to apply", "op", event.Op.String())
			if f.onChange != nil {
				f.onChange(event)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			f.logger.Error(err, "File watcher error")
		}
	}
}

// FilePositions lists the positions of a local document. The file is read on every call.
type FilePositions struct {
	file *File
}

var _ core.PositionSource = (*FilePositions)(nil)

func NewFilePositions(path string) *FilePositions {
	return &FilePositions{file: NewFile(path)}
}

func (p *FilePositions) Positions(context.Context) ([]string, error) {
	doc, err := p.file.read()
	if err != nil {
		return nil, err
	}
	return doc.Positions, nil
}
