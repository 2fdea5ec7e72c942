// Package schema supplies the selectable field options of the feedback form.
package schema

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/verifyd/internal/session"
)

var (
	// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
	ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")
	// ErrInvalidOption indicates a field option without a value.
	ErrInvalidOption = errors.New("field option requires a value")
)

// Static serves a fixed option list.
type Static struct {
	options []session.FieldOption
}

// NewStatic validates options. Labels default to the value.
func NewStatic(options []session.FieldOption) (*Static, error) {
	normalized, err := normalize(options)
	if err != nil {
		return nil, err
	}
	return &Static{options: normalized}, nil
}

// FieldOptions returns a copy of the configured options.
func (s *Static) FieldOptions(context.Context) ([]session.FieldOption, error) {
	return slices.Clone(s.options), nil
}

// File serves options read from a YAML document of the form
//
//	fields:
//	  - value: email
//	    label: Email address
//
// and reloads them when the file changes. A reload that fails to parse
// keeps the previous options.
type File struct {
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	options []session.FieldOption

	watcher  *fsnotify.Watcher
	stop     chan struct{}
	stopOnce sync.Once
	reloaded chan struct{}
}

// NewFile loads path once. Call Watch to follow changes.
func NewFile(path string, logger *zap.Logger) (*File, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &File{
		path:     filepath.Clean(path),
		logger:   logger.Named("schema"),
		stop:     make(chan struct{}),
		reloaded: make(chan struct{}, 1),
	}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// FieldOptions returns the most recently loaded options.
func (f *File) FieldOptions(context.Context) ([]session.FieldOption, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.options), nil
}

// Reload re-reads the file.
func (f *File) Reload() error {
	options, err := readFile(f.path)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.options = options
	f.mu.Unlock()
	return nil
}

// Reloaded receives a value after each successful reload triggered by Watch.
func (f *File) Reloaded() <-chan struct{} {
	return f.reloaded
}

// Watch starts following the file until ctx is done or Close is called.
// The parent directory is watched so editors that replace the file by
// rename are picked up.
func (f *File) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(f.path), err)
	}
	f.watcher = watcher
	go f.processEvents(ctx)
	return nil
}

// Close stops watching.
func (f *File) Close() error {
	var err error
	f.stopOnce.Do(func() {
		close(f.stop)
		if f.watcher != nil {
			err = f.watcher.Close()
		}
	})
	return err
}

func (f *File) processEvents(ctx context.Context) {
	for {
		select {
		case <-f.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := f.Reload(); err != nil {
				f.logger.Warn("schema reload failed, keeping previous options",
					zap.String("path", f.path), zap.Error(err))
				continue
			}
			f.logger.Info("schema reloaded", zap.String("path", f.path))
			select {
			case f.reloaded <- struct{}{}:
			default:
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.Warn("schema watcher error", zap.Error(err))
		}
	}
}

type document struct {
	Fields []session.FieldOption `koanf:"fields"`
}

func readFile(path string) ([]session.FieldOption, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse schema file %s: %w", path, err)
	}
	var doc document
	if err := k.Unmarshal("", &doc); err != nil {
		return nil, fmt.Errorf("failed to decode schema file %s: %w", path, err)
	}
	return normalize(doc.Fields)
}

func normalize(options []session.FieldOption) ([]session.FieldOption, error) {
	out := make([]session.FieldOption, 0, len(options))
	seen := make(map[string]struct{}, len(options))
	for i, opt := range options {
		opt.Value = strings.TrimSpace(opt.Value)
		opt.Label = strings.TrimSpace(opt.Label)
		if opt.Value == "" {
			return nil, fmt.Errorf("%w (position %d)", ErrInvalidOption, i+1)
		}
		if _, dup := seen[opt.Value]; dup {
			return nil, fmt.Errorf("duplicate field option %q", opt.Value)
		}
		seen[opt.Value] = struct{}{}
		if opt.Label == "" {
			opt.Label = opt.Value
		}
		out = append(out, opt)
	}
	return out, nil
}

var (
	_ session.FieldOptionProvider = (*Static)(nil)
	_ session.FieldOptionProvider = (*File)(nil)
)
