// Package filereader reads OTLP traces from JSONL files written by the
// OpenTelemetry Collector's file exporter and feeds them into the span store.
package filereader

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"
)

const (
	// OTLP JSON can be large, especially for batched spans with many attributes.
	jsonlBufferInitial = 1 * 1024 * 1024  // 1MB initial buffer
	jsonlBufferMax     = 10 * 1024 * 1024 // 10MB maximum line size

	// activeFileName is what the collector's file exporter writes to before
	// rotating into timestamped archives like traces-2025-12-09T13-10-56.jsonl.
	activeFileName = "traces.jsonl"
)

// SpanReceiver accepts parsed OTLP resource spans.
type SpanReceiver interface {
	ReceiveSpans(ctx context.Context, resourceSpans []*tracepb.ResourceSpans) error
}

// LoadResult counts what a file load produced.
type LoadResult struct {
	Lines   int // lines that parsed and were stored
	Skipped int // blank lines are not counted; malformed ones are
}

// LoadFile reads a whole OTLP JSONL file into receiver. Malformed lines are
// skipped and counted; I/O errors abort the load.
func LoadFile(ctx context.Context, path string, receiver SpanReceiver) (LoadResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return LoadResult{}, err
	}
	defer file.Close()

	return readLines(ctx, file, receiver)
}

// readLines parses each non-empty line of r as a TracesData message.
func readLines(ctx context.Context, r io.Reader, receiver SpanReceiver) (LoadResult, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, jsonlBufferInitial), jsonlBufferMax)

	var res LoadResult
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var data tracepb.TracesData
		if err := protojson.Unmarshal(line, &data); err != nil {
			res.Skipped++
			continue
		}
		if len(data.ResourceSpans) > 0 {
			if err := receiver.ReceiveSpans(ctx, data.ResourceSpans); err != nil {
				return res, fmt.Errorf("store spans: %w", err)
			}
		}
		res.Lines++
	}

	return res, scanner.Err()
}

// Config holds configuration for a FileSource.
type Config struct {
	// Directory holds .jsonl files directly or in a traces/ subdirectory.
	Directory string

	// ActiveOnly loads only traces.jsonl and skips rotated archives, which
	// keeps startup from replaying gigabytes of history.
	ActiveOnly bool

	Logger *zap.Logger
}

// FileSource tails a directory of OTLP JSONL trace files.
type FileSource struct {
	directory  string
	traceDir   string
	receiver   SpanReceiver
	activeOnly bool
	logger     *zap.Logger

	watcher *fsnotify.Watcher

	// read positions, so only appended data is loaded
	mu          sync.Mutex
	fileOffsets map[string]int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a FileSource for cfg.Directory.
func New(cfg Config, receiver SpanReceiver) (*FileSource, error) {
	if cfg.Directory == "" {
		return nil, fmt.Errorf("directory is required")
	}
	if receiver == nil {
		return nil, fmt.Errorf("span receiver cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	info, err := os.Stat(cfg.Directory)
	if err != nil {
		return nil, fmt.Errorf("cannot access directory %s: %w", cfg.Directory, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", cfg.Directory)
	}

	traceDir := cfg.Directory
	if sub := filepath.Join(cfg.Directory, "traces"); isDir(sub) {
		traceDir = sub
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &FileSource{
		directory:   cfg.Directory,
		traceDir:    traceDir,
		receiver:    receiver,
		activeOnly:  cfg.ActiveOnly,
		logger:      cfg.Logger.Named("filereader").With(zap.String("dir", traceDir)),
		watcher:     watcher,
		fileOffsets: make(map[string]int64),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start loads existing files and then watches for appends in the background.
// It returns once the initial load completes.
func (fs *FileSource) Start(ctx context.Context) error {
	if err := fs.watcher.Add(fs.traceDir); err != nil {
		return fmt.Errorf("watch %s: %w", fs.traceDir, err)
	}

	files, err := fs.findJSONLFiles()
	if err != nil {
		return fmt.Errorf("initial data load failed: %w", err)
	}
	for _, file := range files {
		if err := fs.loadFile(ctx, file); err != nil {
			fs.logger.Warn("error loading file", zap.String("file", file), zap.Error(err))
		}
	}

	fs.logger.Info("watching for traces", zap.Int("files", len(files)))

	fs.wg.Add(1)
	go fs.watchLoop()

	return nil
}

// Stop stops the watcher and waits for the background loop to exit.
func (fs *FileSource) Stop() {
	fs.cancel()
	fs.watcher.Close()
	fs.wg.Wait()
}

// Directory returns the configured base directory.
func (fs *FileSource) Directory() string {
	return fs.directory
}

// findJSONLFiles returns candidate files in modification order, oldest first,
// so data is loaded chronologically.
func (fs *FileSource) findJSONLFiles() ([]string, error) {
	entries, err := os.ReadDir(fs.traceDir)
	if err != nil {
		return nil, err
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	var files []fileInfo

	for _, entry := range entries {
		if entry.IsDir() || !fs.wants(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{path: filepath.Join(fs.traceDir, entry.Name()), modTime: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	result := make([]string, len(files))
	for i, f := range files {
		result[i] = f.path
	}
	return result, nil
}

func (fs *FileSource) wants(name string) bool {
	if !strings.HasSuffix(name, ".jsonl") {
		return false
	}
	return !fs.activeOnly || name == activeFileName
}

// loadFile reads path from its last known offset.
func (fs *FileSource) loadFile(ctx context.Context, path string) error {
	fs.mu.Lock()
	offset := fs.fileOffsets[path]
	fs.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	// A file shorter than our offset was truncated or replaced.
	if info, err := file.Stat(); err == nil && info.Size() < offset {
		offset = 0
	}
	if offset > 0 {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			offset = 0
		}
	}

	res, err := readLines(ctx, file, fs.receiver)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	newOffset, _ := file.Seek(0, io.SeekCurrent)
	fs.mu.Lock()
	fs.fileOffsets[path] = newOffset
	fs.mu.Unlock()

	if res.Lines > 0 || res.Skipped > 0 {
		fs.logger.Debug("loaded traces",
			zap.String("file", filepath.Base(path)),
			zap.Int("lines", res.Lines),
			zap.Int("skipped", res.Skipped))
	}
	return nil
}

func (fs *FileSource) watchLoop() {
	defer fs.wg.Done()

	for {
		select {
		case <-fs.ctx.Done():
			return

		case event, ok := <-fs.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !fs.wants(filepath.Base(event.Name)) {
				continue
			}
			if err := fs.loadFile(fs.ctx, event.Name); err != nil && fs.ctx.Err() == nil {
				fs.logger.Warn("error reading file", zap.String("file", event.Name), zap.Error(err))
			}

		case err, ok := <-fs.watcher.Errors:
			if !ok {
				return
			}
			fs.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// Stats describes a running file source.
type Stats struct {
	Directory    string   `json:"directory"`
	WatchedDirs  []string `json:"watched_dirs"`
	FilesTracked int      `json:"files_tracked"`
}

// Stats returns current statistics.
func (fs *FileSource) Stats() Stats {
	fs.mu.Lock()
	filesTracked := len(fs.fileOffsets)
	fs.mu.Unlock()

	return Stats{
		Directory:    fs.directory,
		WatchedDirs:  fs.watcher.WatchList(),
		FilesTracked: filesTracked,
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
