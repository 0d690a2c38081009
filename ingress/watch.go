package ingress

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/FerroO2000/attimo"
	"github.com/FerroO2000/attimo/internal"
	"github.com/FerroO2000/attimo/internal/config"
	"github.com/fsnotify/fsnotify"
	"go.opentelemetry.io/otel/attribute"
)

//////////////
//  CONFIG  //
//////////////

// WatchConfig structs contains the configuration for the Watch stage.
type WatchConfig struct {
	// Path is the path of the watched value file.
	Path string
}

// NewWatchConfig returns the default configuration for the Watch stage.
func NewWatchConfig(path string) *WatchConfig {
	return &WatchConfig{
		Path: path,
	}
}

// Validate checks the configuration.
func (c *WatchConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotEmpty(ac, "Path", &c.Path, ".")
}

// ParseFunc parses the content of the watched file into a value.
type ParseFunc[T any] func(content []byte) (T, error)

//////////////
//  SOURCE  //
//////////////

var _ source[int] = (*watchSource[int])(nil)

type watchSource[T any] struct {
	tel *internal.Telemetry

	parse ParseFunc[T]

	path    string
	watcher *fsnotify.Watcher

	seq uint64

	// Metrics
	reloads     atomic.Int64
	parseErrors atomic.Int64
}

func newWatchSource[T any](parse ParseFunc[T]) *watchSource[T] {
	return &watchSource[T]{
		parse: parse,
	}
}

func (ws *watchSource[T]) setTelemetry(tel *internal.Telemetry) {
	ws.tel = tel
}

func (ws *watchSource[T]) init(path string) error {
	ws.path = filepath.Clean(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the parent directory: watching the file itself breaks on
	// rename/replace, which is how most tools rewrite value files.
	if err := watcher.Add(filepath.Dir(ws.path)); err != nil {
		watcher.Close()
		return err
	}

	ws.watcher = watcher

	ws.initMetrics()

	return nil
}

func (ws *watchSource[T]) initMetrics() {
	ws.tel.NewCounter("reloads", func() int64 { return ws.reloads.Load() })
	ws.tel.NewCounter("parse_errors", func() int64 { return ws.parseErrors.Load() })
}

func (ws *watchSource[T]) run(ctx context.Context, outConnector conn[T]) {
	defer ws.watcher.Close()

	// The watcher does not fire events for the current content
	ws.reload(ctx, outConnector)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-ws.watcher.Events:
			if !ok {
				return
			}

			ws.handleEvent(ctx, event, outConnector)

		case err, ok := <-ws.watcher.Errors:
			if !ok {
				return
			}

			ws.tel.LogError("watcher error", err)
		}
	}
}

func (ws *watchSource[T]) handleEvent(ctx context.Context, event fsnotify.Event, outConnector conn[T]) {
	if filepath.Clean(event.Name) != ws.path {
		return
	}

	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	ws.reload(ctx, outConnector)
}

func (ws *watchSource[T]) reload(ctx context.Context, outConnector conn[T]) {
	reading, ok := ws.handleContent(ctx)
	if !ok {
		return
	}

	if err := outConnector.Write(reading); err != nil {
		ws.tel.LogError("failed to write reading to output connector", err)
	}
}

func (ws *watchSource[T]) handleContent(ctx context.Context) (attimo.Reading[T], bool) {
	_, span := ws.tel.NewTrace(ctx, "reload watched file")
	defer span.End()

	var zero attimo.Reading[T]

	content, err := os.ReadFile(ws.path)
	if err != nil {
		ws.tel.LogError("failed to read watched file", err, "path", ws.path)
		return zero, false
	}

	span.SetAttributes(attribute.Int("content_size", len(content)))

	value, err := ws.parse(content)
	if err != nil {
		ws.tel.LogError("failed to parse watched file", err, "path", ws.path)
		ws.parseErrors.Add(1)

		return zero, false
	}

	ws.seq++

	// Update metrics
	ws.reloads.Add(1)

	return attimo.NewReading(value, ws.seq), true
}

/////////////
//  STAGE  //
/////////////

// WatchStage is an ingress stage that watches a single value file
// (a sysfs-style sensor, a PID file, a status file) and publishes a
// fresh reading every time the file changes.
type WatchStage[T any] struct {
	*stage[T, *WatchConfig]

	source *watchSource[T]
}

// NewWatchStage returns a new Watch stage.
func NewWatchStage[T any](parse ParseFunc[T], outConnector conn[T], cfg *WatchConfig) *WatchStage[T] {
	source := newWatchSource(parse)

	return &WatchStage[T]{
		stage: newStage("watch", source, outConnector, cfg),

		source: source,
	}
}

// Init initializes the stage.
func (ws *WatchStage[T]) Init(ctx context.Context) error {
	if err := ws.stage.Init(ctx); err != nil {
		return err
	}

	return ws.source.init(ws.cfg.Path)
}
