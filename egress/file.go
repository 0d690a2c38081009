package egress

import (
	"bufio"
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FerroO2000/attimo"
	"github.com/FerroO2000/attimo/internal/config"
	"go.opentelemetry.io/otel/attribute"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the file egress stage configuration.
const (
	DefaultFileConfigBufferSize               = 4096
	DefaultFileConfigFlushThresholdPercentage = 0.75
	DefaultFileConfigFlushDeadline            = time.Second
)

// FileConfig structs contains the configuration for the file egress stage.
type FileConfig struct {
	// Path is the path to the file.
	Path string

	// BufferSize is the size of the buffer used to write readings to the file.
	//
	// Default: 4096
	BufferSize int

	// FlushThresholdPercentage is the percentage of the buffer size that triggers a flush.
	//
	// Default: 0.75
	FlushThresholdPercentage float64

	// FlushDeadline is the maximum time to wait before flushing the buffer.
	//
	// Default: 1s
	FlushDeadline time.Duration
}

// NewFileConfig returns the default configuration for the file egress stage.
func NewFileConfig(path string) *FileConfig {
	return &FileConfig{
		Path:                     path,
		BufferSize:               DefaultFileConfigBufferSize,
		FlushThresholdPercentage: DefaultFileConfigFlushThresholdPercentage,
		FlushDeadline:            DefaultFileConfigFlushDeadline,
	}
}

// Validate checks the configuration.
func (c *FileConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotEmpty(ac, "Path", &c.Path, "./out.txt")
	config.CheckNotLower(ac, "BufferSize", &c.BufferSize, 64)
	config.CheckNotNegative(ac, "FlushThresholdPercentage", &c.FlushThresholdPercentage, DefaultFileConfigFlushThresholdPercentage)
	config.CheckNotZero(ac, "FlushDeadline", &c.FlushDeadline, DefaultFileConfigFlushDeadline)
}

// FormatFunc renders a reading into the bytes appended to the file,
// including any record separator.
type FormatFunc[T any] func(reading attimo.Reading[T]) []byte

////////////
//  SINK  //
////////////

type fileSink[T any] struct {
	baseSink

	format FormatFunc[T]

	cfg *FileConfig

	file   *os.File
	writer *bufio.Writer

	ticker     *time.Ticker
	tickerStop chan struct{}
	tickerWg   *sync.WaitGroup
	flushMux   *sync.Mutex

	bufSizeThreshold int64
	notFlushedBytes  atomic.Int64

	// Metrics
	writtenBytes atomic.Int64
	writeErrors  atomic.Int64
	flushErrors  atomic.Int64
}

func newFileSink[T any](format FormatFunc[T], cfg *FileConfig) *fileSink[T] {
	return &fileSink[T]{
		format: format,

		cfg: cfg,

		tickerStop: make(chan struct{}),
		tickerWg:   &sync.WaitGroup{},
		flushMux:   &sync.Mutex{},
	}
}

func (fs *fileSink[T]) init(ctx context.Context) error {
	// Open the file as append only
	file, err := os.OpenFile(fs.cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	fs.file = file

	fs.writer = bufio.NewWriterSize(file, fs.cfg.BufferSize)
	fs.bufSizeThreshold = int64(float64(fs.cfg.BufferSize) * fs.cfg.FlushThresholdPercentage)

	fs.initMetrics()

	// Create the periodic flush ticker
	fs.ticker = time.NewTicker(fs.cfg.FlushDeadline)
	fs.tickerWg.Add(1)
	go fs.runTicker(ctx)

	return nil
}

func (fs *fileSink[T]) initMetrics() {
	fs.tel.NewCounter("written_bytes", func() int64 { return fs.writtenBytes.Load() })
	fs.tel.NewCounter("write_errors", func() int64 { return fs.writeErrors.Load() })
	fs.tel.NewCounter("flush_errors", func() int64 { return fs.flushErrors.Load() })
}

func (fs *fileSink[T]) runTicker(ctx context.Context) {
	defer fs.tickerWg.Done()
	defer fs.ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-fs.tickerStop:
			return

		case <-fs.ticker.C:
			if err := fs.flush(); err != nil {
				fs.tel.LogError("periodic flush failed", err, "path", fs.cfg.Path)
			}
		}
	}
}

func (fs *fileSink[T]) deliver(ctx context.Context, reading attimo.Reading[T]) error {
	_, span := fs.tel.NewTrace(ctx, "append reading to file")
	defer span.End()

	chunk := fs.format(reading)
	n, err := fs.writer.Write(chunk)
	if err != nil {
		fs.writeErrors.Add(1)
		return err
	}

	writtenBytes := int64(n)
	bytesUnflushed := fs.notFlushedBytes.Add(writtenBytes)

	span.SetAttributes(attribute.Int64("chunk_size", writtenBytes))

	// Check whether to flush the writer
	if bytesUnflushed >= fs.bufSizeThreshold {
		if err := fs.flush(); err != nil {
			return err
		}
	}

	// Update metrics
	fs.writtenBytes.Add(writtenBytes)

	return nil
}

func (fs *fileSink[T]) flush() error {
	fs.flushMux.Lock()
	defer fs.flushMux.Unlock()

	// Check if there is anything to flush
	if fs.notFlushedBytes.Load() == 0 {
		return nil
	}

	if err := fs.writer.Flush(); err != nil {
		fs.flushErrors.Add(1)
		return err
	}

	fs.notFlushedBytes.Store(0)

	return nil
}

func (fs *fileSink[T]) close(_ context.Context) error {
	// Stop the periodic flusher before the final flush
	close(fs.tickerStop)
	fs.tickerWg.Wait()

	if err := fs.flush(); err != nil {
		return err
	}

	// Sync and close the file
	if err := fs.file.Sync(); err != nil {
		fs.tel.LogError("failed to sync file", err, "path", fs.cfg.Path)
	}

	return fs.file.Close()
}

/////////////
//  STAGE  //
/////////////

// FileStage is an egress stage that appends readings to a file.
type FileStage[T any] struct {
	*stage[T, *FileConfig]
}

// NewFileStage returns a new file egress stage.
func NewFileStage[T any](format FormatFunc[T], inputConnector conn[T], cfg *FileConfig) *FileStage[T] {
	return &FileStage[T]{
		stage: newStage("file", inputConnector, newFileSink(format, cfg), cfg),
	}
}
