package egress

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/FerroO2000/attimo"
	"github.com/FerroO2000/attimo/connector"
	"github.com/stretchr/testify/assert"
)

func Test_SinkStage(t *testing.T) {
	assert := assert.New(t)

	conn := connector.NewLatest[attimo.Reading[int]]()

	delivered := make(chan attimo.Reading[int], 1)
	stage := NewSinkStage(conn, func(reading attimo.Reading[int]) {
		delivered <- reading
	})

	assert.NoError(stage.Init(t.Context()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		stage.Run(t.Context())
	}()

	readingCount := 32
	for i := range readingCount {
		assert.NoError(conn.Write(attimo.NewReading(i, uint64(i+1))))

		reading := <-delivered
		assert.Equal(i, reading.Value)
		assert.Equal(uint64(i+1), reading.Seq)
	}

	conn.Close()
	<-done

	stage.Close()
}

func Test_SinkStageLatestWins(t *testing.T) {
	assert := assert.New(t)

	conn := connector.NewLatest[attimo.Reading[int]]()

	// Publish a burst before the stage starts consuming; only the
	// freshest reading must be delivered.
	for i := range 100 {
		assert.NoError(conn.Write(attimo.NewReading(i, uint64(i+1))))
	}

	delivered := make(chan attimo.Reading[int], 1)
	stage := NewSinkStage(conn, func(reading attimo.Reading[int]) {
		delivered <- reading
	})

	assert.NoError(stage.Init(t.Context()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		stage.Run(t.Context())
	}()

	reading := <-delivered
	assert.Equal(99, reading.Value)
	assert.Equal(uint64(100), reading.Seq)

	conn.Close()
	<-done

	stage.Close()
}

func Test_FileStage(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "readings.txt")

	conn := connector.NewLatest[attimo.Reading[int]]()

	format := func(reading attimo.Reading[int]) []byte {
		return fmt.Appendf(nil, "%d:%d\n", reading.Seq, reading.Value)
	}

	cfg := NewFileConfig(path)
	cfg.FlushDeadline = 10 * time.Millisecond

	stage := NewFileStage(format, conn, cfg)
	assert.NoError(stage.Init(t.Context()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		stage.Run(t.Context())
	}()

	assert.NoError(conn.Write(attimo.NewReading(42, 1)))

	// Closing the connector lets the stage drain the pending
	// reading before stopping.
	conn.Close()
	<-done

	stage.Close()

	content, err := os.ReadFile(path)
	assert.NoError(err)
	assert.Equal("1:42\n", string(content))
}

func Test_FileStageConfigAnomalies(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "readings.txt")

	cfg := NewFileConfig(path)
	cfg.BufferSize = 0
	cfg.FlushDeadline = 0

	conn := connector.NewLatest[attimo.Reading[int]]()
	stage := NewFileStage(func(_ attimo.Reading[int]) []byte { return nil }, conn, cfg)

	assert.NoError(stage.Init(t.Context()))
	defer stage.Close()

	// The validator substitutes the fallbacks instead of failing
	assert.Equal(64, cfg.BufferSize)
	assert.Equal(DefaultFileConfigFlushDeadline, cfg.FlushDeadline)
}
