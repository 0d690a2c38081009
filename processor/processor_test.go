package processor

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/FerroO2000/attimo"
	"github.com/FerroO2000/attimo/connector"
	"github.com/stretchr/testify/assert"
)

func Test_TransformStage(t *testing.T) {
	assert := assert.New(t)

	inConn := connector.NewLatest[attimo.Reading[int]]()
	outConn := connector.NewLatest[attimo.Reading[string]]()

	transform := func(_ context.Context, value int) (string, error) {
		return strconv.Itoa(value), nil
	}

	stage := NewTransformStage(transform, inConn, outConn, NewTransformConfig())
	assert.NoError(stage.Init(t.Context()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		stage.Run(t.Context())
	}()

	for i := range 16 {
		assert.NoError(inConn.Write(attimo.NewReading(i, uint64(i+1))))

		reading, err := outConn.Read(t.Context())
		assert.NoError(err)
		assert.Equal(strconv.Itoa(i), reading.Value)
		assert.Equal(uint64(i+1), reading.Seq)
	}

	inConn.Close()
	<-done

	stage.Close()
}

func Test_FilterStage(t *testing.T) {
	assert := assert.New(t)

	inConn := connector.NewLatest[attimo.Reading[int]]()
	outConn := connector.NewLatest[attimo.Reading[int]]()

	even := func(reading attimo.Reading[int]) bool {
		return reading.Value%2 == 0
	}

	stage := NewFilterStage(even, inConn, outConn, NewFilterConfig())
	assert.NoError(stage.Init(t.Context()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		stage.Run(t.Context())
	}()

	assert.NoError(inConn.Write(attimo.NewReading(2, 1)))

	reading, err := outConn.Read(t.Context())
	assert.NoError(err)
	assert.Equal(2, reading.Value)

	// An odd value must be dropped
	assert.NoError(inConn.Write(attimo.NewReading(3, 2)))

	readCtx, cancelRead := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancelRead()

	_, err = outConn.Read(readCtx)
	assert.ErrorIs(err, context.DeadlineExceeded)

	inConn.Close()
	<-done

	stage.Close()
}

func Test_TeeStage(t *testing.T) {
	assert := assert.New(t)

	inConn := connector.NewLatest[attimo.Reading[int]]()
	outConn1 := connector.NewLatest[attimo.Reading[int]]()
	outConn2 := connector.NewLatest[attimo.Reading[int]]()

	stage := NewTeeStage(inConn, outConn1, outConn2)
	assert.NoError(stage.Init(t.Context()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		stage.Run(t.Context())
	}()

	assert.NoError(inConn.Write(attimo.NewReading(42, 1)))

	reading1, err := outConn1.Read(t.Context())
	assert.NoError(err)
	reading2, err := outConn2.Read(t.Context())
	assert.NoError(err)

	assert.Equal(reading1, reading2)
	assert.Equal(42, reading1.Value)

	inConn.Close()
	<-done

	stage.Close()
}

func Test_TeeStageNoOutputs(t *testing.T) {
	assert := assert.New(t)

	inConn := connector.NewLatest[attimo.Reading[int]]()

	stage := NewTeeStage(inConn)
	assert.Error(stage.Init(t.Context()))
}
