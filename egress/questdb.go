package egress

import (
	"context"
	"iter"
	"math/big"
	"slices"
	"sync/atomic"
	"time"

	"github.com/FerroO2000/attimo"
	"github.com/FerroO2000/attimo/internal/config"
	qdb "github.com/questdb/go-questdb-client/v3"
	"go.opentelemetry.io/otel/attribute"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the QuestDB egress stage configuration.
const (
	DefaultQuestDBConfigAddress       = "localhost:9000"
	DefaultQuestDBConfigAutoFlushRows = 75_000
	DefaultQuestDBConfigRetryTimeout  = time.Second
)

// QuestDBConfig structs contains the configuration for the QuestDB egress stage.
type QuestDBConfig struct {
	// Address of the QuestDB server.
	//
	// Default: "localhost:9000"
	Address string

	// AutoFlushRows is the number of buffered rows that triggers a flush.
	//
	// Default: 75000
	AutoFlushRows int

	// RetryTimeout is the time the sender keeps retrying a failed flush.
	//
	// Default: 1s
	RetryTimeout time.Duration
}

// NewQuestDBConfig returns the default configuration for the QuestDB egress stage.
func NewQuestDBConfig() *QuestDBConfig {
	return &QuestDBConfig{
		Address:       DefaultQuestDBConfigAddress,
		AutoFlushRows: DefaultQuestDBConfigAutoFlushRows,
		RetryTimeout:  DefaultQuestDBConfigRetryTimeout,
	}
}

// Validate checks the configuration.
func (c *QuestDBConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotEmpty(ac, "Address", &c.Address, DefaultQuestDBConfigAddress)
	config.CheckNotZero(ac, "AutoFlushRows", &c.AutoFlushRows, DefaultQuestDBConfigAutoFlushRows)
	config.CheckNotNegative(ac, "RetryTimeout", &c.RetryTimeout, DefaultQuestDBConfigRetryTimeout)
}

////////////
//  ROWS  //
////////////

// QuestDBColumnType represents the type of a column.
// It does not include the symbol column since it is defined
// as a stand-alone struct in the row.
type QuestDBColumnType int

const (
	// QuestDBColumnTypeBool defines a boolean column.
	QuestDBColumnTypeBool QuestDBColumnType = iota
	// QuestDBColumnTypeInt defines an integer column.
	QuestDBColumnTypeInt
	// QuestDBColumnTypeLong defines a long integer column.
	QuestDBColumnTypeLong
	// QuestDBColumnTypeFloat defines a float column.
	QuestDBColumnTypeFloat
	// QuestDBColumnTypeString defines a string column.
	QuestDBColumnTypeString
	// QuestDBColumnTypeTimestamp defines a timestamp column.
	QuestDBColumnTypeTimestamp
)

// QuestDBColumn represents a column of a row.
type QuestDBColumn struct {
	name  string
	typ   QuestDBColumnType
	value any
}

func newQuestDBColumn(name string, typ QuestDBColumnType, value any) QuestDBColumn {
	return QuestDBColumn{
		name:  name,
		typ:   typ,
		value: value,
	}
}

// NewQuestDBBoolColumn returns a new boolean column.
func NewQuestDBBoolColumn(name string, value bool) QuestDBColumn {
	return newQuestDBColumn(name, QuestDBColumnTypeBool, value)
}

// NewQuestDBIntColumn returns a new integer column.
func NewQuestDBIntColumn(name string, value int64) QuestDBColumn {
	return newQuestDBColumn(name, QuestDBColumnTypeInt, value)
}

// NewQuestDBLongColumn returns a new long integer column.
func NewQuestDBLongColumn(name string, value *big.Int) QuestDBColumn {
	return newQuestDBColumn(name, QuestDBColumnTypeLong, value)
}

// NewQuestDBFloatColumn returns a new float column.
func NewQuestDBFloatColumn(name string, value float64) QuestDBColumn {
	return newQuestDBColumn(name, QuestDBColumnTypeFloat, value)
}

// NewQuestDBStringColumn returns a new string column.
func NewQuestDBStringColumn(name string, value string) QuestDBColumn {
	return newQuestDBColumn(name, QuestDBColumnTypeString, value)
}

// NewQuestDBTimestampColumn returns a new timestamp column.
func NewQuestDBTimestampColumn(name string, value time.Time) QuestDBColumn {
	return newQuestDBColumn(name, QuestDBColumnTypeTimestamp, value)
}

// QuestDBSymbol represents a symbol column.
// It is defined as a stand-alone struct because a symbol column
// must be inserted before any other column.
type QuestDBSymbol struct {
	name  string
	value string
}

// NewQuestDBSymbol returns a new symbol.
func NewQuestDBSymbol(name string, value string) QuestDBSymbol {
	return QuestDBSymbol{
		name:  name,
		value: value,
	}
}

// QuestDBRow represents a row to be inserted into the database.
type QuestDBRow struct {
	table   string
	symbols []QuestDBSymbol
	columns []QuestDBColumn
}

// NewQuestDBRow returns a new row.
func NewQuestDBRow(table string) *QuestDBRow {
	return &QuestDBRow{
		table: table,
	}
}

// AddSymbol adds a symbol to the row.
func (qr *QuestDBRow) AddSymbol(symbol QuestDBSymbol) {
	qr.symbols = append(qr.symbols, symbol)
}

// AddSymbols adds multiple symbols to the row.
func (qr *QuestDBRow) AddSymbols(symbols ...QuestDBSymbol) {
	if len(qr.symbols) == 0 {
		qr.symbols = symbols
		return
	}

	qr.symbols = append(qr.symbols, symbols...)
}

// AddColumn adds a column to the row.
func (qr *QuestDBRow) AddColumn(column QuestDBColumn) {
	qr.columns = append(qr.columns, column)
}

// AddColumns adds multiple columns to the row.
func (qr *QuestDBRow) AddColumns(columns ...QuestDBColumn) {
	if len(qr.columns) == 0 {
		qr.columns = columns
		return
	}

	qr.columns = append(qr.columns, columns...)
}

// MapFunc maps a reading to the rows to be inserted into the database.
type MapFunc[T any] func(reading attimo.Reading[T]) []*QuestDBRow

func iterRows(rows []*QuestDBRow) iter.Seq[*QuestDBRow] {
	return slices.Values(rows)
}

////////////
//  SINK  //
////////////

type questDBSink[T any] struct {
	baseSink

	mapRows MapFunc[T]

	cfg *QuestDBConfig

	// There is only one delivery goroutine, so a single sender
	// is enough and a sender pool would be wasted.
	sender qdb.LineSender

	// Metrics
	insertedRows atomic.Int64
}

func newQuestDBSink[T any](mapRows MapFunc[T], cfg *QuestDBConfig) *questDBSink[T] {
	return &questDBSink[T]{
		mapRows: mapRows,

		cfg: cfg,
	}
}

func (qs *questDBSink[T]) init(ctx context.Context) error {
	sender, err := qdb.NewLineSender(ctx,
		qdb.WithAddress(qs.cfg.Address),
		qdb.WithHttp(),
		qdb.WithAutoFlushRows(qs.cfg.AutoFlushRows),
		qdb.WithRetryTimeout(qs.cfg.RetryTimeout),
	)
	if err != nil {
		return err
	}
	qs.sender = sender

	qs.initMetrics()

	return nil
}

func (qs *questDBSink[T]) initMetrics() {
	qs.tel.NewCounter("inserted_rows", func() int64 { return qs.insertedRows.Load() })
}

func (qs *questDBSink[T]) deliver(ctx context.Context, reading attimo.Reading[T]) error {
	ctx, span := qs.tel.NewTrace(ctx, "deliver QuestDB rows")
	defer span.End()

	tmpInsRows := 0
	for row := range iterRows(qs.mapRows(reading)) {
		query := qs.sender.Table(row.table)

		for _, symbol := range row.symbols {
			query.Symbol(symbol.name, symbol.value)
		}

		for _, col := range row.columns {
			switch col.typ {
			case QuestDBColumnTypeBool:
				query.BoolColumn(col.name, col.value.(bool))
			case QuestDBColumnTypeInt:
				query.Int64Column(col.name, col.value.(int64))
			case QuestDBColumnTypeLong:
				query.Long256Column(col.name, col.value.(*big.Int))
			case QuestDBColumnTypeFloat:
				query.Float64Column(col.name, col.value.(float64))
			case QuestDBColumnTypeString:
				query.StringColumn(col.name, col.value.(string))
			case QuestDBColumnTypeTimestamp:
				query.TimestampColumn(col.name, col.value.(time.Time))
			}
		}

		if err := query.At(ctx, reading.Timestamp); err != nil {
			return err
		}

		tmpInsRows++
	}

	span.SetAttributes(attribute.Int64("inserted_rows", int64(tmpInsRows)))

	// Update metrics
	qs.insertedRows.Add(int64(tmpInsRows))

	return nil
}

func (qs *questDBSink[T]) close(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return qs.sender.Close(context.Background())
	default:
		return qs.sender.Close(ctx)
	}
}

/////////////
//  STAGE  //
/////////////

// QuestDBStage is an egress stage that inserts readings into QuestDB.
type QuestDBStage[T any] struct {
	*stage[T, *QuestDBConfig]
}

// NewQuestDBStage returns a new QuestDB egress stage.
func NewQuestDBStage[T any](mapRows MapFunc[T], inputConnector conn[T], cfg *QuestDBConfig) *QuestDBStage[T] {
	return &QuestDBStage[T]{
		stage: newStage("questdb", inputConnector, newQuestDBSink(mapRows, cfg), cfg),
	}
}
