package reader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// FieldSet is one parsed record of a delimited file.
type FieldSet struct {
	Names  []string
	Values []string
	// Line is the 1-based line number the record starts on.
	Line int
}

// Get returns the value of the named field, or "" if the name is unknown.
func (f FieldSet) Get(name string) string {
	for i, n := range f.Names {
		if n == name && i < len(f.Values) {
			return f.Values[i]
		}
	}
	return ""
}

// FlatFileConfig configures a FlatFileReader.
type FlatFileConfig[T any] struct {
	// Name keys the reader state in the ExecutionContext.
	Name string
	// Path of the file, resolved in FS when FS is set.
	Path string
	FS   fs.FS
	// Delimiter defaults to ','.
	Delimiter rune
	// LinesToSkip is the number of header lines ignored at the top of the file.
	LinesToSkip int
	// FieldNames names the columns. When set, records with another field count are
	// rejected as data conversion errors.
	FieldNames []string
	// Mapper turns a field set into an item.
	Mapper func(FieldSet) (T, error)
}

// FlatFileReader reads delimited records from a file. Its position is the number of
// records consumed after the header, so a restart skips exactly the committed records.
type FlatFileReader[T any] struct {
	cfg    FlatFileConfig[T]
	file   io.ReadCloser
	csv    *csv.Reader
	pos    int
	ec     model.ExecutionContext
	opened bool
}

var _ port.ItemReader[any] = (*FlatFileReader[any])(nil)

// NewFlatFileReader creates a reader; the file is opened by Open.
func NewFlatFileReader[T any](cfg FlatFileConfig[T]) *FlatFileReader[T] {
	if cfg.Delimiter == 0 {
		cfg.Delimiter = ','
	}
	return &FlatFileReader[T]{cfg: cfg}
}

// Open opens the file, skips the header lines and fast-forwards to the resume position.
func (r *FlatFileReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	var (
		f   io.ReadCloser
		err error
	)
	if r.cfg.FS != nil {
		f, err = r.cfg.FS.Open(r.cfg.Path)
	} else {
		f, err = os.Open(r.cfg.Path)
	}
	if err != nil {
		return exception.NewSourceError(fmt.Sprintf("FlatFileReader '%s': failed to open '%s'", r.cfg.Name, r.cfg.Path), err, false, false)
	}
	r.file = f
	r.csv = csv.NewReader(f)
	r.csv.Comma = r.cfg.Delimiter
	r.csv.FieldsPerRecord = -1
	r.csv.ReuseRecord = false
	r.ec = model.NewExecutionContext()
	r.pos = 0
	r.opened = true

	for i := 0; i < r.cfg.LinesToSkip; i++ {
		if _, err := r.csv.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return exception.NewSourceError(fmt.Sprintf("FlatFileReader '%s': failed to skip header line %d", r.cfg.Name, i+1), err, false, false)
		}
	}

	resume := resumePosition(ec, r.cfg.Name)
	for r.pos < resume {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := r.csv.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return exception.NewSourceError(fmt.Sprintf("FlatFileReader '%s': failed to seek to record %d", r.cfg.Name, resume), err, false, false)
			}
		}
		r.pos++
	}
	r.ec.Put(r.cfg.Name+readCountSuffix, r.pos)
	if r.pos > 0 {
		logger.Infof("FlatFileReader '%s': resuming '%s' after %d records.", r.cfg.Name, r.cfg.Path, r.pos)
	}
	return nil
}

// Read returns the next record, io.EOF at the end of the file, or a data conversion
// error for a malformed record. A malformed record still counts as consumed.
func (r *FlatFileReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if !r.opened {
		return zero, exception.NewSourceError(fmt.Sprintf("FlatFileReader '%s' is not open", r.cfg.Name), nil, false, false)
	}
	values, err := r.csv.Read()
	if errors.Is(err, io.EOF) {
		return zero, io.EOF
	}
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			r.advance()
			return zero, conversionError(r.cfg.Name, parseErr.StartLine, err)
		}
		return zero, exception.NewSourceError(fmt.Sprintf("FlatFileReader '%s': failed to read '%s'", r.cfg.Name, r.cfg.Path), err, false, false)
	}
	r.advance()
	line, _ := r.csv.FieldPos(0)

	if n := len(r.cfg.FieldNames); n > 0 && len(values) != n {
		return zero, conversionError(r.cfg.Name, line, fmt.Errorf("expected %d fields, found %d", n, len(values)))
	}
	item, err := r.cfg.Mapper(FieldSet{Names: r.cfg.FieldNames, Values: values, Line: line})
	if err != nil {
		return zero, conversionError(r.cfg.Name, line, err)
	}
	return item, nil
}

func (r *FlatFileReader[T]) advance() {
	r.pos++
	r.ec.Put(r.cfg.Name+readCountSuffix, r.pos)
}

func conversionError(name string, line int, err error) error {
	return exception.NewSourceError(fmt.Sprintf("FlatFileReader '%s': invalid record at line %d: %v", name, line, err), exception.ErrDataConversion, false, false)
}

// Close closes the file.
func (r *FlatFileReader[T]) Close(ctx context.Context) error {
	r.opened = false
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// GetExecutionContext returns the reader state.
func (r *FlatFileReader[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	if r.ec == nil {
		return model.NewExecutionContext(), nil
	}
	return r.ec, nil
}
