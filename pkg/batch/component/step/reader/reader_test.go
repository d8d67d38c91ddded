package reader_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/fstest"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/component/step/reader"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

type person struct {
	First, Last string
}

func personMapper(f reader.FieldSet) (person, error) {
	if f.Get("firstName") == "" {
		return person{}, errors.New("firstName is empty")
	}
	return person{First: f.Get("firstName"), Last: f.Get("lastName")}, nil
}

func readAll[T any](t *testing.T, r port.ItemReader[T]) ([]T, []error) {
	t.Helper()
	var items []T
	var errs []error
	for {
		item, err := r.Read(context.Background())
		if errors.Is(err, io.EOF) {
			return items, errs
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		items = append(items, item)
	}
}

func resumeAt(pos int) model.ExecutionContext {
	ec := model.NewExecutionContext()
	ec.Put(model.ResumePositionKey, pos)
	return ec
}

var peopleFS = fstest.MapFS{
	"people.csv": {Data: []byte("firstName,lastName\nJill,Doe\nJoe,Doe\n,Nobody\nJustin,Doe\nJane,Doe,extra\nJohn,Doe\n")},
}

func newFlatFileReader() *reader.FlatFileReader[person] {
	return reader.NewFlatFileReader(reader.FlatFileConfig[person]{
		Name:        "personReader",
		FS:          peopleFS,
		Path:        "people.csv",
		LinesToSkip: 1,
		FieldNames:  []string{"firstName", "lastName"},
		Mapper:      personMapper,
	})
}

func TestFlatFileReader(t *testing.T) {
	r := newFlatFileReader()
	require.NoError(t, r.Open(context.Background(), model.NewExecutionContext()))
	defer r.Close(context.Background())

	items, errs := readAll[person](t, r)
	assert.Equal(t, []person{{"Jill", "Doe"}, {"Joe", "Doe"}, {"Justin", "Doe"}, {"John", "Doe"}}, items)
	require.Len(t, errs, 2)
	for _, err := range errs {
		assert.True(t, errors.Is(err, exception.ErrDataConversion))
		assert.Equal(t, exception.ModuleReader, exception.ModuleOf(err))
	}
	assert.Contains(t, errs[0].Error(), "line 4")
	assert.Contains(t, errs[1].Error(), "expected 2 fields, found 3")

	ec, err := r.GetExecutionContext(context.Background())
	require.NoError(t, err)
	consumed, _ := ec.GetInt("personReader.readCount")
	assert.Equal(t, 6, consumed, "malformed records count as consumed")
}

func TestFlatFileReader_Resume(t *testing.T) {
	r := newFlatFileReader()
	require.NoError(t, r.Open(context.Background(), resumeAt(3)))
	defer r.Close(context.Background())

	items, errs := readAll[person](t, r)
	assert.Equal(t, []person{{"Justin", "Doe"}, {"John", "Doe"}}, items)
	assert.Len(t, errs, 1)
}

func TestFlatFileReader_ResumePastEnd(t *testing.T) {
	r := newFlatFileReader()
	require.NoError(t, r.Open(context.Background(), resumeAt(50)))
	_, err := r.Read(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestFlatFileReader_MissingFile(t *testing.T) {
	r := reader.NewFlatFileReader(reader.FlatFileConfig[person]{Name: "r", Path: "/does/not/exist.csv", Mapper: personMapper})
	err := r.Open(context.Background(), nil)
	assert.Equal(t, exception.ModuleReader, exception.ModuleOf(err))
}

func openPeopleDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE people (id INTEGER PRIMARY KEY AUTOINCREMENT, first_name TEXT, last_name TEXT)`)
	require.NoError(t, err)
	for _, name := range []string{"Jill", "Joe", "Justin", "Jane", "John"} {
		_, err = db.Exec(`INSERT INTO people (first_name, last_name) VALUES (?, ?)`, name, "Doe")
		require.NoError(t, err)
	}
	return db
}

func scanPerson(rows *sql.Rows) (person, error) {
	var p person
	err := rows.Scan(&p.First, &p.Last)
	return p, err
}

func TestSqlCursorReader(t *testing.T) {
	db := openPeopleDB(t)
	r := reader.NewSqlCursorReader(db, "sqlite", "peopleReader", "SELECT first_name, last_name FROM people WHERE last_name = ? ORDER BY id", []any{"Doe"}, scanPerson)

	require.NoError(t, r.Open(context.Background(), model.NewExecutionContext()))
	items, errs := readAll[person](t, r)
	require.NoError(t, r.Close(context.Background()))
	assert.Empty(t, errs)
	assert.Len(t, items, 5)

	require.NoError(t, r.Open(context.Background(), resumeAt(3)))
	items, _ = readAll[person](t, r)
	require.NoError(t, r.Close(context.Background()))
	assert.Equal(t, []person{{"Jane", "Doe"}, {"John", "Doe"}}, items)

	ec, err := r.GetExecutionContext(context.Background())
	require.NoError(t, err)
	count, _ := ec.GetInt("peopleReader.readCount")
	assert.Equal(t, 5, count)
}

func TestSqlCursorReader_MapperFailure(t *testing.T) {
	db := openPeopleDB(t)
	r := reader.NewSqlCursorReader(db, "sqlite", "peopleReader", "SELECT first_name FROM people ORDER BY id", nil, scanPerson)
	require.NoError(t, r.Open(context.Background(), nil))
	defer r.Close(context.Background())

	_, err := r.Read(context.Background())
	assert.ErrorIs(t, err, exception.ErrDataConversion)
}

func TestSqlCursorReader_NotOpen(t *testing.T) {
	r := reader.NewSqlCursorReader(openPeopleDB(t), "sqlite", "r", "SELECT 1", nil, scanPerson)
	_, err := r.Read(context.Background())
	assert.Error(t, err)
	assert.NoError(t, r.Close(context.Background()))
}

func TestSliceReader_Resume(t *testing.T) {
	r := reader.NewSliceReader("letters", strings.Split("abcde", ""))
	require.NoError(t, r.Open(context.Background(), resumeAt(2)))
	items, _ := readAll[string](t, r)
	assert.Equal(t, []string{"c", "d", "e"}, items)
}
