package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

const (
	parquetWrittenKey = "parquet.written"
	parquetPartsKey   = "parquet.parts"
	partOrdinalDigits = 9
)

// ParquetWriterConfig configures a ParquetWriter.
type ParquetWriterConfig struct {
	Name string
	// StorageRef names the storage connection under storage.<name>.
	StorageRef string
	// OutputPath names the dataset, e.g. "export/people.parquet". Each chunk is stored as
	// "export/people-<ordinal>.parquet", where ordinal is the position of the chunk's first
	// record. With partitions the parts are placed under <dir>/<partition>/.
	OutputPath string
	// Compression is SNAPPY (default), GZIP or NONE.
	Compression string
}

// ParquetWriter encodes every chunk into its own parquet part and uploads it through a
// storage connection before the chunk is committed. A retried or restarted chunk has the
// same ordinal and overwrites its part. T must carry parquet struct tags.
type ParquetWriter[T any] struct {
	cfg          ParquetWriterConfig
	resolver     storage.StorageConnectionResolver
	partitionKey func(T) (string, error)
	codec        parquet.CompressionCodec

	conn storage.StorageConnection
	// next is the ordinal used when no step execution is attached to the write context.
	next    int
	written int
	parts   int
}

var _ port.ItemWriter[any] = (*ParquetWriter[any])(nil)

// NewParquetWriter creates the writer. partitionKey may be nil for an unpartitioned dataset.
func NewParquetWriter[T any](cfg ParquetWriterConfig, resolver storage.StorageConnectionResolver, partitionKey func(T) (string, error)) (*ParquetWriter[T], error) {
	if cfg.StorageRef == "" {
		return nil, exception.NewBatchErrorf(exception.ModuleWriter, "ParquetWriter '%s' requires a storage ref", cfg.Name)
	}
	if cfg.OutputPath == "" {
		return nil, exception.NewBatchErrorf(exception.ModuleWriter, "ParquetWriter '%s' requires an output path", cfg.Name)
	}
	codec, err := compressionCodec(cfg.Compression)
	if err != nil {
		return nil, exception.NewBatchError(exception.ModuleWriter, fmt.Sprintf("ParquetWriter '%s'", cfg.Name), err, false, false)
	}
	return &ParquetWriter[T]{cfg: cfg, resolver: resolver, partitionKey: partitionKey, codec: codec}, nil
}

// Open resolves the storage connection and removes parts at or beyond the resume position,
// which an interrupted attempt may have uploaded without committing.
func (w *ParquetWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	conn, err := w.resolver.ResolveStorageConnection(ctx, w.cfg.StorageRef)
	if err != nil {
		return exception.NewSinkError(fmt.Sprintf("ParquetWriter '%s': failed to resolve storage '%s'", w.cfg.Name, w.cfg.StorageRef), err)
	}
	w.conn = conn
	w.next, _ = ec.GetInt(model.ResumePositionKey)
	w.written, _ = ec.GetInt(parquetWrittenKey)
	w.parts, _ = ec.GetInt(parquetPartsKey)

	if err := w.removeUncommittedParts(ctx, w.next); err != nil {
		return exception.NewSinkError(fmt.Sprintf("ParquetWriter '%s': failed to clean up uncommitted parts", w.cfg.Name), err)
	}
	logger.Infof("ParquetWriter '%s' opened. Target: %s:%s (resume position %d)", w.cfg.Name, w.cfg.StorageRef, w.cfg.OutputPath, w.next)
	return nil
}

// Write uploads one part per partition for this chunk. The part is durable when Write returns.
func (w *ParquetWriter[T]) Write(ctx context.Context, items []T) error {
	if len(items) == 0 {
		return nil
	}
	if w.conn == nil {
		return exception.NewBatchErrorf(exception.ModuleWriter, "ParquetWriter '%s' is not open", w.cfg.Name)
	}
	ordinal := w.next
	if se, ok := port.StepExecutionFromContext(ctx); ok {
		ordinal = se.CommittedPosition
	}

	grouped := make(map[string][]T)
	for _, item := range items {
		key := ""
		if w.partitionKey != nil {
			k, err := w.partitionKey(item)
			if err != nil {
				return exception.NewSinkError(fmt.Sprintf("ParquetWriter '%s': failed to derive partition key", w.cfg.Name), err)
			}
			key = k
		}
		grouped[key] = append(grouped[key], item)
	}
	keys := make([]string, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var result *multierror.Error
	for _, key := range keys {
		part := grouped[key]
		buf, err := encodeParquet(part, w.codec)
		if err != nil {
			result = multierror.Append(result, exception.NewSinkError(fmt.Sprintf("ParquetWriter '%s': failed to encode partition '%s'", w.cfg.Name, key), err))
			continue
		}
		objectName := w.partName(key, ordinal)
		if err := w.conn.Upload(ctx, "", objectName, buf, "application/vnd.apache.parquet"); err != nil {
			result = multierror.Append(result, exception.NewSinkError(fmt.Sprintf("ParquetWriter '%s': failed to upload '%s'", w.cfg.Name, objectName), err))
			continue
		}
		logger.Debugf("ParquetWriter '%s': wrote %d records to %s:%s", w.cfg.Name, len(part), w.cfg.StorageRef, objectName)
	}
	if err := result.ErrorOrNil(); err != nil {
		return err
	}
	w.next = ordinal + len(items)
	w.written += len(items)
	w.parts += len(keys)
	return nil
}

// Close holds nothing back: every committed chunk is already stored.
func (w *ParquetWriter[T]) Close(ctx context.Context) error {
	logger.Infof("ParquetWriter '%s' closed. %d records in %d part(s) under %s:%s", w.cfg.Name, w.written, w.parts, w.cfg.StorageRef, w.datasetDir())
	return nil
}

// GetExecutionContext returns the cumulative record and part counts.
func (w *ParquetWriter[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	ec := model.NewExecutionContext()
	ec.Put(parquetWrittenKey, w.written)
	ec.Put(parquetPartsKey, w.parts)
	return ec, nil
}

func (w *ParquetWriter[T]) datasetDir() string {
	return path.Dir(w.cfg.OutputPath)
}

// splitOutputPath returns the file stem and extension of OutputPath.
func (w *ParquetWriter[T]) splitOutputPath() (stem, ext string) {
	file := path.Base(w.cfg.OutputPath)
	ext = path.Ext(file)
	return strings.TrimSuffix(file, ext), ext
}

func (w *ParquetWriter[T]) partName(partition string, ordinal int) string {
	stem, ext := w.splitOutputPath()
	file := fmt.Sprintf("%s-%0*d%s", stem, partOrdinalDigits, ordinal, ext)
	return path.Join(w.datasetDir(), partition, file)
}

// partOrdinal parses the ordinal of a part object name, in any partition.
func (w *ParquetWriter[T]) partOrdinal(objectName string) (int, bool) {
	stem, ext := w.splitOutputPath()
	file := path.Base(objectName)
	if !strings.HasPrefix(file, stem+"-") || !strings.HasSuffix(file, ext) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(file, stem+"-"), ext)
	if len(digits) != partOrdinalDigits {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	return n, err == nil
}

func (w *ParquetWriter[T]) removeUncommittedParts(ctx context.Context, from int) error {
	prefix := ""
	if dir := w.datasetDir(); dir != "." {
		prefix = dir + "/"
	}
	var stale []string
	err := w.conn.ListObjects(ctx, "", prefix, func(objectName string) error {
		if n, ok := w.partOrdinal(objectName); ok && n >= from {
			stale = append(stale, objectName)
		}
		return nil
	})
	if err != nil {
		return err
	}
	var result *multierror.Error
	for _, objectName := range stale {
		if err := w.conn.DeleteObject(ctx, "", objectName); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		logger.Infof("ParquetWriter '%s': removed uncommitted part %s", w.cfg.Name, objectName)
	}
	return result.ErrorOrNil()
}

// encodeParquet writes items into an in-memory parquet file with one row group.
// The library panics on some schema errors, which are returned as errors.
func encodeParquet[T any](items []T, codec parquet.CompressionCodec) (buf *bytes.Buffer, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parquet writer panicked: %v", r)
		}
	}()
	buf = new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, new(T), int64(len(items)))
	if err != nil {
		return nil, err
	}
	pw.CompressionType = codec
	for _, item := range items {
		if err := pw.Write(item); err != nil {
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	return buf, nil
}

func compressionCodec(name string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(name) {
	case "SNAPPY", "":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "UNCOMPRESSED":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", name)
	}
}
