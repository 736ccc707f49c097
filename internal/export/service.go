// Package export writes the filtered resources of one lookup key as a
// spreadsheet.
package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/rpattn/resourcekit/internal/coerce"
	"github.com/rpattn/resourcekit/internal/domain"
	"github.com/rpattn/resourcekit/internal/familyloader"
	"github.com/rpattn/resourcekit/internal/filters"
	"github.com/rpattn/resourcekit/internal/notation"
	"github.com/rpattn/resourcekit/internal/repository"
)

// Format is an output file format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts xlsx or csv in any case.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

type Service struct {
	repo     repository.ResourceRepository
	registry *domain.Registry
	filters  *filters.Engine
	coerce   *coerce.Engine
	codec    *notation.Codec
	logger   *zap.Logger

	pageSize      int
	customColumns bool
	maxRows       int
}

type Option func(*Service)

func WithPageSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// WithCustomColumns appends one column per custom property name found in
// the exported resources.
func WithCustomColumns(enabled bool) Option {
	return func(s *Service) {
		s.customColumns = enabled
	}
}

// WithMaxRows caps the number of exported rows. Zero means no cap.
func WithMaxRows(rows int) Option {
	return func(s *Service) {
		if rows >= 0 {
			s.maxRows = rows
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(
	repo repository.ResourceRepository,
	reg *domain.Registry,
	filterEngine *filters.Engine,
	coerceEngine *coerce.Engine,
	opts ...Option,
) *Service {
	service := &Service{
		repo:     repo,
		registry: reg,
		filters:  filterEngine,
		coerce:   coerceEngine,
		codec:    notation.NewCodec(reg),
		logger:   zap.NewNop(),
		pageSize: 1000,
	}
	for _, opt := range opts {
		opt(service)
	}
	service.logger = service.logger.Named("export")
	return service
}

// Request selects what to export. Filters may be nil.
type Request struct {
	LookupKey domain.LookupKey
	Filters   *domain.ActiveFilters
	Format    Format
}

// Result summarises a finished export.
type Result struct {
	Rows         int
	Columns      []string
	BytesWritten int64
}

// Export writes the matching resources of req.LookupKey to w.
func (s *Service) Export(ctx context.Context, req Request, w io.Writer) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	if !s.registry.IsLookupKey(req.LookupKey) {
		return Result{}, fmt.Errorf("%w: %s", domain.ErrUnknownLookupKey, req.LookupKey)
	}
	format := req.Format
	if format == "" {
		format = FormatXLSX
	}

	resources, err := s.collect(ctx, req)
	if err != nil {
		return Result{}, err
	}
	headers := s.headers(req.LookupKey, resources)

	counter := &countingWriter{writer: bufio.NewWriterSize(w, 1<<16)}
	switch format {
	case FormatXLSX:
		err = s.writeXLSX(counter, req.LookupKey, headers, resources)
	case FormatCSV:
		err = s.writeCSV(counter, req.LookupKey, headers, resources)
	default:
		err = fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		return Result{}, err
	}
	if err := counter.writer.Flush(); err != nil {
		return Result{}, fmt.Errorf("flush export: %w", err)
	}

	s.logger.Info("export completed",
		zap.String("lookup_key", string(req.LookupKey)),
		zap.String("format", string(format)),
		zap.Int("rows", len(resources)),
		zap.Int64("bytes", counter.count))
	return Result{Rows: len(resources), Columns: headers, BytesWritten: counter.count}, nil
}

// collect pages through the repository, keeping the resources that pass the
// request's filters.
func (s *Service) collect(ctx context.Context, req Request) ([]domain.Resource, error) {
	loader := familyloader.NewFamilyLoader(s.repo)
	var out []domain.Resource
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, total, err := s.repo.List(ctx, req.LookupKey, s.pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", req.LookupKey, err)
		}
		if len(page) == 0 {
			break
		}
		kept, err := loader.Filter(ctx, s.filters, req.Filters, req.LookupKey, page)
		if err != nil {
			return nil, err
		}
		out = append(out, kept...)
		if s.maxRows > 0 && len(out) >= s.maxRows {
			return out[:s.maxRows], nil
		}
		offset += len(page)
		if offset >= total {
			break
		}
	}
	return out, nil
}

func (s *Service) headers(key domain.LookupKey, resources []domain.Resource) []string {
	headers := []string{"id"}
	for _, name := range s.registry.FieldNames(key) {
		field, _ := s.registry.Field(key, name)
		if name == domain.CustomPropertiesField || field.Priority == domain.PriorityHidden {
			continue
		}
		headers = append(headers, name)
	}
	if !s.customColumns {
		return headers
	}

	seen := make(map[string]bool)
	var custom []string
	for _, r := range resources {
		for name := range r.CustomProperties() {
			if _, registered := s.registry.Field(key, name); registered || seen[name] {
				continue
			}
			seen[name] = true
			custom = append(custom, name)
		}
	}
	sort.Strings(custom)
	return append(headers, custom...)
}

// row renders one resource as the cells under headers.
func (s *Service) row(key domain.LookupKey, headers []string, r domain.Resource) []string {
	cells := make([]string, len(headers))
	props := r.CustomProperties()
	for i, name := range headers {
		if name == "id" {
			cells[i] = r.ID.String()
			continue
		}
		var value domain.Value
		var descriptor *domain.FieldDescriptor
		if field, ok := s.registry.Field(key, name); ok {
			value = r.Fields[name]
			descriptor = &field
		} else {
			value = props[name]
		}
		cells[i] = s.format(value, descriptor)
	}
	return cells
}

func (s *Service) format(value domain.Value, descriptor *domain.FieldDescriptor) string {
	if value == nil {
		return ""
	}
	switch typed := value.(type) {
	case domain.Null:
		return ""
	case domain.Array:
		return domain.Text(typed)
	}
	converted := s.coerce.Convert(s.codec.Notate(value, descriptor), domain.TypeString)
	if _, isNull := converted.Value.(domain.Null); isNull {
		return ""
	}
	return domain.Text(converted.Value)
}

func (s *Service) writeCSV(w io.Writer, key domain.LookupKey, headers []string, resources []domain.Resource) error {
	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range resources {
		if err := csvWriter.Write(s.row(key, headers, r)); err != nil {
			return fmt.Errorf("write resource row: %w", err)
		}
	}
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("flush rows: %w", err)
	}
	return nil
}

func (s *Service) writeXLSX(w io.Writer, key domain.LookupKey, headers []string, resources []domain.Resource) (err error) {
	f := excelize.NewFile()
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close workbook: %w", closeErr)
		}
	}()

	sheet := SheetName(key)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	stream, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("open sheet stream: %w", err)
	}

	if err := writeRow(stream, 1, headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range resources {
		if err := writeRow(stream, i+2, s.row(key, headers, r)); err != nil {
			return fmt.Errorf("write resource row: %w", err)
		}
	}
	if err := stream.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRow(stream *excelize.StreamWriter, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return stream.SetRow(cell, cells)
}

// SheetName derives a worksheet name from a lookup key. Excel limits names
// to 31 characters.
func SheetName(key domain.LookupKey) string {
	name := strings.ToLower(string(key))
	if len(name) > 31 {
		name = name[:31]
	}
	if name == "" {
		return "export"
	}
	return name
}

// Filename is the attachment name for an export of key.
func Filename(key domain.LookupKey, format Format) string {
	return fmt.Sprintf("%s.%s", SheetName(key), format)
}

type countingWriter struct {
	writer *bufio.Writer
	count  int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.writer.Write(p)
	w.count += int64(n)
	return n, err
}

var errEmptyKey = errors.New("lookup key is required")

// Validate checks a request before any rows are read.
func (r Request) Validate() error {
	if strings.TrimSpace(string(r.LookupKey)) == "" {
		return errEmptyKey
	}
	if r.Format != "" && r.Format != FormatXLSX && r.Format != FormatCSV {
		return fmt.Errorf("unsupported export format %q", r.Format)
	}
	return nil
}
