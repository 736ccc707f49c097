// Package ingestion imports spreadsheet rows as resources of one lookup key.
package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/rpattn/resourcekit/internal/coerce"
	"github.com/rpattn/resourcekit/internal/domain"
	"github.com/rpattn/resourcekit/internal/repository"
	"github.com/rpattn/resourcekit/pkg/validator"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrInvalidUpload is returned for empty or unreadable uploads.
	ErrInvalidUpload = errors.New("invalid upload")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// Service ingests tabular data into resources.
type Service struct {
	repo      repository.ResourceRepository
	registry  *domain.Registry
	coerce    *coerce.Engine
	validator *validator.FieldsValidator
	logger    *zap.Logger
}

// NewService creates a new ingestion service.
func NewService(
	repo repository.ResourceRepository,
	reg *domain.Registry,
	coerceEngine *coerce.Engine,
	fv *validator.FieldsValidator,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		registry:  reg,
		coerce:    coerceEngine,
		validator: fv,
		logger:    logger.Named("ingestion"),
	}
}

// Request describes the ingestion input.
type Request struct {
	LookupKey      domain.LookupKey
	FileName       string
	HeaderRowIndex *int
	// DryRun validates every row without creating resources.
	DryRun bool
	Data   io.Reader
}

// RowError lists why one data row was rejected. RowNumber is 1-based and
// counts the header row.
type RowError struct {
	RowNumber int      `json:"row_number"`
	Errors    []string `json:"errors"`
}

// Summary returns ingestion level metrics.
type Summary struct {
	TotalRows   int `json:"total_rows"`
	ValidRows   int `json:"valid_rows"`
	InvalidRows int `json:"invalid_rows"`
	// IgnoredColumns are read-only or server-managed columns, such as those
	// written by an export.
	IgnoredColumns []string `json:"ignored_columns"`
	// CustomColumns became custom properties, keyed by the type inferred for
	// the column.
	CustomColumns map[string]domain.TypeName `json:"custom_columns"`
	Created       []string                   `json:"created"`
	RowErrors     []RowError                 `json:"row_errors"`
}

type tableData struct {
	headers        []string
	rows           [][]string
	headerRowIndex int
}

// column says how one header maps onto resource fields.
type column struct {
	name       string
	descriptor *domain.FieldDescriptor
	custom     domain.TypeName
	ignored    bool
}

// Ingest reads the uploaded file and creates one resource per valid row.
// Rows that fail conversion or validation are reported and skipped.
func (s *Service) Ingest(ctx context.Context, req Request) (Summary, error) {
	summary := Summary{
		IgnoredColumns: []string{},
		CustomColumns:  map[string]domain.TypeName{},
		Created:        []string{},
		RowErrors:      []RowError{},
	}

	if !s.registry.IsLookupKey(req.LookupKey) {
		return summary, fmt.Errorf("%w: %s", domain.ErrUnknownLookupKey, req.LookupKey)
	}
	if req.Data == nil {
		return summary, fmt.Errorf("%w: data reader is required", ErrInvalidUpload)
	}

	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return summary, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(payload) == 0 {
		return summary, fmt.Errorf("%w: file is empty", ErrInvalidUpload)
	}

	table, err := parseTable(req.FileName, payload, req.HeaderRowIndex)
	if err != nil {
		return summary, err
	}
	if len(table.headers) == 0 {
		return summary, fmt.Errorf("%w: no header row detected", ErrInvalidUpload)
	}

	columns := s.planColumns(req.LookupKey, table)
	for _, col := range columns {
		switch {
		case col.ignored:
			summary.IgnoredColumns = append(summary.IgnoredColumns, col.name)
		case col.descriptor == nil:
			summary.CustomColumns[col.name] = col.custom
		}
	}

	summary.TotalRows = len(table.rows)
	for rowIdx, row := range table.rows {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		rowNumber := table.headerRowIndex + rowIdx + 2

		fields, problems := s.rowFields(columns, row)
		if len(problems) == 0 {
			result := s.validator.ValidateFields(req.LookupKey, fields)
			for _, e := range result.Errors {
				problems = append(problems, fmt.Sprintf("%s: %s", e.Field, e.Message))
			}
		}
		if len(problems) > 0 {
			s.rowError(&summary, req, rowNumber, problems)
			continue
		}

		if req.DryRun {
			summary.ValidRows++
			continue
		}
		resource := domain.NewResource(req.LookupKey, s.registry.FamilyID(req.LookupKey, fields), fields)
		created, err := s.repo.Create(ctx, resource)
		if err != nil {
			s.rowError(&summary, req, rowNumber, []string{fmt.Sprintf("failed to create resource: %v", err)})
			continue
		}
		summary.ValidRows++
		summary.Created = append(summary.Created, created.ID.String())
	}

	s.logger.Info("ingestion finished",
		zap.String("lookup_key", string(req.LookupKey)),
		zap.String("file", req.FileName),
		zap.Bool("dry_run", req.DryRun),
		zap.Int("rows", summary.TotalRows),
		zap.Int("valid", summary.ValidRows),
		zap.Int("invalid", summary.InvalidRows))
	return summary, nil
}

func (s *Service) planColumns(key domain.LookupKey, table tableData) []column {
	columns := make([]column, len(table.headers))
	for idx, header := range table.headers {
		col := column{name: header}
		if descriptor, ok := s.registry.Field(key, header); ok {
			if descriptor.ReadOnly || header == domain.CustomPropertiesField {
				col.ignored = true
			} else {
				col.descriptor = &descriptor
			}
		} else {
			col.custom = profileColumn(idx, table.rows)
		}
		columns[idx] = col
	}
	return columns
}

// rowFields converts the cells of one row. Empty cells are omitted.
func (s *Service) rowFields(columns []column, row []string) (domain.Object, []string) {
	fields := domain.Object{}
	custom := domain.Object{}
	var problems []string

	for idx, col := range columns {
		if col.ignored || idx >= len(row) {
			continue
		}
		raw := strings.TrimSpace(row[idx])
		if raw == "" {
			continue
		}

		if col.descriptor == nil {
			value, err := s.convert(col.custom, raw)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", col.name, err))
				continue
			}
			custom[col.name] = domain.CustomProperty{Type: col.custom, Value: value}
			continue
		}

		value, err := s.fieldValue(*col.descriptor, raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", col.name, err))
			continue
		}
		fields[col.name] = value
	}

	if len(custom) > 0 {
		fields[domain.CustomPropertiesField] = custom
	}
	return fields, problems
}

func (s *Service) fieldValue(descriptor domain.FieldDescriptor, raw string) (domain.Value, error) {
	if !descriptor.Many {
		return s.convert(descriptor.Type, raw)
	}
	parts := strings.Split(raw, ",")
	items := make(domain.Array, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		value, err := s.convert(descriptor.Type, part)
		if err != nil {
			return nil, err
		}
		items = append(items, value)
	}
	return items, nil
}

// convert turns a cell into a value of type t. Cells that cannot represent
// a number or boolean are rejected rather than coerced.
func (s *Service) convert(t domain.TypeName, raw string) (domain.Value, error) {
	switch {
	case t == domain.TypeNumber && !looksLikeFloat(raw):
		return nil, fmt.Errorf("unable to coerce %q to number", raw)
	case t == domain.TypeBoolean:
		b, ok := parseBool(raw)
		if !ok {
			return nil, fmt.Errorf("unable to coerce %q to boolean", raw)
		}
		return domain.Boolean(b), nil
	case s.registry.IsReferenceType(t):
		id, ok := domain.ResourceIDFromURL(raw)
		if !ok {
			return nil, fmt.Errorf("%q is not a resource URL or id", raw)
		}
		if url, ok := s.registry.ResourceURL(t, id.String()); ok {
			return domain.String(url), nil
		}
	}
	return s.coerce.Convert(domain.Notated{Type: domain.TypeString, Value: domain.String(raw)}, t).Value, nil
}

func (s *Service) rowError(summary *Summary, req Request, rowNumber int, problems []string) {
	summary.InvalidRows++
	summary.RowErrors = append(summary.RowErrors, RowError{RowNumber: rowNumber, Errors: problems})
	s.logger.Debug("row rejected",
		zap.String("lookup_key", string(req.LookupKey)),
		zap.String("file", req.FileName),
		zap.Int("row", rowNumber),
		zap.Strings("errors", problems))
}

func parseTable(fileName string, payload []byte, headerRowIndex *int) (tableData, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return parseCSV(payload, headerRowIndex)
	case ".xlsx":
		return parseExcel(payload, headerRowIndex)
	default:
		return tableData{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte, headerRowIndex *int) (tableData, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return tableData{}, fmt.Errorf("%w: failed to read csv: %v", ErrInvalidUpload, err)
	}
	return normalizeTable(records, headerRowIndex)
}

func parseExcel(payload []byte, headerRowIndex *int) (tableData, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return tableData{}, fmt.Errorf("%w: failed to open xlsx: %v", ErrInvalidUpload, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return tableData{}, fmt.Errorf("%w: excel file has no sheets", ErrInvalidUpload)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return tableData{}, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return normalizeTable(rows, headerRowIndex)
}

func normalizeTable(records [][]string, headerRowIndex *int) (tableData, error) {
	if len(records) == 0 {
		return tableData{}, fmt.Errorf("%w: no rows found in file", ErrInvalidUpload)
	}

	var headerRow []string
	var dataRows [][]string
	headerIndex := -1

	if headerRowIndex != nil {
		if *headerRowIndex < 0 || *headerRowIndex >= len(records) {
			return tableData{}, fmt.Errorf("%w: header row index %d out of range", ErrInvalidUpload, *headerRowIndex)
		}
		if isBlank(records[*headerRowIndex]) {
			return tableData{}, fmt.Errorf("%w: selected header row %d is empty", ErrInvalidUpload, *headerRowIndex+1)
		}
		headerRow = records[*headerRowIndex]
		headerIndex = *headerRowIndex
		dataRows = records[*headerRowIndex+1:]
	} else {
		for idx, row := range records {
			if isBlank(row) {
				continue
			}
			headerRow = row
			headerIndex = idx
			dataRows = records[idx+1:]
			break
		}
	}

	if headerRow == nil {
		return tableData{}, fmt.Errorf("%w: header row could not be detected", ErrInvalidUpload)
	}

	headers := sanitizeHeaders(headerRow)
	var rows [][]string
	for _, row := range dataRows {
		if isBlank(row) {
			continue
		}
		rows = append(rows, padRow(row, len(headers)))
	}

	return tableData{headers: headers, rows: rows, headerRowIndex: headerIndex}, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// sanitizeHeaders turns header labels into field names: lower case with
// spaces, dots and dashes as underscores. Duplicates get a numeric suffix.
func sanitizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int)

	for idx, value := range raw {
		name := strings.ToLower(strings.TrimSpace(value))
		name = strings.NewReplacer(" ", "_", ".", "_", "-", "_").Replace(name)
		name = strings.Trim(name, "_")
		if name == "" {
			name = fmt.Sprintf("column_%d", idx+1)
		}

		base := name
		count := seen[base]
		if count > 0 {
			name = fmt.Sprintf("%s_%d", base, count+1)
		}
		seen[base] = count + 1

		headers[idx] = name
	}

	return headers
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}

// profileColumn infers the custom property type of an unregistered column
// from its non-empty cells.
func profileColumn(col int, rows [][]string) domain.TypeName {
	isBool, isFloat, hasValue := true, true, false
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		value := strings.TrimSpace(row[col])
		if value == "" {
			continue
		}
		hasValue = true
		if _, ok := parseBool(value); !ok {
			isBool = false
		}
		if !looksLikeFloat(value) {
			isFloat = false
		}
	}

	switch {
	case isBool && hasValue:
		return domain.TypeBoolean
	case isFloat && hasValue:
		return domain.TypeNumber
	default:
		return domain.TypeString
	}
}

func parseBool(value string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "y":
		return true, true
	case "false", "no", "n":
		return false, true
	}
	return false, false
}

func looksLikeFloat(value string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	return err == nil
}

// SortedCustomColumns returns the custom column names in order.
func (s Summary) SortedCustomColumns() []string {
	names := make([]string, 0, len(s.CustomColumns))
	for name := range s.CustomColumns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
