package ingestion

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rpattn/resourcekit/internal/coerce"
	"github.com/rpattn/resourcekit/internal/domain"
	"github.com/rpattn/resourcekit/internal/export"
	"github.com/rpattn/resourcekit/internal/filters"
	"github.com/rpattn/resourcekit/internal/registry"
	"github.com/rpattn/resourcekit/internal/repository"
	"github.com/rpattn/resourcekit/pkg/validator"
)

func newTestService(t *testing.T, logger *zap.Logger) (*Service, repository.ResourceRepository, *domain.Registry) {
	t.Helper()
	reg, err := registry.Default("http://api.test")
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	repo := repository.NewMemoryRepository(reg)
	return NewService(repo, reg, coerce.NewEngine(reg), validator.NewFieldsValidator(reg, false), logger), repo, reg
}

func TestServiceIngestCreatesResources(t *testing.T) {
	service, repo, _ := newTestService(t, nil)
	ctx := context.Background()
	familyID := uuid.New()

	data := "\xEF\xBB\xBFIdentifier,Voltage,In Use,Family,Batch\n" +
		"cell-1,3.6,yes,http://api.test/cell_families/" + familyID.String() + "/,B7\n" +
		",,,,\n" +
		"cell-2,4.2,false,,B8\n"

	summary, err := service.Ingest(ctx, Request{
		LookupKey: registry.Cell,
		FileName:  "cells.csv",
		Data:      strings.NewReader(data),
	})
	if err != nil {
		t.Fatalf("ingest returned error: %v", err)
	}
	if summary.TotalRows != 2 || summary.ValidRows != 2 || summary.InvalidRows != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if diff := cmp.Diff(map[string]domain.TypeName{"batch": domain.TypeString}, summary.CustomColumns); diff != "" {
		t.Fatalf("custom columns mismatch (-want +got):\n%s", diff)
	}

	created, total, err := repo.List(ctx, registry.Cell, 0, 0)
	if err != nil || total != 2 {
		t.Fatalf("expected two stored cells, got %d (%v)", total, err)
	}

	byIdentifier := map[domain.Value]domain.Resource{}
	for _, r := range created {
		byIdentifier[r.Fields["identifier"]] = r
	}
	first := byIdentifier[domain.String("cell-1")]
	if first.Fields["voltage"] != domain.Number(3.6) || first.Fields["in_use"] != domain.Boolean(true) {
		t.Fatalf("unexpected typed fields %+v", first.Fields)
	}
	if first.FamilyID == nil || *first.FamilyID != familyID {
		t.Fatalf("expected family id %s, got %v", familyID, first.FamilyID)
	}
	batch, ok := first.CustomProperties()["batch"].(domain.CustomProperty)
	if !ok || batch.Value != domain.String("B7") {
		t.Fatalf("expected custom property batch, got %+v", first.CustomProperties())
	}
	if _, ok := byIdentifier[domain.String("cell-2")].Fields["family"]; ok {
		t.Fatalf("empty cells must be omitted")
	}
}

func TestServiceIngestReportsInvalidRows(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	service, repo, _ := newTestService(t, zap.New(core))

	data := "identifier,voltage,in_use\n" +
		"cell-1,3.6,true\n" +
		"cell-2,high,true\n" +
		"cell-3,3.7,maybe\n"

	summary, err := service.Ingest(context.Background(), Request{
		LookupKey: registry.Cell,
		FileName:  "cells.csv",
		Data:      strings.NewReader(data),
	})
	if err != nil {
		t.Fatalf("ingest returned error: %v", err)
	}
	if summary.ValidRows != 1 || summary.InvalidRows != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.RowErrors[0].RowNumber != 3 || summary.RowErrors[1].RowNumber != 4 {
		t.Fatalf("unexpected row numbers %+v", summary.RowErrors)
	}
	if !strings.Contains(summary.RowErrors[0].Errors[0], "voltage") {
		t.Fatalf("expected voltage error, got %v", summary.RowErrors[0].Errors)
	}
	if logs.FilterMessage("row rejected").Len() != 2 {
		t.Fatalf("expected two rejected row logs, got %d", logs.FilterMessage("row rejected").Len())
	}

	_, total, _ := repo.List(context.Background(), registry.Cell, 0, 0)
	if total != 1 {
		t.Fatalf("expected one stored cell, got %d", total)
	}
}

func TestServiceIngestRejectsUnresolvableReferences(t *testing.T) {
	service, repo, _ := newTestService(t, nil)
	familyID := uuid.New()

	data := "identifier,family\n" +
		"cell-1,CellA\n" +
		"cell-2," + familyID.String() + "\n"

	summary, err := service.Ingest(context.Background(), Request{
		LookupKey: registry.Cell,
		FileName:  "cells.csv",
		Data:      strings.NewReader(data),
	})
	if err != nil {
		t.Fatalf("ingest returned error: %v", err)
	}
	if summary.ValidRows != 1 || summary.InvalidRows != 1 || summary.RowErrors[0].RowNumber != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if !strings.Contains(summary.RowErrors[0].Errors[0], "CellA") {
		t.Fatalf("expected the bad reference in the error, got %v", summary.RowErrors[0].Errors)
	}

	created, total, _ := repo.List(context.Background(), registry.Cell, 0, 0)
	if total != 1 || created[0].Fields["identifier"] != domain.String("cell-2") {
		t.Fatalf("only the row with a resolvable family should be stored, got %+v", created)
	}
	if created[0].FamilyID == nil || *created[0].FamilyID != familyID {
		t.Fatalf("expected family id %s, got %v", familyID, created[0].FamilyID)
	}
}

func TestServiceIngestDryRunAndIgnoredColumns(t *testing.T) {
	service, repo, _ := newTestService(t, nil)

	data := "id,url,identifier,cycler_tests\n" +
		uuid.NewString() + ",http://x,cell-1,a\n"

	summary, err := service.Ingest(context.Background(), Request{
		LookupKey: registry.Cell,
		FileName:  "cells.csv",
		DryRun:    true,
		Data:      strings.NewReader(data),
	})
	if err != nil {
		t.Fatalf("ingest returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"id", "url", "cycler_tests"}, summary.IgnoredColumns); diff != "" {
		t.Fatalf("ignored columns mismatch (-want +got):\n%s", diff)
	}
	if summary.ValidRows != 1 || len(summary.Created) != 0 {
		t.Fatalf("unexpected dry run summary: %+v", summary)
	}
	if _, total, _ := repo.List(context.Background(), registry.Cell, 0, 0); total != 0 {
		t.Fatalf("dry run must not store resources, got %d", total)
	}
}

func TestServiceIngestExcelWithHeaderRow(t *testing.T) {
	service, repo, _ := newTestService(t, nil)

	f := excelize.NewFile()
	rows := [][]any{
		{"Cell import"},
		{"identifier", "voltage", "team"},
		{"cell-9", 3.3, uuid.New().String()},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("write row: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	header := 1
	summary, err := service.Ingest(context.Background(), Request{
		LookupKey:      registry.Cell,
		FileName:       "cells.XLSX",
		HeaderRowIndex: &header,
		Data:           &buf,
	})
	if err != nil {
		t.Fatalf("ingest returned error: %v", err)
	}
	if summary.ValidRows != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	cells, _, _ := repo.List(context.Background(), registry.Cell, 0, 0)
	team, _ := cells[0].Fields["team"].(domain.String)
	if !strings.HasPrefix(string(team), "http://api.test/teams/") {
		t.Fatalf("expected team reference url, got %q", team)
	}
}

func TestServiceIngestRoundTripsExport(t *testing.T) {
	service, repo, reg := newTestService(t, nil)
	ctx := context.Background()

	for _, fields := range []domain.Object{
		{"identifier": domain.String("cell-1"), "voltage": domain.Number(3.6), "in_use": domain.Boolean(true)},
		{"identifier": domain.String("cell-2"), "voltage": domain.Number(4.2), "custom_properties": domain.Object{
			"batch": domain.CustomProperty{Type: domain.TypeString, Value: domain.String("B7")},
		}},
	} {
		if _, err := repo.Create(ctx, domain.NewResource(registry.Cell, nil, fields)); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	exporter := export.NewService(repo, reg, filters.NewEngine(reg, nil), coerce.NewEngine(reg))
	var buf bytes.Buffer
	if _, err := exporter.Export(ctx, export.Request{LookupKey: registry.Cell, Format: export.FormatXLSX}, &buf); err != nil {
		t.Fatalf("export: %v", err)
	}

	summary, err := service.Ingest(ctx, Request{LookupKey: registry.Cell, FileName: "cells.xlsx", Data: &buf})
	if err != nil {
		t.Fatalf("ingest exported file: %v", err)
	}
	if summary.ValidRows != 2 || summary.InvalidRows != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if diff := cmp.Diff([]string{"batch"}, summary.SortedCustomColumns()); diff != "" {
		t.Fatalf("custom columns mismatch (-want +got):\n%s", diff)
	}
	if _, total, _ := repo.List(ctx, registry.Cell, 0, 0); total != 4 {
		t.Fatalf("expected four cells after re-import, got %d", total)
	}
}

func TestServiceIngestRejectsBadInput(t *testing.T) {
	service, _, _ := newTestService(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"unknown key", Request{LookupKey: "NOPE", FileName: "a.csv", Data: strings.NewReader("a\n1")}, domain.ErrUnknownLookupKey},
		{"empty file", Request{LookupKey: registry.Cell, FileName: "a.csv", Data: strings.NewReader("")}, ErrInvalidUpload},
		{"unsupported", Request{LookupKey: registry.Cell, FileName: "a.json", Data: strings.NewReader("{}")}, ErrUnsupportedFormat},
		{"header out of range", Request{LookupKey: registry.Cell, FileName: "a.csv", HeaderRowIndex: intPtr(5), Data: strings.NewReader("a\n1")}, ErrInvalidUpload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := service.Ingest(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSanitizeHeaders(t *testing.T) {
	got := sanitizeHeaders([]string{" In Use ", "voltage", "Voltage", "", "nominal-voltage.v"})
	want := []string{"in_use", "voltage", "voltage_2", "column_4", "nominal_voltage_v"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("headers mismatch (-want +got):\n%s", diff)
	}
}

func TestProfileColumn(t *testing.T) {
	rows := [][]string{{"yes", "1.5", "x"}, {"no", "", "2"}}
	for col, want := range []domain.TypeName{domain.TypeBoolean, domain.TypeNumber, domain.TypeString} {
		if got := profileColumn(col, rows); got != want {
			t.Fatalf("column %d: expected %s, got %s", col, want, got)
		}
	}
}

func intPtr(v int) *int { return &v }
