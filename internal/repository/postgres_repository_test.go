package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rpattn/resourcekit/internal/domain"
	"github.com/rpattn/resourcekit/internal/registry"
)

// fakeRow stands in for a pgx.Row, assigning values to the scan targets in
// column order.
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan expects %d targets, got %d", len(r.values), len(dest))
	}
	for i, v := range r.values {
		target := reflect.ValueOf(dest[i]).Elem()
		if v == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		target.Set(reflect.ValueOf(v))
	}
	return nil
}

func TestScanResource(t *testing.T) {
	id := uuid.New()
	familyID := uuid.New()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	fieldsJSON, err := json.Marshal(domain.Object{
		"identifier": domain.String("cell-1"),
		"voltage":    domain.Number(3.6),
		"custom_properties": domain.Object{
			"batch": domain.CustomProperty{Type: domain.TypeString, Value: domain.String("B7")},
		},
	})
	if err != nil {
		t.Fatalf("marshal fields: %v", err)
	}

	tests := []struct {
		name    string
		row     fakeRow
		want    domain.Resource
		wantErr error
		errText string
	}{
		{
			name: "full row",
			row:  fakeRow{values: []any{id, string(registry.Cell), &familyID, fieldsJSON, int64(3), at, at}},
			want: domain.Resource{
				ID:        id,
				LookupKey: registry.Cell,
				FamilyID:  &familyID,
				Fields: domain.Object{
					"identifier": domain.String("cell-1"),
					"voltage":    domain.Number(3.6),
					"custom_properties": domain.Object{
						"batch": domain.CustomProperty{Type: domain.TypeString, Value: domain.String("B7")},
					},
				},
				Version:   3,
				CreatedAt: at,
				UpdatedAt: at,
			},
		},
		{
			name: "no family and empty fields",
			row:  fakeRow{values: []any{id, string(registry.Team), nil, []byte(nil), int64(1), at, at}},
			want: domain.Resource{
				ID:        id,
				LookupKey: registry.Team,
				Fields:    domain.Object{},
				Version:   1,
				CreatedAt: at,
				UpdatedAt: at,
			},
		},
		{
			name:    "corrupt fields",
			row:     fakeRow{values: []any{id, string(registry.Cell), nil, []byte(`{"voltage":`), int64(1), at, at}},
			errText: "failed to decode fields for resource " + id.String(),
		},
		{
			name:    "missing row",
			row:     fakeRow{err: pgx.ErrNoRows},
			wantErr: pgx.ErrNoRows,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := scanResource(tt.row)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			case tt.errText != "":
				if err == nil || !strings.Contains(err.Error(), tt.errText) {
					t.Fatalf("expected error containing %q, got %v", tt.errText, err)
				}
				return
			case err != nil:
				t.Fatalf("scan: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("resource mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestScanHistory(t *testing.T) {
	id := uuid.New()
	resourceID := uuid.New()
	at := time.Date(2024, 3, 2, 8, 30, 0, 0, time.UTC)

	entry, err := scanHistory(fakeRow{values: []any{
		id, resourceID, string(registry.Cell), nil, []byte(`{"identifier":"cell-1"}`), int64(2), domain.ChangeTypeUpdate, at,
	}})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	want := domain.ResourceHistory{
		ID:         id,
		ResourceID: resourceID,
		LookupKey:  registry.Cell,
		Fields:     domain.Object{"identifier": domain.String("cell-1")},
		Version:    2,
		ChangeType: domain.ChangeTypeUpdate,
		ChangedAt:  at,
	}
	if diff := cmp.Diff(want, entry); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}

	_, err = scanHistory(fakeRow{values: []any{
		id, resourceID, string(registry.Cell), nil, []byte(`[1,2]`), int64(2), domain.ChangeTypeUpdate, at,
	}})
	if err == nil || !strings.Contains(err.Error(), "failed to decode history fields for resource "+resourceID.String()) {
		t.Fatalf("expected decode error, got %v", err)
	}

	if _, err := scanHistory(fakeRow{err: pgx.ErrNoRows}); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected pgx.ErrNoRows, got %v", err)
	}
}

func TestRowErrorMapping(t *testing.T) {
	id := uuid.New()
	boom := errors.New("connection reset")

	tests := []struct {
		name    string
		err     error
		wantIs  error
		notIs   error
		errText string
	}{
		{
			name:   "missing resource",
			err:    notFound(pgx.ErrNoRows, id, "failed to get resource"),
			wantIs: ErrNotFound,
			notIs:  pgx.ErrNoRows,
		},
		{
			name:    "query failure",
			err:     notFound(boom, id, "failed to get resource"),
			wantIs:  boom,
			notIs:   ErrNotFound,
			errText: "failed to get resource",
		},
		{
			name:    "update lost the version race",
			err:     updateError(pgx.ErrNoRows, id, 4),
			wantIs:  ErrVersionConflict,
			notIs:   ErrNotFound,
			errText: "no longer at version 4",
		},
		{
			name:    "update failure",
			err:     updateError(boom, id, 4),
			wantIs:  boom,
			notIs:   ErrVersionConflict,
			errText: "failed to update resource",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.wantIs) {
				t.Fatalf("expected %v to wrap %v", tt.err, tt.wantIs)
			}
			if errors.Is(tt.err, tt.notIs) {
				t.Fatalf("%v should not wrap %v", tt.err, tt.notIs)
			}
			if !strings.Contains(tt.err.Error(), tt.errText) {
				t.Fatalf("expected %q in %q", tt.errText, tt.err.Error())
			}
		})
	}
}

func TestCheckVersion(t *testing.T) {
	current := domain.Resource{ID: uuid.New(), Version: 5}
	version := func(v int64) *int64 { return &v }

	if err := checkVersion(current, nil); err != nil {
		t.Fatalf("an unversioned write always passes, got %v", err)
	}
	if err := checkVersion(current, version(5)); err != nil {
		t.Fatalf("matching version should pass, got %v", err)
	}
	err := checkVersion(current, version(4))
	if !errors.Is(err, ErrVersionConflict) || !strings.Contains(err.Error(), "is at version 5, expected 4") {
		t.Fatalf("expected a version conflict, got %v", err)
	}
}
