package planner

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/sakif/wedchart/internal/apperror"
	"github.com/sakif/wedchart/internal/mirror"
	"github.com/sakif/wedchart/internal/model"
)

const (
	msgCSVHeader         = `CSV must have "Guest Name" and "Table Name" columns`
	msgTableNameMissing  = "Table name is required"
	msgGuestAlreadyAdded = "Guest already exists"
)

// ParseCSV reads an import file into rows without writing anything.
//
// The first line is a header that must mention "guest" and "table". Every
// following non-blank line is split on commas; the first field is the
// guest name and the second the table name, both trimmed and with double
// quotes removed. Each row carries its own validation errors, including
// "Guest already exists" for a name already on the list.
func (m *Manager) ParseCSV(text string) ([]model.CSVRow, error) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	header := strings.ToLower(lines[0])
	if !strings.Contains(header, "guest") || !strings.Contains(header, "table") {
		return nil, apperror.ValidationFailed("csv", msgCSVHeader)
	}

	rows := []model.CSVRow{}
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Split(line, ",")
		guestName := csvField(fields, 0)
		tableName := csvField(fields, 1)

		errs := validateGuestName(guestName)
		if tableName == "" {
			errs = append(errs, msgTableNameMissing)
		}
		if guestName != "" && m.hasGuestNamed(guestName, "") {
			errs = append(errs, msgGuestAlreadyAdded)
		}

		rows = append(rows, model.CSVRow{
			GuestName: guestName,
			TableName: tableName,
			IsValid:   len(errs) == 0,
			Errors:    append([]string{}, errs...),
		})
	}
	return rows, nil
}

func csvField(fields []string, i int) string {
	if i >= len(fields) {
		return ""
	}
	return strings.ReplaceAll(strings.TrimSpace(fields[i]), `"`, "")
}

// ImportFromCSV adds the guests of rows, creating any table it cannot find
// by name (with the default capacity). Guests are added as pending.
//
// Rows are handled independently: an invalid row or a failed write counts
// as failed and the import moves on. A row naming a guest already on the
// list counts as both a duplicate and a failure. When ctx ends mid-import
// the tally so far is returned together with the error.
func (m *Manager) ImportFromCSV(ctx context.Context, rows []model.CSVRow) (model.ImportResult, error) {
	defer m.begin()()

	result := model.ImportResult{Errors: []string{}}
	profileID := m.currentProfileID()
	if profileID == "" {
		return result, m.fail("import", apperror.Unauthorized(msgNoProfile))
	}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			m.recordImport(result)
			return result, m.fail("import", fmt.Errorf("planner: import interrupted after %d rows: %w",
				result.Success+result.Failed, err))
		}

		if !row.IsValid {
			result.Failed++
			if slices.Contains(row.Errors, msgGuestAlreadyAdded) {
				result.Duplicates++
			}
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", row.GuestName, strings.Join(row.Errors, ", ")))
			continue
		}

		// Rechecked here: the list may have changed since the preview, and
		// the same name can appear twice in one file.
		if m.hasGuestNamed(row.GuestName, "") {
			result.Failed++
			result.Duplicates++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", row.GuestName, msgGuestAlreadyAdded))
			continue
		}

		if err := m.importRow(ctx, profileID, row); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", row.GuestName, apperror.Message(err)))
			continue
		}
		result.Success++
	}

	m.recordImport(result)
	m.logger.Info("csv import finished",
		slog.Int("success", result.Success),
		slog.Int("failed", result.Failed),
		slog.Int("duplicates", result.Duplicates),
	)
	return result, nil
}

func (m *Manager) importRow(ctx context.Context, profileID string, row model.CSVRow) error {
	table, ok := m.findTableByName(row.TableName)
	if !ok {
		created, err := m.createTable(ctx, &model.Table{
			ProfileID: profileID,
			Name:      strings.TrimSpace(row.TableName),
			Capacity:  model.DefaultTableCapacity,
		})
		if err != nil {
			return err
		}
		table = *created
	}

	g, err := m.store.CreateGuest(ctx, &model.Guest{
		ProfileID: profileID,
		Name:      strings.TrimSpace(row.GuestName),
		TableID:   table.ID,
		Status:    model.StatusPending,
	})
	if err != nil {
		return fmt.Errorf("planner: importing guest: %w", err)
	}
	m.applyGuest(mirror.Insert, *g)
	return nil
}

func (m *Manager) recordImport(r model.ImportResult) {
	m.rec.RecordImportRows("success", r.Success)
	m.rec.RecordImportRows("failed", r.Failed)
	m.rec.RecordImportRows("duplicate", r.Duplicates)
}
