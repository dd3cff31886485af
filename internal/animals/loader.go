package animals

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/alanorth/safari-bingo/internal/models"
	"github.com/parquet-go/parquet-go"
)

// Column names in the animal table
const (
	ColumnID         = "id"
	ColumnCommonName = "common_name"
	ColumnImage      = "image"
	ColumnCropFocus  = "vips_smartcrop"
	columnCropAlias  = "crop"
)

// parquetRow mirrors the table columns for Parquet input
type parquetRow struct {
	ID         string `parquet:"id"`
	CommonName string `parquet:"common_name"`
	Image      string `parquet:"image"`
	CropFocus  string `parquet:"vips_smartcrop,optional"`
}

// Loader handles loading of the animal table
type Loader struct {
	path string
}

// NewLoader creates a new animal table loader
func NewLoader(path string) *Loader {
	return &Loader{
		path: path,
	}
}

// Load loads and validates every record from a CSV or Parquet file
func (l *Loader) Load() ([]models.Animal, error) {
	ext := strings.ToLower(filepath.Ext(l.path))

	switch ext {
	case ".csv":
		return l.loadCSV()
	case ".parquet":
		return l.loadParquet()
	default:
		return nil, fmt.Errorf("unsupported file format: %s (supported: .csv, .parquet)", ext)
	}
}

func (l *Loader) loadCSV() ([]models.Animal, error) {
	slog.Debug("Opening CSV file", "path", l.path)

	file, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open animal table: %w", err)
	}
	defer file.Close()

	return ParseCSV(file)
}

// ParseCSV reads a header row followed by animal rows. Columns other than the known ones are ignored.
func ParseCSV(r io.Reader) ([]models.Animal, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("animal table is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols, err := indexColumns(header)
	if err != nil {
		return nil, err
	}

	var rows []rawRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse CSV: %w", err)
		}
		if isBlank(record) {
			continue
		}
		line, _ := reader.FieldPos(0)

		rows = append(rows, rawRow{
			Line:       line,
			ID:         cols.get(record, cols.id),
			CommonName: cols.get(record, cols.commonName),
			Image:      cols.get(record, cols.image),
			CropFocus:  cols.get(record, cols.cropFocus),
		})
	}

	slog.Debug("Finished reading CSV file", "total_rows", len(rows))

	return buildAnimals(rows)
}

func (l *Loader) loadParquet() ([]models.Animal, error) {
	slog.Debug("Opening Parquet file", "path", l.path)

	file, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	slog.Debug("Parquet file opened", "num_rows", pf.NumRows(), "num_row_groups", len(pf.RowGroups()))

	reader := parquet.NewGenericReader[parquetRow](pf)
	defer reader.Close()

	var rows []rawRow
	batch := make([]parquetRow, 128)
	for {
		n, err := reader.Read(batch)
		for i := 0; i < n; i++ {
			rows = append(rows, rawRow{
				Line:       len(rows) + 1,
				ID:         batch[i].ID,
				CommonName: batch[i].CommonName,
				Image:      batch[i].Image,
				CropFocus:  batch[i].CropFocus,
			})
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}

	slog.Debug("Finished reading Parquet file", "total_rows", len(rows))

	return buildAnimals(rows)
}

type columns struct {
	id, commonName, image, cropFocus int
}

func indexColumns(header []string) (columns, error) {
	cols := columns{id: -1, commonName: -1, image: -1, cropFocus: -1}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		switch name {
		case ColumnID:
			cols.id = i
		case ColumnCommonName:
			cols.commonName = i
		case ColumnImage:
			cols.image = i
		case ColumnCropFocus, columnCropAlias:
			cols.cropFocus = i
		}
	}

	var missing []string
	if cols.id < 0 {
		missing = append(missing, ColumnID)
	}
	if cols.commonName < 0 {
		missing = append(missing, ColumnCommonName)
	}
	if cols.image < 0 {
		missing = append(missing, ColumnImage)
	}
	if cols.cropFocus < 0 {
		missing = append(missing, ColumnCropFocus)
	}
	if len(missing) > 0 {
		return cols, fmt.Errorf("animal table is missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

func (c columns) get(record []string, idx int) string {
	if idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func isBlank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
