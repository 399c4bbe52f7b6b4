// Package license implements data-license gating: matches (dataset,
// provider, as_of) to the newest active license and enforces
// usage-scope/export/row-cap rules, always returning a watermark.
package license

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/trading-assistant/internal/database"
	"github.com/aristath/trading-assistant/internal/domain"
)

const defaultWatermark = "For Research Only"

// Store persists License rows, one SQLite file for the whole service.
type Store struct {
	db *database.DB
}

func NewStore(db *database.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate license store: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS licenses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			dataset_name TEXT NOT NULL,
			provider TEXT NOT NULL,
			usage_scopes TEXT NOT NULL DEFAULT '[]',
			allow_export INTEGER NOT NULL DEFAULT 0,
			max_export_rows INTEGER,
			watermark TEXT NOT NULL DEFAULT 'For Research Only',
			valid_from TEXT NOT NULL,
			valid_to TEXT
		)
	`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_license_lookup ON licenses(dataset_name, provider, valid_from)`)
	return err
}

// Register inserts a new license row.
func (s *Store) Register(lic domain.License) (int64, error) {
	scopesJSON, err := json.Marshal(lic.UsageScopes)
	if err != nil {
		return 0, err
	}
	var validTo any
	if lic.ValidTo != nil {
		validTo = lic.ValidTo.UTC().Format(time.RFC3339)
	}
	watermark := lic.Watermark
	if watermark == "" {
		watermark = defaultWatermark
	}
	res, err := s.db.Exec(
		`INSERT INTO licenses(dataset_name, provider, usage_scopes, allow_export, max_export_rows, watermark, valid_from, valid_to)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		lic.DatasetName, lic.Provider, string(scopesJSON), boolToInt(lic.AllowExport), lic.MaxExportRows,
		watermark, lic.ValidFrom.UTC().Format(time.RFC3339), validTo,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// LatestActive returns the newest-id license matching (dataset, provider)
// whose validity window covers asOf, or nil.
func (s *Store) LatestActive(datasetName, provider string, asOf time.Time) (*domain.License, error) {
	asOfStr := asOf.UTC().Format(time.RFC3339)
	row := s.db.QueryRow(
		`SELECT id, dataset_name, provider, usage_scopes, allow_export, max_export_rows, watermark, valid_from, valid_to
		 FROM licenses
		 WHERE dataset_name = ? AND provider = ? AND valid_from <= ? AND (valid_to IS NULL OR valid_to >= ?)
		 ORDER BY id DESC LIMIT 1`,
		datasetName, provider, asOfStr, asOfStr,
	)
	lic, err := scanLicense(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return lic, nil
}

func scanLicense(row *sql.Row) (*domain.License, error) {
	var (
		lic                              domain.License
		scopesJSON                       string
		allowExportInt                   int
		maxExportRows                    sql.NullInt64
		validFromStr                     string
		validToStr                       sql.NullString
	)
	if err := row.Scan(&lic.ID, &lic.DatasetName, &lic.Provider, &scopesJSON, &allowExportInt,
		&maxExportRows, &lic.Watermark, &validFromStr, &validToStr); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(scopesJSON), &lic.UsageScopes); err != nil {
		return nil, err
	}
	lic.AllowExport = allowExportInt != 0
	if maxExportRows.Valid {
		v := int(maxExportRows.Int64)
		lic.MaxExportRows = &v
	}
	validFrom, err := time.Parse(time.RFC3339, validFromStr)
	if err != nil {
		return nil, err
	}
	lic.ValidFrom = validFrom
	if validToStr.Valid {
		vt, err := time.Parse(time.RFC3339, validToStr.String)
		if err != nil {
			return nil, err
		}
		lic.ValidTo = &vt
	}
	return &lic, nil
}

// List returns licenses optionally filtered by dataset/provider.
func (s *Store) List(datasetName, provider string, activeOnly bool, limit int, asOf time.Time) ([]domain.License, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	query := strings.Builder{}
	query.WriteString(`SELECT id, dataset_name, provider, usage_scopes, allow_export, max_export_rows, watermark, valid_from, valid_to FROM licenses WHERE 1=1`)
	args := []any{}
	if datasetName != "" {
		query.WriteString(" AND dataset_name = ?")
		args = append(args, datasetName)
	}
	if provider != "" {
		query.WriteString(" AND provider = ?")
		args = append(args, provider)
	}
	if activeOnly {
		asOfStr := asOf.UTC().Format(time.RFC3339)
		query.WriteString(" AND valid_from <= ? AND (valid_to IS NULL OR valid_to >= ?)")
		args = append(args, asOfStr, asOfStr)
	}
	query.WriteString(" ORDER BY id DESC LIMIT ?")
	args = append(args, limit)

	rows, err := s.db.Query(query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.License
	for rows.Next() {
		var (
			lic                              domain.License
			scopesJSON                       string
			allowExportInt                   int
			maxExportRows                    sql.NullInt64
			validFromStr                     string
			validToStr                       sql.NullString
		)
		if err := rows.Scan(&lic.ID, &lic.DatasetName, &lic.Provider, &scopesJSON, &allowExportInt,
			&maxExportRows, &lic.Watermark, &validFromStr, &validToStr); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(scopesJSON), &lic.UsageScopes); err != nil {
			return nil, err
		}
		lic.AllowExport = allowExportInt != 0
		if maxExportRows.Valid {
			v := int(maxExportRows.Int64)
			lic.MaxExportRows = &v
		}
		if t, err := time.Parse(time.RFC3339, validFromStr); err == nil {
			lic.ValidFrom = t
		}
		if validToStr.Valid {
			if t, err := time.Parse(time.RFC3339, validToStr.String); err == nil {
				lic.ValidTo = &t
			}
		}
		out = append(out, lic)
	}
	return out, rows.Err()
}
