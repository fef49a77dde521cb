package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/yourorg/catalog-sync/internal/catalog"
)

// Store is the system of record. It is authoritative: the search and vector
// indexes are derived from it and may transiently lag.
type Store struct{ DB *sql.DB }

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil { return nil, err }
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{DB: db}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

func (s *Store) Close() error { return s.DB.Close() }

func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id                 BIGINT,
			name               TEXT,
			sku                TEXT NOT NULL,
			price              NUMERIC,
			thumbnail          TEXT,
			images             JSONB,
			category_id        JSONB,
			weight             NUMERIC,
			short_description  TEXT,
			description        TEXT,
			salient_features   TEXT,
			services           JSONB,
			attributes         JSONB,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_products_sku ON products(sku);`,
		`CREATE TABLE IF NOT EXISTS services (
			id          BIGINT NOT NULL,
			created_at  TIMESTAMPTZ,
			updated_at  TIMESTAMPTZ,
			code        TEXT,
			description TEXT,
			menu_code   TEXT,
			name        TEXT,
			"order"     BIGINT,
			price       NUMERIC,
			type        TEXT,
			status      TEXT,
			unit        TEXT,
			value_type  TEXT,
			vat         NUMERIC
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_services_id ON services(id);`,
	}
	for _, q := range stmts {
		if _, err := s.DB.ExecContext(ctx, q); err != nil { return err }
	}
	return nil
}

var productColumns = []string{
	"id", "name", "sku", "price", "thumbnail", "images", "category_id",
	"weight", "short_description", "description", "salient_features",
	"services", "attributes",
}

var serviceColumns = []string{
	"id", "created_at", "updated_at", "code", "description", "menu_code",
	"name", "order", "price", "type", "status", "unit", "value_type", "vat",
}

// jsonColumns are stored as JSONB and marshaled from whatever shape the
// payload carried.
var jsonColumns = map[string]bool{
	"images": true, "category_id": true, "services": true, "attributes": true,
}

// payloadAliases maps a column to the camelCase key some producers use.
var payloadAliases = map[string]string{
	"category_id":       "categoryId",
	"short_description": "shortDescription",
	"salient_features":  "salientFeatures",
	"menu_code":         "menuCode",
	"value_type":        "valueType",
}

// ProductBySKU returns the stored row as a record for change comparison.
// The second return is false when no row exists.
func (s *Store) ProductBySKU(ctx context.Context, sku string) (catalog.Record, bool, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, name, sku, price, thumbnail, images, category_id, weight,
		       short_description, description, salient_features, services, attributes
		FROM products WHERE sku = $1 LIMIT 1`, sku)

	var (
		id                              sql.NullInt64
		name, skuCol, thumbnail         sql.NullString
		price, weight                   sql.NullFloat64
		images, categoryID, services    []byte
		shortDesc, desc, salient        sql.NullString
		attributes                      []byte
	)
	err := row.Scan(&id, &name, &skuCol, &price, &thumbnail, &images, &categoryID,
		&weight, &shortDesc, &desc, &salient, &services, &attributes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: product by sku: %w", err)
	}

	rec := catalog.Record{}
	putInt(rec, "id", id)
	putString(rec, "name", name)
	putString(rec, "sku", skuCol)
	putFloat(rec, "price", price)
	putString(rec, "thumbnail", thumbnail)
	putJSON(rec, "images", images)
	putJSON(rec, "category_id", categoryID)
	putFloat(rec, "weight", weight)
	putString(rec, "short_description", shortDesc)
	putString(rec, "description", desc)
	putString(rec, "salient_features", salient)
	putJSON(rec, "services", services)
	putJSON(rec, "attributes", attributes)
	return rec, true, nil
}

// ServiceByID returns the stored service row as a record.
func (s *Store) ServiceByID(ctx context.Context, id string) (catalog.Record, bool, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, created_at, updated_at, code, description, menu_code, name,
		       "order", price, type, status, unit, value_type, vat
		FROM services WHERE id = $1 LIMIT 1`, id)

	var (
		idCol, order                          sql.NullInt64
		createdAt, updatedAt                  sql.NullTime
		code, desc, menuCode, name            sql.NullString
		price, vat                            sql.NullFloat64
		typ, status, unit, valueType          sql.NullString
	)
	err := row.Scan(&idCol, &createdAt, &updatedAt, &code, &desc, &menuCode,
		&name, &order, &price, &typ, &status, &unit, &valueType, &vat)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: service by id: %w", err)
	}

	rec := catalog.Record{}
	putInt(rec, "id", idCol)
	putTime(rec, "created_at", createdAt)
	putTime(rec, "updated_at", updatedAt)
	putString(rec, "code", code)
	putString(rec, "description", desc)
	putString(rec, "menu_code", menuCode)
	putString(rec, "name", name)
	putInt(rec, "order", order)
	putFloat(rec, "price", price)
	putString(rec, "type", typ)
	putString(rec, "status", status)
	putString(rec, "unit", unit)
	putString(rec, "value_type", valueType)
	putFloat(rec, "vat", vat)
	return rec, true, nil
}

// UpsertProducts writes the batch in one statement keyed by sku; on conflict
// every tracked column is overwritten. The statement is atomic per
// invocation but is not linked to the derived-store writes that follow.
func (s *Store) UpsertProducts(ctx context.Context, records []catalog.Record) error {
	if len(records) == 0 {
		return nil
	}
	var (
		rows []string
		args []any
	)
	for _, rec := range records {
		ph := make([]string, 0, len(productColumns))
		for _, col := range productColumns {
			args = append(args, columnValue(rec, col))
			ph = append(ph, fmt.Sprintf("$%d", len(args)))
		}
		rows = append(rows, "("+strings.Join(ph, ",")+")")
	}
	q := `
		INSERT INTO products
			(id, name, sku, price, thumbnail, images, category_id, weight,
			 short_description, description, salient_features, services, attributes)
		VALUES ` + strings.Join(rows, ",") + `
		ON CONFLICT (sku) DO UPDATE SET
			id = EXCLUDED.id,
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			thumbnail = EXCLUDED.thumbnail,
			images = EXCLUDED.images,
			category_id = EXCLUDED.category_id,
			weight = EXCLUDED.weight,
			short_description = EXCLUDED.short_description,
			description = EXCLUDED.description,
			salient_features = EXCLUDED.salient_features,
			services = EXCLUDED.services,
			attributes = EXCLUDED.attributes,
			updated_at = now()`
	if _, err := s.DB.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("store: upsert products: %w", err)
	}
	return nil
}

// UpsertServices mirrors UpsertProducts for the services table, keyed by id.
func (s *Store) UpsertServices(ctx context.Context, records []catalog.Record) error {
	if len(records) == 0 {
		return nil
	}
	var (
		rows []string
		args []any
	)
	for _, rec := range records {
		ph := make([]string, 0, len(serviceColumns))
		for _, col := range serviceColumns {
			args = append(args, columnValue(rec, col))
			ph = append(ph, fmt.Sprintf("$%d", len(args)))
		}
		rows = append(rows, "("+strings.Join(ph, ",")+")")
	}
	q := `
		INSERT INTO services
			(id, created_at, updated_at, code, description, menu_code, name,
			 "order", price, type, status, unit, value_type, vat)
		VALUES ` + strings.Join(rows, ",") + `
		ON CONFLICT (id) DO UPDATE SET
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at,
			code = EXCLUDED.code,
			description = EXCLUDED.description,
			menu_code = EXCLUDED.menu_code,
			name = EXCLUDED.name,
			"order" = EXCLUDED."order",
			price = EXCLUDED.price,
			type = EXCLUDED.type,
			status = EXCLUDED.status,
			unit = EXCLUDED.unit,
			value_type = EXCLUDED.value_type,
			vat = EXCLUDED.vat`
	if _, err := s.DB.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("store: upsert services: %w", err)
	}
	return nil
}

func (s *Store) DeleteProductBySKU(ctx context.Context, sku string) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM products WHERE sku = $1`, sku); err != nil {
		return fmt.Errorf("store: delete product %s: %w", sku, err)
	}
	return nil
}

func (s *Store) DeleteServiceByID(ctx context.Context, id string) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM services WHERE id = $1`, id); err != nil {
		return fmt.Errorf("store: delete service %s: %w", id, err)
	}
	return nil
}

// columnValue extracts the payload value for a column, honoring camelCase
// aliases and marshaling JSONB columns.
func columnValue(rec catalog.Record, col string) any {
	v, ok := rec[col]
	if !ok {
		if alias, has := payloadAliases[col]; has {
			v = rec[alias]
		}
	}
	if jsonColumns[col] {
		if v == nil {
			v = []any{}
		}
		b, err := json.Marshal(v)
		if err != nil {
			return []byte("[]")
		}
		return b
	}
	return v
}

func putInt(rec catalog.Record, key string, v sql.NullInt64) {
	if v.Valid { rec[key] = v.Int64 }
}

func putFloat(rec catalog.Record, key string, v sql.NullFloat64) {
	if v.Valid { rec[key] = v.Float64 }
}

func putString(rec catalog.Record, key string, v sql.NullString) {
	if v.Valid { rec[key] = v.String }
}

func putTime(rec catalog.Record, key string, v sql.NullTime) {
	if v.Valid { rec[key] = v.Time }
}

func putJSON(rec catalog.Record, key string, raw []byte) {
	if len(raw) == 0 { return }
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		rec[key] = string(raw)
		return
	}
	rec[key] = v
}
