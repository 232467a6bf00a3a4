// Package local implements a SQL row source reading directly from a
// source platform database. Customer reads nest address sub-records
// under their parent record the way the conversion engine expects.
package local

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // database driver

	"github.com/cartmigrate/migration-core/internal/gateway"
)

// Config configures the local SQL row source.
type Config struct {
	Driver           string
	ConnectionString string

	// TablePrefix is prepended to every source table name (legacy shops
	// commonly run with a non-empty prefix).
	TablePrefix string
}

// Reader reads paginated entity rows from the source database.
type Reader struct {
	db     *sql.DB
	prefix string
}

// entityTables maps entity types to their source tables and id columns.
var entityTables = map[string]struct {
	table string
	idCol string
}{
	"customer":             {table: "customer_entity", idCol: "entity_id"},
	"customer_address":     {table: "customer_address_entity", idCol: "entity_id"},
	"category":             {table: "catalog_category_entity", idCol: "entity_id"},
	"newsletter_recipient": {table: "newsletter_subscriber", idCol: "subscriber_id"},
	"currency":             {table: "directory_currency_rate", idCol: "currency_to"},
	"manufacturer":         {table: "eav_attribute_option_value", idCol: "option_id"},
}

// NewReader opens the source database.
func NewReader(cfg *Config) (*Reader, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}
	db, err := sql.Open(driver, cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("open source database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Reader{db: db, prefix: cfg.TablePrefix}, nil
}

// Close releases database resources.
func (r *Reader) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping validates connectivity.
func (r *Reader) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Read returns one page of raw records for an entity type, ordered by
// the source id so pagination is stable across calls.
func (r *Reader) Read(ctx context.Context, req *gateway.ReadRequest) (gateway.Iterator[gateway.Record], error) {
	spec, ok := entityTables[req.Entity]
	if !ok {
		return nil, fmt.Errorf("unsupported entity: %s", req.Entity)
	}

	query := fmt.Sprintf("SELECT * FROM %s%s ORDER BY %s", r.prefix, spec.table, spec.idCol)
	if req.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", req.Limit)
	}
	if req.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", req.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.Entity, err)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("read %s columns: %w", req.Entity, err)
	}

	iter := &rowIterator{rows: rows, cols: cols}
	if req.Entity == "customer" {
		return r.withAddresses(ctx, iter)
	}
	return iter, nil
}

// withAddresses drains a customer page and attaches each customer's
// address sub-records plus the default-address markers.
func (r *Reader) withAddresses(ctx context.Context, iter *rowIterator) (gateway.Iterator[gateway.Record], error) {
	defer iter.Close()

	var customers []gateway.Record
	ids := make([]string, 0, 16)
	for iter.Next() {
		record := iter.Value()
		customers = append(customers, record)
		if id := fmt.Sprintf("%v", record["entity_id"]); id != "" {
			ids = append(ids, id)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	if len(customers) == 0 {
		return gateway.NewSliceIterator([]gateway.Record{}), nil
	}

	addresses, err := r.addressesByParent(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, customer := range customers {
		id := fmt.Sprintf("%v", customer["entity_id"])
		if addrs := addresses[id]; len(addrs) > 0 {
			customer["addresses"] = addrs
		}
	}
	return gateway.NewSliceIterator(customers), nil
}

func (r *Reader) addressesByParent(ctx context.Context, parentIDs []string) (map[string][]gateway.Record, error) {
	spec := entityTables["customer_address"]
	placeholders := make([]string, len(parentIDs))
	args := make([]any, len(parentIDs))
	for i, id := range parentIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf("SELECT * FROM %s%s WHERE parent_id IN (%s) ORDER BY %s",
		r.prefix, spec.table, strings.Join(placeholders, ","), spec.idCol)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read customer addresses: %w", err)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("read address columns: %w", err)
	}

	byParent := make(map[string][]gateway.Record)
	iter := &rowIterator{rows: rows, cols: cols}
	defer iter.Close()
	for iter.Next() {
		addr := iter.Value()
		parent := fmt.Sprintf("%v", addr["parent_id"])
		byParent[parent] = append(byParent[parent], addr)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return byParent, nil
}

// rowIterator wraps sql.Rows as gateway.Iterator.
type rowIterator struct {
	rows    *sql.Rows
	cols    []string
	current gateway.Record
	err     error
}

func (it *rowIterator) Next() bool {
	if !it.rows.Next() {
		it.err = it.rows.Err()
		return false
	}

	values := make([]any, len(it.cols))
	valuePtrs := make([]any, len(it.cols))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := it.rows.Scan(valuePtrs...); err != nil {
		it.err = err
		return false
	}

	record := make(gateway.Record, len(it.cols))
	for i, col := range it.cols {
		if b, ok := values[i].([]byte); ok {
			record[col] = string(b)
			continue
		}
		record[col] = values[i]
	}
	it.current = record
	return true
}

func (it *rowIterator) Value() gateway.Record { return it.current }
func (it *rowIterator) Err() error            { return it.err }
func (it *rowIterator) Close() error          { return it.rows.Close() }
