package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"VapeShelf/internal/catalog/migrations"
)

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 3 * time.Second

	pgForeignKeyViolation = "23503"
)

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// SQLStore keeps the catalog in Postgres (pgx) or SQLite (modernc). Queries
// are written with "?" placeholders and rebound for the driver in use.
type SQLStore struct {
	db    *sqlx.DB
	newID func() string
	now   func() time.Time
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, newID: uuid.NewString, now: time.Now}
}

// OpenSQLStore connects to dsn and migrates the schema. "sqlite:" and "file:"
// DSNs open SQLite; anything else is handed to pgx.
func OpenSQLStore(ctx context.Context, dsn string) (*SQLStore, error) {
	driver, dialect, source := resolveDSN(dsn)

	db, err := sqlx.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}

	if err := migrations.Up(ctx, db.DB, dialect); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return NewSQLStore(db), nil
}

func resolveDSN(dsn string) (driver, dialect, source string) {
	for _, prefix := range []string{"sqlite:///", "sqlite://", "sqlite:"} {
		if rest, ok := strings.CutPrefix(dsn, prefix); ok {
			return "sqlite", "sqlite3", rest
		}
	}
	if strings.HasPrefix(dsn, "file:") {
		return "sqlite", "sqlite3", dsn
	}
	return "pgx", "postgres", dsn
}

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return s.db.PingContext(ctx)
	})
}

func (s *SQLStore) ListProducts(ctx context.Context) ([]Product, error) {
	var out []Product

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		out = make([]Product, 0, 16)
		if err := s.db.SelectContext(ctx, &out, `
			SELECT id, name, category, price, description, image_key
			FROM products
			ORDER BY created_ns ASC, id ASC
		`); err != nil {
			return err
		}

		var flavors []Flavor
		if err := s.db.SelectContext(ctx, &flavors, `
			SELECT id, product_id, name, nicotine_mg, color_hex, stock, ordinal
			FROM flavors
			ORDER BY product_id ASC, ordinal ASC, id ASC
		`); err != nil {
			return err
		}

		byProduct := make(map[string][]Flavor, len(out))
		for _, f := range flavors {
			byProduct[f.ProductID] = append(byProduct[f.ProductID], f)
		}
		for i := range out {
			out[i].Flavors = byProduct[out[i].ID]
			if out[i].Flavors == nil {
				out[i].Flavors = []Flavor{}
			}
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLStore) CreateProduct(ctx context.Context, in NewProduct) (Product, error) {
	p := Product{ID: s.newID(), Flavors: make([]Flavor, 0, len(in.Flavors))}
	p.apply(in.ProductFields)

	err := s.inTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, s.db.Rebind(`
			INSERT INTO products (id, name, category, price, description, image_key, created_ns)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`), p.ID, p.Name, p.Category, p.Price, p.Description, p.ImageKey, s.now().UnixNano()); err != nil {
			return err
		}

		for i, ff := range in.Flavors {
			f := newFlavor(s.newID(), p.ID, ff, i)
			if err := s.insertFlavor(ctx, tx, f); err != nil {
				return err
			}
			p.Flavors = append(p.Flavors, f)
		}
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

func (s *SQLStore) UpdateProduct(ctx context.Context, id string, in ProductFields) (Product, error) {
	var p Product

	err := s.inTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		sets, args := productAssignments(in)
		if len(sets) > 0 {
			res, err := tx.ExecContext(ctx,
				s.db.Rebind("UPDATE products SET "+strings.Join(sets, ", ")+" WHERE id = ?"),
				append(args, id)...)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return ErrProductNotFound
			}
		}

		var err error
		p, err = s.getProduct(ctx, tx, id)
		return err
	})
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

func (s *SQLStore) DeleteProduct(ctx context.Context, id string) error {
	return s.inTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, s.db.Rebind(`DELETE FROM flavors WHERE product_id = ?`), id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, s.db.Rebind(`DELETE FROM products WHERE id = ?`), id)
		return requireRow(res, err, ErrProductNotFound)
	})
}

func (s *SQLStore) AddFlavor(ctx context.Context, productID string, in FlavorFields) (Flavor, error) {
	var f Flavor

	err := s.inTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		var exists int
		err := tx.GetContext(ctx, &exists, s.db.Rebind(`SELECT COUNT(*) FROM products WHERE id = ?`), productID)
		if err != nil {
			return err
		}
		if exists == 0 {
			return ErrProductNotFound
		}

		var last int
		if err := tx.GetContext(ctx, &last, s.db.Rebind(`
			SELECT COALESCE(MAX(ordinal), -1) FROM flavors WHERE product_id = ?
		`), productID); err != nil {
			return err
		}

		f = newFlavor(s.newID(), productID, in, last+1)
		return s.insertFlavor(ctx, tx, f)
	})
	if isForeignKeyViolation(err) {
		return Flavor{}, ErrProductNotFound
	}
	if err != nil {
		return Flavor{}, err
	}
	return f, nil
}

func (s *SQLStore) UpdateFlavor(ctx context.Context, id string, in FlavorFields) (Flavor, error) {
	var f Flavor

	err := s.inTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		sets, args := flavorAssignments(in)
		if len(sets) > 0 {
			res, err := tx.ExecContext(ctx,
				s.db.Rebind("UPDATE flavors SET "+strings.Join(sets, ", ")+" WHERE id = ?"),
				append(args, id)...)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return ErrFlavorNotFound
			}
		}

		err := tx.GetContext(ctx, &f, s.db.Rebind(`
			SELECT id, product_id, name, nicotine_mg, color_hex, stock, ordinal
			FROM flavors
			WHERE id = ?
		`), id)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrFlavorNotFound
		}
		return err
	})
	if err != nil {
		return Flavor{}, err
	}
	return f, nil
}

func (s *SQLStore) DeleteFlavor(ctx context.Context, id string) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM flavors WHERE id = ?`), id)
		return requireRow(res, err, ErrFlavorNotFound)
	})
}

func (s *SQLStore) getProduct(ctx context.Context, q sqlx.QueryerContext, id string) (Product, error) {
	var p Product
	err := sqlx.GetContext(ctx, q, &p, s.db.Rebind(`
		SELECT id, name, category, price, description, image_key
		FROM products
		WHERE id = ?
	`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		return Product{}, err
	}

	p.Flavors = []Flavor{}
	if err := sqlx.SelectContext(ctx, q, &p.Flavors, s.db.Rebind(`
		SELECT id, product_id, name, nicotine_mg, color_hex, stock, ordinal
		FROM flavors
		WHERE product_id = ?
		ORDER BY ordinal ASC, id ASC
	`), id); err != nil {
		return Product{}, err
	}
	return p, nil
}

func (s *SQLStore) insertFlavor(ctx context.Context, tx *sqlx.Tx, f Flavor) error {
	_, err := tx.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO flavors (id, product_id, name, nicotine_mg, color_hex, stock, ordinal)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), f.ID, f.ProductID, f.Name, f.NicotineMg, f.ColorHex, f.Stock, f.Ordinal)
	return err
}

func (s *SQLStore) inTx(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		opts := &sql.TxOptions{}
		if s.db.DriverName() == "pgx" {
			opts.Isolation = sql.LevelReadCommitted
		}
		tx, err := s.db.BeginTxx(ctx, opts)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if err := fn(ctx, tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func productAssignments(in ProductFields) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if in.Name != nil {
		add("name", *in.Name)
	}
	if in.Category != nil {
		add("category", *in.Category)
	}
	if in.Price != nil {
		add("price", *in.Price)
	}
	if in.Description != nil {
		add("description", *in.Description)
	}
	if in.ImageKey != nil {
		add("image_key", *in.ImageKey)
	}
	return sets, args
}

func flavorAssignments(in FlavorFields) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if in.Name != nil {
		add("name", *in.Name)
	}
	if in.NicotineMg != nil {
		add("nicotine_mg", *in.NicotineMg)
	}
	if in.ColorHex != nil {
		add("color_hex", *in.ColorHex)
	}
	if in.Stock != nil {
		add("stock", *in.Stock)
	}
	return sets, args
}

func requireRow(res sql.Result, err error, notFound error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}
