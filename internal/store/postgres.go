package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/gyaneshwarpardhi/livefeed/internal/filter"
	"github.com/gyaneshwarpardhi/livefeed/internal/source"
)

// Postgres reads event tables through GORM.
type Postgres struct {
	db *gorm.DB
}

// NewPostgres opens and pings a PostgreSQL connection.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres handle: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	slog.Info("connected to postgres")
	return &Postgres{db: db}, nil
}

func (p *Postgres) Fetch(ctx context.Context, q Query) ([]source.Row, error) {
	tx := p.db.WithContext(ctx).Table(q.Entity)
	col := clause.Column{Name: q.TimeColumn}
	if !q.Since.IsZero() {
		tx = tx.Where(clause.Gt{Column: col, Value: q.Since})
	}
	if len(q.Where) > 0 {
		sql, vars, err := sqlConjunction(q.Where)
		if err != nil {
			return nil, err
		}
		tx = tx.Where(sql, vars...)
	}
	tx = tx.Order(clause.OrderByColumn{Column: col, Desc: true})
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var raw []map[string]any
	if err := tx.Find(&raw).Error; err != nil {
		return nil, fmt.Errorf("postgres read %s: %w", q.Entity, err)
	}
	rows := make([]source.Row, len(raw))
	for i, r := range raw {
		rows[i] = source.Row(r)
	}

	for _, ref := range q.Relations {
		ids := foreignKeys(rows, ref.Column)
		if len(ids) == 0 {
			continue
		}
		var profiles []map[string]any
		err := p.db.WithContext(ctx).Table(source.ProfileEntity).
			Where(clause.IN{Column: clause.Column{Name: "id"}, Values: ids}).
			Find(&profiles).Error
		if err != nil {
			return nil, fmt.Errorf("postgres read %s for %s.%s: %w", source.ProfileEntity, q.Entity, ref.Column, err)
		}
		attach(rows, ref, index(profiles))
	}
	return rows, nil
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// sqlConjunction renders constraints as one parenthesised SQL condition.
// Columns are passed as clause.Column vars so GORM quotes them.
func sqlConjunction(cs []filter.Constraint) (string, []any, error) {
	parts := make([]string, 0, len(cs))
	var vars []any
	for _, c := range cs {
		sql, v, err := sqlConstraint(c)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		vars = append(vars, v...)
	}
	return "(" + strings.Join(parts, " AND ") + ")", vars, nil
}

func sqlConstraint(c filter.Constraint) (string, []any, error) {
	switch {
	case c.Any != nil:
		parts := make([]string, 0, len(c.Any))
		var vars []any
		for _, alt := range c.Any {
			sql, v, err := sqlConjunction(alt)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sql)
			vars = append(vars, v...)
		}
		return "(" + strings.Join(parts, " OR ") + ")", vars, nil
	case c.Not != nil:
		sql, vars, err := sqlConjunction(c.Not)
		if err != nil {
			return "", nil, err
		}
		// NULL comparisons count as false, as they do in filter.Evaluate.
		return "NOT COALESCE(" + sql + ", FALSE)", vars, nil
	}

	col := clause.Column{Name: c.Column}
	if c.Value == nil {
		switch c.Op {
		case filter.OpEq:
			return "? IS NULL", []any{col}, nil
		case filter.OpNeq:
			return "? IS NOT NULL", []any{col}, nil
		}
		return "FALSE", nil, nil
	}
	switch c.Op {
	case filter.OpEq:
		return "? = ?", []any{col, c.Value}, nil
	case filter.OpNeq:
		return "(? <> ? OR ? IS NULL)", []any{col, c.Value, col}, nil
	case filter.OpGt:
		return "? > ?", []any{col, c.Value}, nil
	case filter.OpGte:
		return "? >= ?", []any{col, c.Value}, nil
	case filter.OpLt:
		return "? < ?", []any{col, c.Value}, nil
	case filter.OpLte:
		return "? <= ?", []any{col, c.Value}, nil
	case filter.OpContains:
		return "? LIKE ?", []any{col, "%" + likeEscaper.Replace(fmt.Sprint(c.Value)) + "%"}, nil
	}
	return "", nil, fmt.Errorf("postgres: unsupported constraint %s", c)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func index(profiles []map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(profiles))
	for _, p := range profiles {
		out[fmt.Sprint(p["id"])] = p
	}
	return out
}
