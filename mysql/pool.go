// Package mysql wraps database/sql for the audit-log example, which
// issues one fixed INSERT per framed message — nothing here builds SQL
// dynamically, so the query builder, reflection mapper and transaction
// wrapper the teacher built around this pool are not needed (DESIGN.md).
package mysql

import (
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

type PoolOption struct {
	// Dsn follows the driver's own format, e.g.
	// "user:pass@tcp(127.0.0.1:3306)/dbname".
	Dsn             string `yaml:"dsn" json:"dsn"`
	MaxConnLifetime int    `yaml:"max_conn_lifetime" json:"max_conn_lifetime"` // seconds
	MaxOpenConns    int    `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns"`
}

type ExecResult struct {
	LastInsertId int64
	AffectedRows int64
}

type Pool struct {
	db *sql.DB
}

func NewPool(option *PoolOption) (*Pool, error) {
	db, err := sql.Open("mysql", option.Dsn)
	if err != nil {
		return nil, err
	}

	db.SetConnMaxLifetime(time.Duration(option.MaxConnLifetime) * time.Second)
	db.SetMaxIdleConns(option.MaxIdleConns)
	db.SetMaxOpenConns(option.MaxOpenConns)

	return &Pool{db: db}, nil
}

func (p *Pool) Db() *sql.DB {
	return p.db
}

func (p *Pool) Query(sqlStr string, args ...interface{}) (*sql.Rows, error) {
	return p.db.Query(sqlStr, args...)
}

// Execute runs one fixed statement and reports affected rows and the
// last insert id, folding the teacher's ExecResult shape over the
// stdlib sql.Result so callers don't repeat the two error-checked calls.
func (p *Pool) Execute(sqlStr string, args ...interface{}) (*ExecResult, error) {
	res, err := p.db.Exec(sqlStr, args...)
	if err != nil {
		return nil, err
	}

	result := &ExecResult{}
	result.AffectedRows, err = res.RowsAffected()
	if err != nil {
		return nil, err
	}

	result.LastInsertId, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (p *Pool) Close() error {
	return p.db.Close()
}
