// Package inmemdb provides in-memory repository implementations for tests.
package inmemdb

import (
	"context"
	"sync"

	"github.com/nextcentury/backend/core"
	"github.com/nextcentury/backend/core/enrollment"
	"github.com/nextcentury/backend/core/school"
	"github.com/nextcentury/backend/core/user"
)

type (
	DB struct {
		txMu sync.Mutex // serializes Atomic units

		user       *userTable
		enrollment *enrollmentTable
		school     *schoolTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	enrollmentTable struct {
		sync.RWMutex
		applications map[string]*enrollment.Application
		tokens       map[string]*enrollment.SignupToken
		grades       map[string]string // name -> id
	}

	schoolTable struct {
		sync.RWMutex
		grades      map[string]*school.Grade
		subjects    map[string]*school.Subject
		lessons     map[string]*school.Lesson
		assignments map[string]*school.Assignment
		resources   map[string]*school.Resource
	}
)

var _ core.DB = (*DB)(nil)

func Open() (*DB, error) {
	db := &DB{
		user: &userTable{table: make(map[string]*user.User)},
		enrollment: &enrollmentTable{
			applications: make(map[string]*enrollment.Application),
			tokens:       make(map[string]*enrollment.SignupToken),
			grades:       make(map[string]string),
		},
		school: &schoolTable{
			grades:      make(map[string]*school.Grade),
			subjects:    make(map[string]*school.Subject),
			lessons:     make(map[string]*school.Lesson),
			assignments: make(map[string]*school.Assignment),
			resources:   make(map[string]*school.Resource),
		},
	}
	return db, nil
}

// Atomic serializes the unit against other units and restores the pre-unit
// state when fn fails, mirroring transaction rollback.
func (db *DB) Atomic(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	users := copyTable(db.user.table)
	apps := copyTable(db.enrollment.applications)
	tokens := copyTable(db.enrollment.tokens)

	if err := fn(nil); err != nil {
		db.user.table = users
		db.enrollment.applications = apps
		db.enrollment.tokens = tokens
		return err
	}
	return nil
}

func copyTable[T any](src map[string]*T) map[string]*T {
	dst := make(map[string]*T, len(src))
	for k, v := range src {
		cp := *v
		dst[k] = &cp
	}
	return dst
}
