package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-cms-api/internal/models"
)

const moduleMaxQuery = `SELECT MAX("order") FROM "modules" WHERE "course_id" = $1`

func intPtr(v int) *int { return &v }

func TestModuleRepositoryCreateAssignsNextOrder(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewModuleRepository(db, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(moduleMaxQuery)).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(2))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO modules (id, course_id, title, description, "order")`)).
		WithArgs(sqlmock.AnyArg(), "c1", "Vectors", "", 3).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	module := &models.Module{CourseID: "c1", Title: "Vectors"}
	require.NoError(t, repo.Create(context.Background(), module, nil))
	assert.Equal(t, 3, module.Order)
	assert.NotEmpty(t, module.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestModuleRepositoryCreateFirstInCourse(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewModuleRepository(db, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(moduleMaxQuery)).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))
	mock.ExpectExec("INSERT INTO modules").
		WithArgs(sqlmock.AnyArg(), "c1", "Intro", "Welcome", 0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	module := &models.Module{CourseID: "c1", Title: "Intro", Description: "Welcome"}
	require.NoError(t, repo.Create(context.Background(), module, nil))
	assert.Equal(t, 0, module.Order)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestModuleRepositoryCreateExplicitOrderSkipsLookup(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewModuleRepository(db, nil)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO modules").
		WithArgs(sqlmock.AnyArg(), "c1", "Appendix", "", 10).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	module := &models.Module{CourseID: "c1", Title: "Appendix"}
	require.NoError(t, repo.Create(context.Background(), module, intPtr(10)))
	assert.Equal(t, 10, module.Order)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestModuleRepositoryCreateRollsBackOnInsertFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewModuleRepository(db, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(moduleMaxQuery)).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(0))
	mock.ExpectExec("INSERT INTO modules").WillReturnError(errors.New("insert failed"))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Module{CourseID: "c1", Title: "Broken"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create module")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestModuleRepositoryCreateRollsBackOnLookupFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewModuleRepository(db, nil)

	lookupErr := errors.New("connection reset")
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(moduleMaxQuery)).WillReturnError(lookupErr)
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Module{CourseID: "c1", Title: "Broken"}, nil)
	assert.ErrorIs(t, err, lookupErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestModuleRepositoryListByCourse(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewModuleRepository(db, nil)

	rows := sqlmock.NewRows([]string{"id", "course_id", "title", "description", "order"}).
		AddRow("m1", "c1", "Intro", "", 0).
		AddRow("m2", "c1", "Vectors", "", 1)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, course_id, title, description, "order" FROM modules WHERE course_id = $1 ORDER BY "order" ASC, id ASC`)).
		WithArgs("c1").
		WillReturnRows(rows)

	modules, err := repo.ListByCourse(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, modules, 2)
	assert.Equal(t, models.Module{ID: "m2", CourseID: "c1", Title: "Vectors", Order: 1}, modules[1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestModuleRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewModuleRepository(db, nil)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE modules SET title = $1, description = $2, "order" = $3 WHERE id = $4`)).
		WithArgs("Intro", "Start here", 5, "m1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), &models.Module{ID: "m1", CourseID: "c1", Title: "Intro", Description: "Start here", Order: 5})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestModuleRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewModuleRepository(db, nil)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "modules" WHERE id = $1`)).
		WithArgs("m1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "m1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestModuleRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewModuleRepository(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, course_id, title, description, "order" FROM modules WHERE id = $1`)).
		WithArgs("m1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "course_id", "title", "description", "order"}).
			AddRow("m1", "c1", "Intro", "Start here", 7))

	module, err := repo.FindByID(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, models.Module{ID: "m1", CourseID: "c1", Title: "Intro", Description: "Start here", Order: 7}, *module)
	assert.NoError(t, mock.ExpectationsWereMet())
}
