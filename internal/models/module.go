package models

import (
	"fmt"

	"github.com/noah-isme/course-cms-api/internal/ordering"
)

// Module is an ordered section of a course.
type Module struct {
	ID          string `db:"id" json:"id"`
	CourseID    string `db:"course_id" json:"course_id"`
	Title       string `db:"title" json:"title"`
	Description string `db:"description" json:"description"`
	Order       int    `db:"order" json:"order"`
}

// OrderScope places the module among the other modules of its course.
func (m *Module) OrderScope() ordering.Scope {
	return ordering.Scope{{Column: "course_id", Value: m.CourseID}}
}

func (m *Module) String() string {
	return fmt.Sprintf("%d. %s", m.Order, m.Title)
}
