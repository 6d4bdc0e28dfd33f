package models

import "time"

// Course belongs to a subject and an owner. CreatedAt is written once on insert.
type Course struct {
	ID        string    `db:"id" json:"id"`
	OwnerID   string    `db:"owner_id" json:"owner_id"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	Title     string    `db:"title" json:"title"`
	Slug      string    `db:"slug" json:"slug"`
	Overview  string    `db:"overview" json:"overview"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CourseFilter narrows course listings. Results are always newest first.
type CourseFilter struct {
	OwnerID   string
	SubjectID string
	Search    string
	Page      int
	PageSize  int
}
