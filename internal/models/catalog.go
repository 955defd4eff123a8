package models

// The reference catalog is maintained outside this service; ids are read
// here for validation and display only.

// Department groups classes under an academic track.
type Department struct {
	ID   string `db:"id" json:"id"`
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`
}

// Class is a grade level within a department.
type Class struct {
	ID           string `db:"id" json:"id"`
	DepartmentID string `db:"department_id" json:"department_id"`
	Name         string `db:"name" json:"name"`
}

// Section is a roster subdivision of a class.
type Section struct {
	ID      string `db:"id" json:"id"`
	ClassID string `db:"class_id" json:"class_id"`
	Name    string `db:"name" json:"name"`
}

// Halaqah is a small instructional circle, finer-grained than a section,
// used in memorization-focused tracks.
type Halaqah struct {
	ID           string `db:"id" json:"id"`
	DepartmentID string `db:"department_id" json:"department_id"`
	Name         string `db:"name" json:"name"`
	TeacherName  string `db:"teacher_name" json:"teacher_name"`
}
