package models

// Section is a class group whose sessions must never overlap.
type Section struct {
	ID      string `db:"id" json:"id"`
	Name    string `db:"name" json:"name"`
	Batches int    `db:"batches" json:"batches"`
}

// Catalog bundles the entity lists a generation run consumes.
type Catalog struct {
	Faculty  []Faculty `json:"faculty"`
	Subjects []Subject `json:"subjects"`
	Sections []Section `json:"sections"`
}

// Empty reports whether any of the lists is missing.
func (c Catalog) Empty() bool {
	return len(c.Faculty) == 0 || len(c.Subjects) == 0 || len(c.Sections) == 0
}
