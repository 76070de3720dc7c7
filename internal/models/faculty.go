package models

// Faculty is an instructor. ID is the unique key.
type Faculty struct {
	ID              string   `db:"id" json:"id"`
	Name            string   `db:"name" json:"name"`
	TotalCredits    int      `db:"total_credits" json:"total_credits"`
	ResearchCredits int      `db:"research_credits" json:"research_credits"`
	Subjects        []string `db:"-" json:"subjects"`
}

// MaxTeachingCredits is the teaching capacity left after research.
func (f *Faculty) MaxTeachingCredits() int {
	return f.TotalCredits - f.ResearchCredits
}

// Teaches reports whether the faculty is qualified for the subject code.
func (f *Faculty) Teaches(code string) bool {
	for _, c := range f.Subjects {
		if c == code {
			return true
		}
	}
	return false
}
