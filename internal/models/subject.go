package models

import "strings"

// Subject is a course taught to every section. Code is the unique key.
type Subject struct {
	Code    string `db:"code" json:"code"`
	Name    string `db:"name" json:"name"`
	Lab     bool   `db:"is_lab" json:"is_lab"`
	Credits int    `db:"credits" json:"credits"`
}

// ContactHours returns the weekly hours the subject needs: one per credit for
// theory, two per credit for labs.
func (s Subject) ContactHours() int {
	if s.Lab {
		return s.Credits * 2
	}
	return s.Credits
}

// TheoryCode returns the code of the theory subject a lab belongs to.
func (s Subject) TheoryCode() string {
	if !s.Lab {
		return s.Code
	}
	return strings.TrimSuffix(s.Code, LabSuffix)
}

// UnitCredit is the workload cost of a single contact hour of the subject.
func (s Subject) UnitCredit() float64 {
	if s.Lab {
		return 0.5
	}
	return 1.0
}
