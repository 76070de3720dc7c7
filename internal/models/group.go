package models

// SessionGroup is the set of unit indices that must occupy one contiguous
// block: a single unit, or a run of consecutive units of the same section and
// lab subject.
type SessionGroup struct {
	Indices []int
	Section string
	Lab     bool
}

// Size returns the number of slots the group occupies.
func (g SessionGroup) Size() int {
	return len(g.Indices)
}

// BuildGroups derives the groups of a unit sequence. Lab units of the same
// section and subject are grouped only while they appear back to back.
func BuildGroups(units []SessionUnit) []SessionGroup {
	groups := make([]SessionGroup, 0, len(units))
	for i := 0; i < len(units); {
		head := units[i]
		group := SessionGroup{Indices: []int{i}, Section: head.Section.ID, Lab: head.Subject.Lab}
		j := i + 1
		if head.Subject.Lab {
			for j < len(units) && sameLabRun(head, units[j]) {
				group.Indices = append(group.Indices, j)
				j++
			}
		}
		groups = append(groups, group)
		i = j
	}
	return groups
}

func sameLabRun(a, b SessionUnit) bool {
	return b.Subject.Lab && a.Section.ID == b.Section.ID && a.Subject.Code == b.Subject.Code
}
