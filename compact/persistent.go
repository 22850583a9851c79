package compact

import (
	"sort"
	"strings"
)

// Section is one labeled, prioritized piece of persistent context rendered
// ahead of the transcript on every turn (system prompt fragments, project
// conventions, active plan, etc).
type Section struct {
	Label    string
	Content  string
	Priority int
}

// PersistentContext holds an ordered collection of Sections and renders them
// deterministically.
type PersistentContext struct {
	sections []Section
}

// Add appends a section.
func (p *PersistentContext) Add(s Section) {
	p.sections = append(p.sections, s)
}

// Render emits every section in ascending Priority order, stable within
// equal priorities by insertion order (P4), as "## <label>\n<content>"
// blocks joined by a blank line.
func (p *PersistentContext) Render() string {
	sections := make([]Section, len(p.sections))
	copy(sections, p.sections)
	sort.SliceStable(sections, func(i, j int) bool {
		return sections[i].Priority < sections[j].Priority
	})

	var parts []string
	for _, s := range sections {
		parts = append(parts, "## "+s.Label+"\n"+s.Content)
	}
	return strings.Join(parts, "\n\n")
}
