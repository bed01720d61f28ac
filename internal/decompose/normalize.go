package decompose

import "github.com/roach88/routegen/internal/model"

// Normalize resolves a template's effective sub-templates.
//
// An explicitly checked sub-template always wins. Within a GroupID at most one
// sub-template survives: the first checked member, or if none is checked, the
// first member flagged default. Ungrouped sub-templates are included when
// checked or default. Declaration order is preserved.
//
// The second result is the number of enabled rows. A template without any
// sub-templates is its own single row.
func Normalize(t model.TemplateRef) (model.TemplateRef, int) {
	if len(t.SubTemplates) == 0 {
		return t, 1
	}

	winner := make(map[string]string)
	for _, s := range t.SubTemplates {
		if s.GroupID == "" || !s.Checked {
			continue
		}
		if _, ok := winner[s.GroupID]; !ok {
			winner[s.GroupID] = s.ID
		}
	}
	for _, s := range t.SubTemplates {
		if s.GroupID == "" || !s.Default {
			continue
		}
		if _, ok := winner[s.GroupID]; !ok {
			winner[s.GroupID] = s.ID
		}
	}

	effective := make([]model.SubTemplateRef, 0, len(t.SubTemplates))
	for _, s := range t.SubTemplates {
		if s.GroupID == "" {
			if s.Checked || s.Default {
				effective = append(effective, s)
			}
			continue
		}
		if winner[s.GroupID] == s.ID {
			effective = append(effective, s)
			// Duplicate IDs inside one group must not both pass.
			winner[s.GroupID] = ""
		}
	}

	out := t
	out.SubTemplates = effective
	return out, len(effective)
}
