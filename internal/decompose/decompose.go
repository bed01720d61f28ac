package decompose

import (
	"errors"
	"fmt"

	"github.com/roach88/routegen/internal/model"
)

// ValidationError reports a request that cannot be decomposed.
// It is raised before any asynchronous work starts.
type ValidationError struct {
	Reason     string
	TemplateID string
	ScheduleID string
	RouteID    string
}

func (e *ValidationError) Error() string {
	switch {
	case e.TemplateID != "":
		return fmt.Sprintf("invalid request: %s (template=%s)", e.Reason, e.TemplateID)
	case e.ScheduleID != "":
		return fmt.Sprintf("invalid request: %s (schedule=%s)", e.Reason, e.ScheduleID)
	case e.RouteID != "":
		return fmt.Sprintf("invalid request: %s (route=%s)", e.Reason, e.RouteID)
	default:
		return "invalid request: " + e.Reason
	}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Exclusion records a template left out of the decomposition and why.
type Exclusion struct {
	TemplateID string `json:"template_id"`
	Reason     string `json:"reason"`
}

// Plan is the decomposition of a request.
type Plan struct {
	// Batch covers every template that can be generated in one call. Nil if none.
	Batch *model.GenerationJob

	// Queue holds the serialized jobs, in execution order.
	Queue *model.JobQueue

	// Excluded lists templates that produce no job.
	Excluded []Exclusion
}

// JobCount returns the number of builder calls the plan needs.
func (p *Plan) JobCount() int {
	n := p.Queue.Len()
	if p.Batch != nil {
		n++
	}
	return n
}

// Validate checks a request without decomposing it.
//
// A request is invalid when it has no templates, repeats a template ID, has no
// schedules, selects routes that are not all in one of its schedules, selects
// routes across several schedules, leaves no enabled sub-template rows across
// all templates, or asks a date-range scope to produce only heavy templates.
func Validate(req model.GenerationRequest) error {
	_, err := Decompose(req)
	return err
}

// Decompose splits a request into an optional batch job and a serialized queue.
func Decompose(req model.GenerationRequest) (*Plan, error) {
	if err := validateShape(req); err != nil {
		return nil, err
	}

	plan := &Plan{Queue: model.NewJobQueue()}

	// Normalize sub-templates; templates left without rows are excluded.
	templates := make([]model.TemplateRef, 0, len(req.Templates))
	rows := 0
	for _, t := range req.Templates {
		nt, n := Normalize(t)
		if n == 0 {
			plan.Excluded = append(plan.Excluded, Exclusion{TemplateID: t.ID, Reason: "no enabled sub-templates"})
			continue
		}
		rows += n
		templates = append(templates, nt)
	}
	if rows == 0 {
		return nil, &ValidationError{Reason: "no sub-templates selected"}
	}

	names := newNamer()
	var err error
	switch req.Scope() {
	case model.ScopeDateRange:
		err = decomposeRange(req, templates, names, plan)
	case model.ScopeRoutes:
		err = decomposeRoutes(req, templates, names, plan)
	}
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func validateShape(req model.GenerationRequest) error {
	if len(req.Templates) == 0 {
		return &ValidationError{Reason: "no templates selected"}
	}
	seen := make(map[string]bool, len(req.Templates))
	for _, t := range req.Templates {
		if t.ID == "" {
			return &ValidationError{Reason: "template without id"}
		}
		if seen[t.ID] {
			return &ValidationError{Reason: "duplicate template", TemplateID: t.ID}
		}
		seen[t.ID] = true
	}
	if len(req.Schedules) == 0 {
		return &ValidationError{Reason: "no schedules selected"}
	}
	scheduled := make(map[string]bool, len(req.Schedules))
	for _, s := range req.Schedules {
		if scheduled[s.ID] {
			return &ValidationError{Reason: "duplicate schedule", ScheduleID: s.ID}
		}
		scheduled[s.ID] = true
	}

	if req.Scope() != model.ScopeRoutes {
		return nil
	}
	if len(req.Schedules) != 1 {
		return &ValidationError{Reason: "route selection requires exactly one schedule"}
	}
	schedule := req.Schedules[0]
	picked := make(map[string]bool, len(req.Routes))
	for _, r := range req.Routes {
		if _, ok := schedule.Route(r.ID); !ok || (r.ScheduleID != "" && r.ScheduleID != schedule.ID) {
			return &ValidationError{Reason: "route is not part of the selected schedule", RouteID: r.ID}
		}
		if picked[r.ID] {
			return &ValidationError{Reason: "route selected twice", RouteID: r.ID}
		}
		picked[r.ID] = true
	}
	return nil
}

// decomposeRange builds the single batch job of a date-range request.
// Heavy templates are never generated range-wide.
func decomposeRange(req model.GenerationRequest, templates []model.TemplateRef, names *namer, plan *Plan) error {
	light := make([]model.TemplateRef, 0, len(templates))
	for _, t := range templates {
		if t.IsResourceHeavy {
			plan.Excluded = append(plan.Excluded, Exclusion{
				TemplateID: t.ID,
				Reason:     "resource-heavy template requires a route selection",
			})
			continue
		}
		light = append(light, t)
	}
	if len(light) == 0 {
		return &ValidationError{Reason: "only resource-heavy templates selected for a date range"}
	}

	var routes []model.RouteRef
	for _, s := range req.Schedules {
		routes = append(routes, s.Routes...)
	}
	job, err := batchJob(light, req.Schedules, routes, names)
	if err != nil {
		return err
	}
	plan.Batch = job
	return nil
}

// decomposeRoutes handles an explicit route selection within one schedule.
func decomposeRoutes(req model.GenerationRequest, templates []model.TemplateRef, names *namer, plan *Plan) error {
	schedule := req.Schedules[0]

	// Route order follows the selection; stops come from the schedule's copy.
	routes := make([]model.RouteRef, len(req.Routes))
	for i, r := range req.Routes {
		routes[i], _ = schedule.Route(r.ID)
	}

	var light []model.TemplateRef
	for _, t := range templates {
		if !t.IsResourceHeavy && !req.SeparatePerRoute {
			light = append(light, t)
		}
	}
	// Batch names are taken first so serialized names never shadow them.
	if len(light) > 0 {
		job, err := batchJob(light, req.Schedules, routes, names)
		if err != nil {
			return err
		}
		plan.Batch = job
	}

	for _, t := range templates {
		if !t.IsResourceHeavy && !req.SeparatePerRoute {
			continue
		}
		for _, r := range routes {
			name := names.name(templateLabel(t), scheduleLabel(req.Schedules), routeLabel(r))
			job := model.GenerationJob{
				Name:      name,
				Kind:      model.JobKindSerialized,
				Templates: []model.TemplateRef{t},
				Schedules: []model.ScheduleRef{schedule},
				Routes:    []model.RouteRef{r},
				Outputs:   []model.JobOutput{{TemplateID: t.ID, Name: name}},
			}
			id, err := model.JobID(job)
			if err != nil {
				return fmt.Errorf("decompose: %w", err)
			}
			job.ID = id
			plan.Queue.Push(job)
		}
	}
	return nil
}

func batchJob(templates []model.TemplateRef, schedules []model.ScheduleRef, routes []model.RouteRef, names *namer) (*model.GenerationJob, error) {
	label := scheduleLabel(schedules)
	job := &model.GenerationJob{
		Kind:      model.JobKindBatch,
		Templates: templates,
		Schedules: schedules,
		Routes:    routes,
		Outputs:   make([]model.JobOutput, len(templates)),
	}
	for i, t := range templates {
		job.Outputs[i] = model.JobOutput{
			TemplateID: t.ID,
			Name:       names.name(templateLabel(t), label),
		}
	}
	if len(templates) == 1 {
		job.Name = job.Outputs[0].Name
	} else {
		job.Name = fmt.Sprintf("batch%s%s (%d templates)", nameSeparator, label, len(templates))
	}

	id, err := model.JobID(*job)
	if err != nil {
		return nil, fmt.Errorf("decompose: %w", err)
	}
	job.ID = id
	return job, nil
}
