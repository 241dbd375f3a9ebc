package campaign

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"runwayiq/models"

	"gopkg.in/yaml.v3"
)

const (
	defaultTaskTitle       = "{{.Step.Title}} - {{.Lead.FullName}}"
	defaultTaskDescription = "{{.Step.Description}}\n\nLead: {{.Lead.FullName}}\nEmail: {{.Lead.Email}}\nPhone: {{.Lead.Phone}}\nProperty: {{.Lead.PropertyURL}}\nLinkedIn: {{.Lead.LinkedInURL}}"
	maxStepPoints          = 1000
)

// Step is one touchpoint of a campaign template
type Step struct {
	Number      int             `yaml:"step" json:"step"`
	DayOffset   int             `yaml:"day_offset" json:"day_offset"`
	Channel     models.Channel  `yaml:"channel" json:"channel"`
	Title       string          `yaml:"title" json:"title"`
	Description string          `yaml:"description" json:"description"`
	Points      int             `yaml:"points" json:"points"`
	Priority    models.Priority `yaml:"priority,omitempty" json:"priority,omitempty"`
}

// EffectivePriority is the configured priority or the channel default (calls are High)
func (s Step) EffectivePriority() models.Priority {
	if s.Priority != "" {
		return s.Priority
	}
	if s.Channel == models.ChannelCall {
		return models.PriorityHigh
	}
	return models.PriorityMedium
}

// Phase labels all steps up to and including ThroughStep
type Phase struct {
	Label       string `yaml:"label" json:"label"`
	ThroughStep int    `yaml:"through_step" json:"through_step"`
}

// Template is the ordered touchpoint plan instantiated for every lead
type Template struct {
	Name            string  `yaml:"name" json:"name"`
	DurationDays    int     `yaml:"duration_days" json:"duration_days"`
	TaskTitle       string  `yaml:"task_title,omitempty" json:"task_title,omitempty"`
	TaskDescription string  `yaml:"task_description,omitempty" json:"task_description,omitempty"`
	Steps           []Step  `yaml:"steps" json:"steps"`
	Phases          []Phase `yaml:"phases" json:"phases"`

	title       *template.Template
	description *template.Template
}

type renderData struct {
	Step Step
	Lead models.TemplateData
}

// DefaultTemplate is the 3-week plan: 7 calls, 5 emails and 3 LinkedIn messages
func DefaultTemplate() *Template {
	t := &Template{
		Name:         "3-Week Outreach Campaign",
		DurationDays: 21,
		Steps: []Step{
			// Week 1
			{Number: 1, DayOffset: 0, Channel: models.ChannelCall, Title: "Initial outreach call", Description: "First contact call to introduce services", Points: 50},
			{Number: 2, DayOffset: 1, Channel: models.ChannelEmail, Title: "Follow-up email with portfolio", Description: "Send email with portfolio examples and next steps", Points: 25},
			{Number: 3, DayOffset: 3, Channel: models.ChannelLinkedInDM, Title: "LinkedIn connection and message", Description: "Connect on LinkedIn and send personalized message", Points: 30},
			{Number: 4, DayOffset: 5, Channel: models.ChannelCall, Title: "Follow-up call", Description: "Check if they received materials and answer questions", Points: 50},
			{Number: 5, DayOffset: 7, Channel: models.ChannelEmail, Title: "Case study email", Description: "Share relevant case study and success stories", Points: 25},

			// Week 2
			{Number: 6, DayOffset: 9, Channel: models.ChannelCall, Title: "Discovery call", Description: "Understand their specific needs and pain points", Points: 75},
			{Number: 7, DayOffset: 11, Channel: models.ChannelEmail, Title: "Custom proposal preparation", Description: "Send email with timeline for custom proposal", Points: 25},
			{Number: 8, DayOffset: 12, Channel: models.ChannelLinkedInDM, Title: "LinkedIn check-in", Description: "Send casual check-in via LinkedIn", Points: 30},
			{Number: 9, DayOffset: 14, Channel: models.ChannelCall, Title: "Proposal discussion call", Description: "Present custom proposal and discuss details", Points: 100},
			{Number: 10, DayOffset: 15, Channel: models.ChannelEmail, Title: "Proposal follow-up", Description: "Send formal proposal document with pricing", Points: 25},

			// Week 3
			{Number: 11, DayOffset: 17, Channel: models.ChannelCall, Title: "Proposal review call", Description: "Review proposal details and answer questions", Points: 75},
			{Number: 12, DayOffset: 18, Channel: models.ChannelEmail, Title: "Social proof email", Description: "Share testimonials and additional references", Points: 25},
			{Number: 13, DayOffset: 19, Channel: models.ChannelLinkedInDM, Title: "Final LinkedIn touch", Description: "Final check-in before decision deadline", Points: 30},
			{Number: 14, DayOffset: 20, Channel: models.ChannelCall, Title: "Decision call", Description: "Discuss final decision and next steps", Points: 100},
			{Number: 15, DayOffset: 21, Channel: models.ChannelCall, Title: "Final follow-up call", Description: "Last attempt to close or understand objections", Points: 100},
		},
		Phases: []Phase{
			{Label: "Week 1 - Initial Contact", ThroughStep: 5},
			{Label: "Week 2 - Discovery & Proposal", ThroughStep: 10},
			{Label: "Week 3 - Decision & Close", ThroughStep: 15},
		},
	}
	if err := t.Validate(); err != nil {
		panic(fmt.Sprintf("default campaign template is invalid: %v", err))
	}
	return t
}

// LoadTemplate reads a YAML template file, falling back to the default when path is empty
func LoadTemplate(path string) (*Template, error) {
	if path == "" {
		return DefaultTemplate(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read campaign template: %w", err)
	}
	t, err := ParseTemplate(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func ParseTemplate(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse campaign template: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks step ordering and compiles the task text templates
func (t *Template) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTemplate)
	}
	if len(t.Steps) == 0 {
		return fmt.Errorf("%w: at least one step is required", ErrInvalidTemplate)
	}

	lastOffset := 0
	for i := range t.Steps {
		s := &t.Steps[i]
		if s.Number != i+1 {
			return fmt.Errorf("%w: step %d is numbered %d", ErrInvalidTemplate, i+1, s.Number)
		}
		if s.DayOffset < 0 || s.DayOffset < lastOffset {
			return fmt.Errorf("%w: step %d day offset %d goes backwards", ErrInvalidTemplate, s.Number, s.DayOffset)
		}
		lastOffset = s.DayOffset
		if !s.Channel.Valid() {
			return fmt.Errorf("%w: step %d has unknown channel %q", ErrInvalidTemplate, s.Number, s.Channel)
		}
		if s.Title == "" {
			return fmt.Errorf("%w: step %d title is required", ErrInvalidTemplate, s.Number)
		}
		if s.Points < 0 || s.Points > maxStepPoints {
			return fmt.Errorf("%w: step %d points must be between 0 and %d", ErrInvalidTemplate, s.Number, maxStepPoints)
		}
		if s.Priority != "" {
			p, err := models.ParsePriority(string(s.Priority))
			if err != nil {
				return fmt.Errorf("%w: step %d: %v", ErrInvalidTemplate, s.Number, err)
			}
			s.Priority = p
		}
	}

	if t.DurationDays <= 0 {
		t.DurationDays = lastOffset
	}

	lastThrough := 0
	for _, p := range t.Phases {
		if p.Label == "" || p.ThroughStep <= lastThrough {
			return fmt.Errorf("%w: phases must have labels and ascending through_step", ErrInvalidTemplate)
		}
		lastThrough = p.ThroughStep
	}
	switch {
	case len(t.Phases) == 0:
		t.Phases = []Phase{{Label: t.Name, ThroughStep: len(t.Steps)}}
	case lastThrough < len(t.Steps):
		return fmt.Errorf("%w: last phase ends at step %d but the template has %d steps", ErrInvalidTemplate, lastThrough, len(t.Steps))
	}

	titleSrc := t.TaskTitle
	if titleSrc == "" {
		titleSrc = defaultTaskTitle
	}
	descSrc := t.TaskDescription
	if descSrc == "" {
		descSrc = defaultTaskDescription
	}
	var err error
	if t.title, err = template.New("title").Option("missingkey=error").Parse(titleSrc); err != nil {
		return fmt.Errorf("%w: task_title: %v", ErrInvalidTemplate, err)
	}
	if t.description, err = template.New("description").Option("missingkey=error").Parse(descSrc); err != nil {
		return fmt.Errorf("%w: task_description: %v", ErrInvalidTemplate, err)
	}
	return nil
}

func (t *Template) Len() int { return len(t.Steps) }

// StepByNumber returns nil when no step has that number
func (t *Template) StepByNumber(n int) *Step {
	if n < 1 || n > len(t.Steps) {
		return nil
	}
	s := t.Steps[n-1]
	return &s
}

// PhaseLabel returns the label of the phase containing step n
func (t *Template) PhaseLabel(n int) string {
	for _, p := range t.Phases {
		if n <= p.ThroughStep {
			return p.Label
		}
	}
	return PhaseCompleted
}

// RenderTask produces the task title and description for one step
func (t *Template) RenderTask(step Step, lead *models.Lead) (string, string, error) {
	if t.title == nil || t.description == nil {
		if err := t.Validate(); err != nil {
			return "", "", err
		}
	}
	data := renderData{Step: step, Lead: lead.TemplateData()}

	var title, desc bytes.Buffer
	if err := t.title.Execute(&title, data); err != nil {
		return "", "", fmt.Errorf("failed to render task title: %w", err)
	}
	if err := t.description.Execute(&desc, data); err != nil {
		return "", "", fmt.Errorf("failed to render task description: %w", err)
	}
	return title.String(), desc.String(), nil
}

// YAML renders the template as a file LoadTemplate accepts
func (t *Template) YAML() ([]byte, error) {
	out := *t
	if out.TaskTitle == "" {
		out.TaskTitle = defaultTaskTitle
	}
	if out.TaskDescription == "" {
		out.TaskDescription = defaultTaskDescription
	}
	return yaml.Marshal(&out)
}
