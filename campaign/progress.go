package campaign

import (
	"math"
	"time"

	"runwayiq/models"
	"runwayiq/utils"
)

const PhaseCompleted = "Completed"

// Progress is the read-side summary of a campaign
type Progress struct {
	Percent       int    `json:"progress"`
	CurrentPhase  string `json:"current_phase"`
	NextStep      *Step  `json:"next_step"`
	DaysRemaining int    `json:"days_remaining"`
}

// Progress summarizes a campaign as of now
func (e *Engine) Progress(c *models.Campaign) Progress {
	return e.Template.Progress(c, e.now(), e.loc)
}

// Progress derives percent, phase, next step and days remaining. The percent
// only reaches 100 once current step equals total steps.
func (t *Template) Progress(c *models.Campaign, now time.Time, loc *time.Location) Progress {
	p := Progress{
		Percent:       percentComplete(c.CurrentStep, c.TotalSteps),
		CurrentPhase:  t.PhaseLabel(c.CurrentStep),
		DaysRemaining: daysRemaining(c.StartDate, t.DurationDays, now, loc),
	}
	if c.IsCompleted() {
		p.CurrentPhase = PhaseCompleted
		return p
	}
	p.NextStep = t.StepByNumber(c.CurrentStep)
	return p
}

func percentComplete(current, total int) int {
	if total <= 0 {
		return 0
	}
	if current >= total {
		return 100
	}
	if current < 0 {
		current = 0
	}
	pct := int(math.Round(float64(current) / float64(total) * 100))
	if pct > 99 {
		pct = 99
	}
	return pct
}

func daysRemaining(start time.Time, durationDays int, now time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	end := utils.InLocation(start, loc).AddDate(0, 0, durationDays)
	days := int(math.Ceil(end.Sub(now).Hours() / 24))
	if days < 0 {
		return 0
	}
	return days
}
