package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"runwayiq/models"
	"runwayiq/utils"
)

// Per user: High, then Medium, then Low
var digestOrder = fmt.Sprintf("user_id, CASE priority WHEN '%s' THEN 0 WHEN '%s' THEN 1 ELSE 2 END, id",
	models.PriorityHigh, models.PriorityMedium)

type DigestSender interface {
	SendDigest(to string, data utils.DigestData) error
}

// DigestWorker mails every user the open tasks due that day, once a day at Hour
type DigestWorker struct {
	DB       *gorm.DB
	Mailer   DigestSender
	Hour     int
	Location *time.Location
	Logger   *logrus.Entry

	now func() time.Time
}

func NewDigestWorker(db *gorm.DB, mailer DigestSender, hour int, loc *time.Location, logger *logrus.Entry) *DigestWorker {
	if loc == nil {
		loc = time.UTC
	}
	return &DigestWorker{
		DB:       db,
		Mailer:   mailer,
		Hour:     hour,
		Location: loc,
		Logger:   logger,
		now:      time.Now,
	}
}

func (dw *DigestWorker) Start(ctx context.Context) error {
	dw.Logger.WithField("hour", dw.Hour).Info("Digest worker started")

	for {
		wait := dw.nextRun(dw.now()).Sub(dw.now())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			dw.Logger.Info("Digest worker shutting down...")
			return nil
		case <-timer.C:
		}

		date := utils.CalendarDate(dw.now(), dw.Location)
		sent, err := dw.RunOnce(ctx, date)
		if err != nil {
			dw.Logger.WithError(err).Error("Daily digest failed")
			continue
		}
		dw.Logger.WithFields(logrus.Fields{"date": date.Format("2006-01-02"), "sent": sent}).Info("Daily digest sent")
	}
}

// nextRun is the next Hour:00 strictly after now
func (dw *DigestWorker) nextRun(now time.Time) time.Time {
	local := now.In(dw.Location)
	run := time.Date(local.Year(), local.Month(), local.Day(), dw.Hour, 0, 0, 0, dw.Location)
	if !run.After(local) {
		run = run.AddDate(0, 0, 1)
	}
	return run
}

// RunOnce sends one digest per user with open tasks due on date and returns how many were sent
func (dw *DigestWorker) RunOnce(ctx context.Context, date time.Time) (int, error) {
	var tasks []models.Task
	if err := dw.DB.WithContext(ctx).
		Where("completed = ? AND due_date >= ? AND due_date < ?", false, date, date.AddDate(0, 0, 1)).
		Order(digestOrder).
		Find(&tasks).Error; err != nil {
		return 0, fmt.Errorf("failed to load due tasks: %w", err)
	}

	byUser := make(map[uint][]models.Task)
	var order []uint
	for _, t := range tasks {
		if _, ok := byUser[t.UserID]; !ok {
			order = append(order, t.UserID)
		}
		byUser[t.UserID] = append(byUser[t.UserID], t)
	}

	sent := 0
	for _, userID := range order {
		var user models.User
		if err := dw.DB.WithContext(ctx).First(&user, userID).Error; err != nil {
			dw.Logger.WithError(err).WithField("user_id", userID).Warn("Skipping digest for unknown user")
			continue
		}
		if !user.IsActive || user.Email == "" {
			continue
		}

		data := utils.DigestData{
			Name: user.DisplayName(),
			Date: date.Format("Monday, Jan 2"),
		}
		for _, t := range byUser[userID] {
			data.Tasks = append(data.Tasks, utils.DigestTask{
				Title:    t.Title,
				LeadName: t.LeadName,
				Points:   t.Points,
				Priority: string(t.Priority),
			})
		}

		if err := dw.Mailer.SendDigest(user.Email, data); err != nil {
			utils.LogError("digest_send", err, map[string]interface{}{"user_id": userID})
			continue
		}
		sent++
	}
	return sent, nil
}
