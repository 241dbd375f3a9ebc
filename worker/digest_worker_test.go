package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runwayiq/models"
	"runwayiq/testutil"
	"runwayiq/utils"
)

type recordingMailer struct {
	sent map[string]utils.DigestData
	fail map[string]bool
}

func (r *recordingMailer) SendDigest(to string, data utils.DigestData) error {
	if r.fail[to] {
		return errors.New("smtp unavailable")
	}
	if r.sent == nil {
		r.sent = map[string]utils.DigestData{}
	}
	r.sent[to] = data
	return nil
}

func TestDigestRunOnce(t *testing.T) {
	db := testutil.NewDB(t)
	sam := testutil.CreateUser(t, db, "Sam", "sam@example.com")
	kit := testutil.CreateUser(t, db, "", "kit@example.com")
	idle := testutil.CreateUser(t, db, "Idle", "idle@example.com")

	today := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	tomorrow := today.AddDate(0, 0, 1)
	tasks := []models.Task{
		{UserID: sam.ID, Title: "Call Dana", LeadName: "Dana", Points: 10, Priority: models.PriorityHigh, DueDate: &today},
		{UserID: sam.ID, Title: "Email Lee", LeadName: "Lee", Points: 5, Priority: models.PriorityMedium, DueDate: &today},
		{UserID: sam.ID, Title: "Later", Points: 50, Priority: models.PriorityLow, DueDate: &tomorrow},
		{UserID: kit.ID, Title: "LinkedIn Ray", LeadName: "Ray", Points: 3, Priority: models.PriorityLow, DueDate: &today},
	}
	require.NoError(t, db.Create(&tasks).Error)

	done := models.Task{UserID: idle.ID, Title: "Done already", Points: 7, DueDate: &today, Completed: true}
	require.NoError(t, db.Create(&done).Error)

	mailer := &recordingMailer{}
	w := NewDigestWorker(db, mailer, 8, time.UTC, quietLogger())

	sent, err := w.RunOnce(context.Background(), today)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	require.Contains(t, mailer.sent, "sam@example.com")
	samDigest := mailer.sent["sam@example.com"]
	assert.Equal(t, "Sam", samDigest.Name)
	assert.Equal(t, "Monday, Mar 2", samDigest.Date)
	require.Len(t, samDigest.Tasks, 2)
	assert.ElementsMatch(t, []string{"Call Dana", "Email Lee"}, []string{samDigest.Tasks[0].Title, samDigest.Tasks[1].Title})

	// users without a name are addressed by email
	assert.Equal(t, "kit@example.com", mailer.sent["kit@example.com"].Name)
	assert.NotContains(t, mailer.sent, "idle@example.com")
}

func TestDigestListsHighPriorityFirst(t *testing.T) {
	db := testutil.NewDB(t)
	sam := testutil.CreateUser(t, db, "Sam", "sam@example.com")

	today := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	tasks := []models.Task{
		{UserID: sam.ID, Title: "Low", Priority: models.PriorityLow, DueDate: &today},
		{UserID: sam.ID, Title: "Medium", Priority: models.PriorityMedium, DueDate: &today},
		{UserID: sam.ID, Title: "High", Priority: models.PriorityHigh, DueDate: &today},
		{UserID: sam.ID, Title: "High again", Priority: models.PriorityHigh, DueDate: &today},
	}
	require.NoError(t, db.Create(&tasks).Error)

	mailer := &recordingMailer{}
	_, err := NewDigestWorker(db, mailer, 8, time.UTC, quietLogger()).RunOnce(context.Background(), today)
	require.NoError(t, err)

	var titles []string
	for _, task := range mailer.sent["sam@example.com"].Tasks {
		titles = append(titles, task.Title)
	}
	assert.Equal(t, []string{"High", "High again", "Medium", "Low"}, titles)
}

func TestDigestSkipsInactiveUsersAndFailedSends(t *testing.T) {
	db := testutil.NewDB(t)
	gone := testutil.CreateUser(t, db, "Gone", "gone@example.com")
	require.NoError(t, db.Model(gone).Update("is_active", false).Error)
	flaky := testutil.CreateUser(t, db, "Flaky", "flaky@example.com")

	today := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&[]models.Task{
		{UserID: gone.ID, Title: "One", DueDate: &today},
		{UserID: flaky.ID, Title: "Two", DueDate: &today},
	}).Error)

	mailer := &recordingMailer{fail: map[string]bool{"flaky@example.com": true}}
	w := NewDigestWorker(db, mailer, 8, time.UTC, quietLogger())

	sent, err := w.RunOnce(context.Background(), today)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, mailer.sent)
}

func TestDigestNextRun(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	w := NewDigestWorker(nil, nil, 8, ny, quietLogger())

	before := time.Date(2026, 3, 2, 7, 30, 0, 0, ny)
	assert.Equal(t, time.Date(2026, 3, 2, 8, 0, 0, 0, ny), w.nextRun(before))

	atHour := time.Date(2026, 3, 2, 8, 0, 0, 0, ny)
	assert.Equal(t, time.Date(2026, 3, 3, 8, 0, 0, 0, ny), w.nextRun(atHour))

	// 12:00 UTC is 07:00 in New York
	assert.Equal(t, time.Date(2026, 3, 2, 8, 0, 0, 0, ny), w.nextRun(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)))
}

func TestDigestWorkerStopsOnCancel(t *testing.T) {
	w := NewDigestWorker(nil, &recordingMailer{}, 8, time.UTC, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()
	cancel()
	require.NoError(t, <-done)
}
