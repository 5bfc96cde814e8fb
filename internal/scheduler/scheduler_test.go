package scheduler

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testScheduler() *Scheduler {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewScheduler(nil, logger)
}

func TestScheduleRejectsInvalidCron(t *testing.T) {
	s := testScheduler()

	err := s.ScheduleWeeklyAnalysis("not a cron expression")
	assert.Error(t, err)

	err = s.ScheduleDailyCheck("99 99 * * *")
	assert.Error(t, err)
}

func TestStartRequiresJobs(t *testing.T) {
	s := testScheduler()
	assert.Error(t, s.Start())
}

func TestStartStopLifecycle(t *testing.T) {
	s := testScheduler()

	require.NoError(t, s.ScheduleWeeklyAnalysis("0 6 * * 1"))
	require.NoError(t, s.ScheduleDailyCheck("30 21 * * 1-5"))

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	assert.False(t, s.NextRun().IsZero())

	// Double start is rejected, scheduling while running too.
	assert.Error(t, s.Start())
	assert.Error(t, s.ScheduleDailyCheck("0 12 * * *"))

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())

	// Stopping an idle scheduler is a no-op.
	assert.NoError(t, s.Stop())
}
