package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bitosome/real-electricity-price/pkg/log"
	"github.com/bitosome/real-electricity-price/pkg/types"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Refresh(ctx context.Context, now time.Time) (types.PriceWindow, error) {
	args := m.Called(ctx, now)
	return types.PriceWindow{}, args.Error(0)
}

func (m *mockRunner) Analyze(ctx context.Context, now time.Time) (types.CheapAnalysisResult, error) {
	args := m.Called(ctx, now)
	return types.CheapAnalysisResult{}, args.Error(0)
}

func (m *mockRunner) Publish(ctx context.Context, now time.Time) error {
	args := m.Called(ctx, now)
	return args.Error(0)
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "1h", want: time.Hour},
		{in: "5m", want: 5 * time.Minute},
		{in: "24h", want: 24 * time.Hour},
		{in: "30", want: 30 * time.Minute},
		{in: "4m", wantErr: true},
		{in: "25h", wantErr: true},
		{in: "soon", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseInterval(tt.in)
			if tt.wantErr {
				assert.True(t, errors.Is(err, types.ErrInvalidConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	_, err := New(&mockRunner{}, time.Minute)
	assert.Error(t, err)

	s, err := New(&mockRunner{}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, s.Interval())
}

func TestTriggerSpec(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Tallinn")
	require.NoError(t, err)
	assert.Equal(t, "CRON_TZ=Europe/Tallinn 30 14 * * *", triggerSpec(types.TimeOfDay{Hour: 14, Minute: 30}, loc))
}

func TestRun(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Tallinn")
	require.NoError(t, err)
	now := time.Date(2025, 1, 8, 10, 0, 0, 0, time.UTC)

	r := &mockRunner{}
	var refreshed sync.WaitGroup
	refreshed.Add(1)
	r.On("Refresh", mock.Anything, now).Return(nil).Once().Run(func(mock.Arguments) {
		refreshed.Done()
	})
	r.On("Publish", mock.Anything, mock.Anything).Return(nil).Maybe()

	s, err := New(r, time.Hour)
	require.NoError(t, err)
	s.now = func() time.Time { return now }

	assert.Error(t, s.Reschedule(types.TimeOfDay{Hour: 25}, loc))
	require.NoError(t, s.Reschedule(types.TimeOfDay{Hour: 14, Minute: 30}, loc))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()
	refreshed.Wait()

	entries := func() int {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.cron.Entries())
	}
	assert.Equal(t, 3, entries())

	require.NoError(t, s.Reschedule(types.TimeOfDay{Hour: 15}, loc))
	assert.Equal(t, 3, entries())
	s.mu.Lock()
	assert.Equal(t, "CRON_TZ=Europe/Tallinn 0 15 * * *", s.trigger)
	s.mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	r.AssertExpectations(t)
}

func TestRunAnalyze(t *testing.T) {
	now := time.Date(2025, 1, 8, 12, 30, 0, 0, time.UTC)
	r := &mockRunner{}
	r.On("Analyze", mock.Anything, now).Return(errors.New("no window")).Once()

	s, err := New(r, time.Hour)
	require.NoError(t, err)
	s.now = func() time.Time { return now }
	s.runAnalyze()
	r.AssertExpectations(t)
}

func TestPublishEveryHour(t *testing.T) {
	sched, err := cron.ParseStandard(publishSpec)
	require.NoError(t, err)

	// a refresh interval anchored at 10:37 still gets a publish at 11:00
	from := time.Date(2025, 1, 8, 10, 37, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 1, 8, 11, 0, 0, 0, time.UTC), sched.Next(from))

	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 8, 11, 0, 0, 0, time.UTC), sched.Next(from.In(loc)).UTC())
}

func TestRunPublish(t *testing.T) {
	now := time.Date(2025, 1, 8, 11, 0, 0, 0, time.UTC)
	r := &mockRunner{}
	r.On("Publish", mock.Anything, now).Return(errors.New("broker down")).Once()

	s, err := New(r, time.Hour)
	require.NoError(t, err)
	s.now = func() time.Time { return now }
	s.runPublish()
	r.AssertExpectations(t)
	r.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
}
