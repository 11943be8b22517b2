package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rutinasds/routines-app/internal/domain"
)

func TestUpsertMeasurement_AmendsSameDate(t *testing.T) {
	f := newFixture(t)
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	res, err := f.measurements.Upsert(f.ctx, f.clientActor, f.client.ID, day, domain.MeasurementInput{
		WeightKg:   floatPtr(80),
		Perimeters: map[string]float64{"Waist": 90, "hip": 100},
	})
	require.NoError(t, err)
	assert.True(t, res.Created)
	firstID := res.Measurement.ID

	f.clock.Advance(time.Hour)
	res, err = f.measurements.Upsert(f.ctx, f.trainer, f.client.ID, day.Add(15*time.Hour), domain.MeasurementInput{
		WeightKg:   floatPtr(79.4),
		Perimeters: map[string]float64{"waist": 88},
	})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, firstID, res.Measurement.ID)
	assert.Equal(t, f.trainer.ID, res.Measurement.RecordedBy)

	history, err := f.measurements.ListHistory(f.ctx, f.clientActor, f.client.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	m := history[0]
	assert.Equal(t, "2026-03-01", m.Date())
	require.NotNil(t, m.WeightKg)
	assert.Equal(t, 79.4, *m.WeightKg)
	assert.Equal(t, map[string]float64{"waist": 88, "hip": 100}, m.Perimeters, "perimeters merge by name")
	assert.True(t, m.UpdatedAt.After(m.CreatedAt))
}

func TestUpsertMeasurement_HistoryOrderedByDate(t *testing.T) {
	f := newFixture(t)
	for _, d := range []string{"2026-02-20", "2026-01-05", "2026-02-01"} {
		date, err := domain.ParseDate(d)
		require.NoError(t, err)
		_, err = f.measurements.Upsert(f.ctx, f.clientActor, f.client.ID, date, domain.MeasurementInput{Notes: strPtr("control " + d)})
		require.NoError(t, err)
	}

	history, err := f.measurements.ListHistory(f.ctx, f.trainer, f.client.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "2026-01-05", history[0].Date())
	assert.Equal(t, "2026-02-01", history[1].Date())
	assert.Equal(t, "2026-02-20", history[2].Date())
	assert.Nil(t, history[0].WeightKg)
}

func TestUpsertMeasurement_Rules(t *testing.T) {
	f := newFixture(t)
	today := f.clock.Now()

	_, err := f.measurements.Upsert(f.ctx, f.clientActor, f.client.ID, today, domain.MeasurementInput{})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.measurements.Upsert(f.ctx, f.clientActor, f.client.ID, today, domain.MeasurementInput{WeightKg: floatPtr(-1)})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.measurements.Upsert(f.ctx, f.clientActor, f.client.ID, today.AddDate(0, 0, 2), domain.MeasurementInput{WeightKg: floatPtr(70)})
	assert.ErrorIs(t, err, domain.ErrValidation, "future dates")

	stranger := f.addUser(domain.RoleClient, "30000010", nil)
	_, err = f.measurements.Upsert(f.ctx, f.actor(stranger), f.client.ID, today, domain.MeasurementInput{WeightKg: floatPtr(70)})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.measurements.ListHistory(f.ctx, f.otherTrainer, f.client.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.measurements.Upsert(f.ctx, f.coordinator, stranger.ID, today, domain.MeasurementInput{WeightKg: floatPtr(70)})
	assert.NoError(t, err)
}
