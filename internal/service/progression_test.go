package service

import (
	"testing"

	"stridecoach/coach-app/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestProgressionCalculator_TargetWeek(t *testing.T) {
	calc := NewProgressionCalculator()

	tests := []struct {
		name        string
		currentWeek int
		reset       bool
		want        int
	}{
		{name: "advances by one", currentWeek: 1, want: 2},
		{name: "advances mid program", currentWeek: 7, want: 8},
		{name: "zero week treated as week one", currentWeek: 0, want: 2},
		{name: "negative week treated as week one", currentWeek: -3, want: 2},
		{name: "reset lands on week one", currentWeek: 9, reset: true, want: 1},
		{name: "reset from week one stays at week one", currentWeek: 1, reset: true, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schedule := &domain.DeliverySchedule{
				Progress: domain.ProgressTracking{WeekNumber: tt.currentWeek},
			}
			assert.Equal(t, tt.want, calc.TargetWeek(schedule, tt.reset))
		})
	}
}

func TestProgressionCalculator_PhaseForWeek(t *testing.T) {
	calc := NewProgressionCalculator()

	tests := []struct {
		name       string
		current    domain.Phase
		targetWeek int
		want       domain.Phase
	}{
		{name: "no boundary keeps phase", current: domain.PhaseBase, targetWeek: 3, want: domain.PhaseBase},
		{name: "week four advances base to build", current: domain.PhaseBase, targetWeek: 4, want: domain.PhaseBuild},
		{name: "week eight advances build to peak", current: domain.PhaseBuild, targetWeek: 8, want: domain.PhasePeak},
		{name: "week twelve advances peak to recovery", current: domain.PhasePeak, targetWeek: 12, want: domain.PhaseRecovery},
		{name: "recovery rotates back to base", current: domain.PhaseRecovery, targetWeek: 16, want: domain.PhaseBase},
		{name: "empty phase defaults to base", current: "", targetWeek: 2, want: domain.PhaseBase},
		{name: "empty phase on boundary advances from base", current: "", targetWeek: 4, want: domain.PhaseBuild},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, calc.PhaseForWeek(tt.current, tt.targetWeek))
		})
	}
}

func TestPhase_Next_FullRotation(t *testing.T) {
	phase := domain.PhaseBase
	seen := []domain.Phase{phase}
	for i := 0; i < 4; i++ {
		phase = phase.Next()
		seen = append(seen, phase)
	}
	assert.Equal(t, []domain.Phase{
		domain.PhaseBase, domain.PhaseBuild, domain.PhasePeak, domain.PhaseRecovery, domain.PhaseBase,
	}, seen)
}
