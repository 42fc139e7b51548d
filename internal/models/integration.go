package models

import (
	"time"

	"github.com/google/uuid"
)

// IntegrationActivity is one activity imported from a third-party integration such as Strava.
// Rows are written by an external sync process; this service only reads them.
type IntegrationActivity struct {
	ID                  uuid.UUID `json:"id"`
	UserID              uuid.UUID `json:"user_id"`
	Provider            string    `json:"provider"`
	ActivityType        string    `json:"activity_type"`
	Name                string    `json:"name"`
	StartedAt           time.Time `json:"started_at"`
	DistanceMeters      *float64  `json:"distance_meters,omitempty"`
	MovingTimeSeconds   *int      `json:"moving_time_seconds,omitempty"`
	ElapsedTimeSeconds  *int      `json:"elapsed_time_seconds,omitempty"`
	AverageSpeed        *float64  `json:"average_speed,omitempty"` // m/s
	AverageCadence      *float64  `json:"average_cadence,omitempty"`
	AverageHeartrate    *float64  `json:"average_heartrate,omitempty"`
	ElevationGainMeters *float64  `json:"elevation_gain_meters,omitempty"`
}

// PaceMinPerKm derives pace in minutes per kilometre, preferring moving time over average speed.
// It returns false when neither source yields a usable value.
func (a *IntegrationActivity) PaceMinPerKm() (float64, bool) {
	if a.MovingTimeSeconds != nil && a.DistanceMeters != nil && *a.DistanceMeters > 0 && *a.MovingTimeSeconds > 0 {
		return (float64(*a.MovingTimeSeconds) / 60) / (*a.DistanceMeters / 1000), true
	}
	if a.AverageSpeed != nil && *a.AverageSpeed > 0 {
		return (1000 / *a.AverageSpeed) / 60, true
	}
	return 0, false
}
