package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/benvon/health-report/internal/models"
	"github.com/google/uuid"
)

// IntegrationRepository reads activities written by the integration sync process.
type IntegrationRepository struct {
	db *DB
}

// NewIntegrationRepository creates a new integration repository
func NewIntegrationRepository(db *DB) *IntegrationRepository {
	return &IntegrationRepository{db: db}
}

// ListByUserID returns all activities of a user ordered by provider, then newest first.
func (r *IntegrationRepository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.IntegrationActivity, error) {
	query := `
		SELECT id, user_id, provider, activity_type, name, started_at,
		       distance_meters, moving_time_seconds, elapsed_time_seconds,
		       average_speed, average_cadence, average_heartrate, elevation_gain_meters
		FROM integration_activities
		WHERE user_id = $1
		ORDER BY provider, started_at DESC, id
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list integration activities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	activities := []*models.IntegrationActivity{}
	for rows.Next() {
		a := &models.IntegrationActivity{}
		var (
			distance, speed, cadence, heartrate, elevation sql.NullFloat64
			moving, elapsed                                sql.NullInt64
		)
		if err := rows.Scan(
			&a.ID, &a.UserID, &a.Provider, &a.ActivityType, &a.Name, &a.StartedAt,
			&distance, &moving, &elapsed, &speed, &cadence, &heartrate, &elevation,
		); err != nil {
			return nil, fmt.Errorf("failed to scan integration activity: %w", err)
		}
		a.DistanceMeters = nullFloat(distance)
		a.MovingTimeSeconds = nullInt(moving)
		a.ElapsedTimeSeconds = nullInt(elapsed)
		a.AverageSpeed = nullFloat(speed)
		a.AverageCadence = nullFloat(cadence)
		a.AverageHeartrate = nullFloat(heartrate)
		a.ElevationGainMeters = nullFloat(elevation)
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate integration activities: %w", err)
	}
	return activities, nil
}
