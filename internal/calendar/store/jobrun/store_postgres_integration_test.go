//go:build integration

package jobrun

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"calsync/internal/calendar/models"
	"calsync/pkg/platform/sentinel"
	"calsync/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *PostgresStore
	ctx   context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.pg.ApplyMigrations(s.T(), "../../../../migrations")
	s.store = NewPostgres(s.pg.DB)
	s.ctx = context.Background()
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateAll(s.ctx))
}

func (s *PostgresStoreSuite) begin(job string) uuid.UUID {
	id, err := s.store.Begin(s.ctx, &models.JobRun{
		JobName:          job,
		Cadence:          models.CadenceDaily,
		WindowDescriptor: "2025-03-10..2025-03-17",
	})
	s.Require().NoError(err)
	return id
}

func (s *PostgresStoreSuite) TestLifecycle() {
	id := s.begin("daily-window")

	run, err := s.store.GetByID(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(models.RunStatusRunning, run.Status)
	s.Nil(run.FinishedAt)
	s.Empty(run.FailureDetail)

	counts := models.SessionCounts{Seen: 40, Inserted: 10, Updated: 5, Unchanged: 24, Rejected: 1}
	detail := []string{"normalize record \"Broken\": unparseable_time"}
	s.Require().NoError(s.store.Finalize(s.ctx, id, counts, models.RunStatusSucceeded, detail))

	run, err = s.store.GetByID(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(models.RunStatusSucceeded, run.Status)
	s.Equal(counts, run.Counts)
	s.Equal(detail, run.FailureDetail)
	s.Require().NotNil(run.FinishedAt)
}

func (s *PostgresStoreSuite) TestDoubleFinalizeRejected() {
	id := s.begin("daily-window")
	s.Require().NoError(s.store.Finalize(s.ctx, id, models.SessionCounts{}, models.RunStatusSucceeded, nil))

	err := s.store.Finalize(s.ctx, id, models.SessionCounts{}, models.RunStatusFailed, nil)
	s.Require().ErrorIs(err, sentinel.ErrInvalidState)

	run, getErr := s.store.GetByID(s.ctx, id)
	s.Require().NoError(getErr)
	s.Equal(models.RunStatusSucceeded, run.Status)
}

func (s *PostgresStoreSuite) TestFinalizeUnknownRun() {
	err := s.store.Finalize(s.ctx, uuid.New(), models.SessionCounts{}, models.RunStatusSucceeded, nil)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListRecent() {
	s.begin("daily-window")
	s.begin("realtime-sweep")
	s.begin("daily-window")

	runs, err := s.store.ListRecent(s.ctx, "", 0)
	s.Require().NoError(err)
	s.Require().Len(runs, 3)

	filtered, err := s.store.ListRecent(s.ctx, "daily-window", 0)
	s.Require().NoError(err)
	s.Require().Len(filtered, 2)
	for _, run := range filtered {
		s.Equal("daily-window", run.JobName)
	}

	limited, err := s.store.ListRecent(s.ctx, "", 2)
	s.Require().NoError(err)
	s.Len(limited, 2)
}
