//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	audit "signupgate/pkg/platform/audit"
	"signupgate/pkg/testutil/containers"
)

type PostgresAuditSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *Store
}

func TestPostgresAuditSuite(t *testing.T) {
	suite.Run(t, new(PostgresAuditSuite))
}

func (s *PostgresAuditSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = New(s.pg.DB)
	s.Require().NoError(s.store.Migrate(context.Background()))
}

func (s *PostgresAuditSuite) SetupTest() {
	_, err := s.pg.DB.Exec(`TRUNCATE audit_events`)
	s.Require().NoError(err)
}

func (s *PostgresAuditSuite) TestAppendAndList() {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	denied := audit.Event{
		ID:         uuid.New(),
		Timestamp:  base,
		Action:     string(audit.EventSignupDenied),
		Subject:    "203.0.113.0/24",
		Decision:   "denied",
		Reason:     "verify_failed",
		Severity:   audit.SeverityWarning,
		ErrorCodes: []string{"invalid-input-response"},
	}
	s.Require().NoError(s.store.Append(ctx, denied))
	s.Require().NoError(s.store.Append(ctx, denied), "duplicate IDs are ignored")
	s.Require().NoError(s.store.Append(ctx, audit.Event{
		Timestamp: base.Add(time.Minute),
		Action:    string(audit.EventChallengeVerified),
	}))

	got, err := s.store.ListByAction(ctx, audit.EventSignupDenied)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(denied.ID, got[0].ID)
	s.Equal(audit.CategorySecurity, got[0].Category)
	s.Equal([]string{"invalid-input-response"}, got[0].ErrorCodes)

	recent, err := s.store.ListRecent(ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(recent, 1)
	s.Equal(string(audit.EventChallengeVerified), recent[0].Action)
	s.Nil(recent[0].ErrorCodes)
}
