//go:build integration

package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"signupgate/internal/settings"
	"signupgate/pkg/platform/sentinel"
	"signupgate/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *Store
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = New(s.redis.Client, "test:turnstile:settings")
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestRoundTrip() {
	ctx := context.Background()

	s.Require().NoError(s.store.SetSetting(ctx, settings.OptionEnabled, true))
	s.Require().NoError(s.store.SetSetting(ctx, settings.OptionSecretKey, "0x4AAAAAAA"))

	got, err := s.store.GetSettings(ctx, []string{settings.OptionEnabled, settings.OptionSecretKey, settings.OptionSiteKey})
	s.Require().NoError(err)
	s.Equal("true", got[settings.OptionEnabled])
	s.Equal("0x4AAAAAAA", got[settings.OptionSecretKey])
	s.NotContains(got, settings.OptionSiteKey)

	cfg, err := settings.Load(ctx, s.store)
	s.Require().NoError(err)
	s.True(cfg.Enabled)
	s.Equal("0x4AAAAAAA", cfg.SecretKey)
}

func (s *RedisStoreSuite) TestRejectsUnknownOption() {
	err := s.store.SetSetting(context.Background(), "not-ours", "x")
	s.ErrorIs(err, sentinel.ErrInvalidInput)
}

func (s *RedisStoreSuite) TestEmptyHashDefaultsToEnabledWithoutSecret() {
	_, err := settings.Load(context.Background(), s.store)
	s.ErrorIs(err, settings.ErrSecretKeyMissing)
}
