package file

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signupgate/internal/settings"
	"signupgate/pkg/platform/sentinel"
)

const path = "/etc/signupgate/turnstile.yaml"

func TestMissingFileReadsAsEmpty(t *testing.T) {
	store := New(afero.NewMemMapFs(), path)

	got, err := store.GetSettings(context.Background(), []string{settings.OptionEnabled})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadsExternalEdits(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, path, []byte("turnstile-enabled: true\nturnstile-secret-key: abc\n"), 0o600))
	store := New(fsys, path)
	ctx := context.Background()

	cfg, err := settings.Load(ctx, store)
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "abc", cfg.SecretKey)

	require.NoError(t, afero.WriteFile(fsys, path, []byte("turnstile-enabled: false\n"), 0o600))
	cfg, err = settings.Load(ctx, store)
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
}

func TestSetSettingPersists(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store := New(fsys, path)
	ctx := context.Background()

	require.NoError(t, store.SetSetting(ctx, settings.OptionSiteKey, "site"))
	require.NoError(t, store.SetSetting(ctx, settings.OptionEnabled, false))

	reopened := New(fsys, path)
	got, err := reopened.GetSettings(ctx, []string{settings.OptionSiteKey, settings.OptionEnabled})
	require.NoError(t, err)
	assert.Equal(t, "site", got[settings.OptionSiteKey])
	assert.Equal(t, false, got[settings.OptionEnabled])

}

func TestMalformedFileIsUnavailable(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, path, []byte("turnstile-enabled: [unterminated\n"), 0o600))

	_, err := New(fsys, path).GetSettings(context.Background(), []string{settings.OptionEnabled})
	assert.ErrorIs(t, err, sentinel.ErrUnavailable)
}

func TestRejectsUnknownOption(t *testing.T) {
	err := New(afero.NewMemMapFs(), path).SetSetting(context.Background(), "nope", "x")
	assert.ErrorIs(t, err, sentinel.ErrInvalidInput)
}
