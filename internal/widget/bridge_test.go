package widget

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"signupgate/internal/settings"
)

type fakeAPI struct {
	mu         sync.Mutex
	readyAfter int
	checks     int
	renders    []string
	opts       RenderOptions
	renderErr  error
	response   string
}

func (f *fakeAPI) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	return f.readyAfter >= 0 && f.checks > f.readyAfter
}

func (f *fakeAPI) Render(selector string, opts RenderOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renders = append(f.renders, selector)
	f.opts = opts
	return f.renderErr
}

func (f *fakeAPI) GetResponse() string {
	return f.response
}

type fakeNotifier struct{ messages []string }

func (n *fakeNotifier) Error(message string) { n.messages = append(n.messages, message) }

type BridgeSuite struct {
	suite.Suite
	api      *fakeAPI
	notifier *fakeNotifier
	bridge   *Bridge
}

func TestBridgeSuite(t *testing.T) {
	suite.Run(t, new(BridgeSuite))
}

func (s *BridgeSuite) SetupTest() {
	s.api = &fakeAPI{}
	s.notifier = &fakeNotifier{}
	s.bridge = s.newBridge(active)
}

func (s *BridgeSuite) newBridge(public settings.PublicSettings) *Bridge {
	b, err := NewBridge(s.api, public,
		WithRetryDelay(time.Millisecond),
		WithMaxAttempts(5),
		WithNotifier(s.notifier),
		WithBridgeLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.Require().NoError(err)
	return b
}

func (s *BridgeSuite) TestNewRequiresAPI() {
	_, err := NewBridge(nil, active)
	s.Error(err)
}

// =============================================================================
// Rendering
// =============================================================================

func (s *BridgeSuite) TestRenderWhenReady() {
	s.Require().NoError(s.bridge.Render(context.Background()))
	s.Equal([]string{WidgetSelector}, s.api.renders)
	s.Equal(active.SiteKey, s.api.opts.SiteKey)
	s.NotPanics(func() {
		s.api.opts.Callback("token")
		s.api.opts.ErrorCallback()
	})
}

func (s *BridgeSuite) TestRenderWaitsForAPI() {
	s.api.readyAfter = 3

	s.Require().NoError(s.bridge.Render(context.Background()))
	s.Equal(4, s.api.checks)
	s.Len(s.api.renders, 1)
}

func (s *BridgeSuite) TestRenderGivesUp() {
	s.api.readyAfter = -1

	err := s.bridge.Render(context.Background())
	s.ErrorIs(err, ErrChallengeUnavailable)
	s.Equal(5, s.api.checks)
	s.Empty(s.api.renders)
}

func (s *BridgeSuite) TestRenderHonoursCancellation() {
	s.api.readyAfter = -1
	b, err := NewBridge(s.api, active, WithRetryDelay(time.Hour))
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.ErrorIs(b.Render(ctx), context.Canceled)
}

func (s *BridgeSuite) TestRenderError() {
	s.api.renderErr = errors.New("bad selector")
	s.Error(s.bridge.Render(context.Background()))
}

func (s *BridgeSuite) TestInactiveBridgeDoesNothing() {
	b := s.newBridge(settings.PublicSettings{Enabled: true})
	s.NoError(b.Render(context.Background()))
	s.Zero(s.api.checks)

	params, err := b.AttachToken(map[string]any{"username": "alice"})
	s.Require().NoError(err)
	s.Equal(map[string]any{"username": "alice"}, params)
}

// =============================================================================
// Token attachment
// =============================================================================

func (s *BridgeSuite) TestAttachToken() {
	s.api.response = "widget-token"
	in := map[string]any{"username": "alice", "email": "alice@example.com"}

	out, err := s.bridge.AttachToken(in)
	s.Require().NoError(err)
	s.Equal("widget-token", out[TokenField])
	s.Equal("alice", out["username"])
	s.NotContains(in, TokenField, "input is not mutated")
}

func (s *BridgeSuite) TestAttachTokenWithoutResponse() {
	out, err := s.bridge.AttachToken(map[string]any{"username": "alice"})
	s.ErrorIs(err, ErrVerificationRequired)
	s.Nil(out)
	s.Equal([]string{NoticeCompleteChallenge}, s.notifier.messages)
}
