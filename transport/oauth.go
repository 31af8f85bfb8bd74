package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/viant/scy/auth/authorizer"
	"github.com/viant/scy/auth/flow"
	"golang.org/x/oauth2"
)

// FlowTokenSource obtains tokens through an interactive OAuth2 flow, refreshing
// the cached token when it expires and falling back to the flow otherwise.
type FlowTokenSource struct {
	ctx      context.Context
	config   *oauth2.Config
	authFlow flow.AuthFlow
	options  []flow.Option
	token    *oauth2.Token
	mux      sync.Mutex
}

// Token returns a valid token.
func (s *FlowTokenSource) Token() (*oauth2.Token, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.token.Valid() {
		return s.token, nil
	}
	if s.token != nil && s.token.RefreshToken != "" {
		if refreshed, err := s.config.TokenSource(s.ctx, s.token).Token(); err == nil {
			if refreshed.RefreshToken == "" {
				refreshed.RefreshToken = s.token.RefreshToken
			}
			s.token = refreshed
			return refreshed, nil
		}
	}
	token, err := s.authFlow.Token(s.ctx, s.config, s.options...)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain oauth2 token: %w", err)
	}
	s.token = token
	return token, nil
}

// NewFlowTokenSource creates a token source for config driven by authFlow.
func NewFlowTokenSource(ctx context.Context, config *oauth2.Config, authFlow flow.AuthFlow, options ...flow.Option) *FlowTokenSource {
	return &FlowTokenSource{ctx: ctx, config: config, authFlow: authFlow, options: options}
}

// OAuth2TokenSource loads the OAuth2 client config from configURL (optionally
// suffixed with "|" and an encryption key) and returns a token source backed
// by authFlow.
func OAuth2TokenSource(ctx context.Context, configURL string, authFlow flow.AuthFlow) (*FlowTokenSource, error) {
	oauthCfg := &authorizer.OAuthConfig{ConfigURL: configURL}
	if err := authorizer.New().EnsureConfig(ctx, oauthCfg); err != nil {
		return nil, fmt.Errorf("failed to load oauth2 config: %w", err)
	}
	if oauthCfg.Config == nil {
		return nil, fmt.Errorf("oauth2 config %v was empty", configURL)
	}
	return NewFlowTokenSource(ctx, oauthCfg.Config, authFlow, flow.WithPKCE(true)), nil
}
