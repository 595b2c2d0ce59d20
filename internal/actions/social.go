package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const maxSocialTextLen = 3000

// SocialPostPayload is the payload of social.post.
type SocialPostPayload struct {
	Text string `json:"text"`
	Link string `json:"link,omitempty"`
	// Visibility is PUBLIC or CONNECTIONS. Empty means PUBLIC.
	Visibility string `json:"visibility,omitempty"`
}

func (p SocialPostPayload) Validate() error {
	if strings.TrimSpace(p.Text) == "" {
		return invalid("text", "is required")
	}
	if utf8.RuneCountInString(p.Text) > maxSocialTextLen {
		return invalid("text", "must be at most %d characters", maxSocialTextLen)
	}
	switch p.Visibility {
	case "", "PUBLIC", "CONNECTIONS":
	default:
		return invalid("visibility", "must be PUBLIC or CONNECTIONS, got %q", p.Visibility)
	}
	if p.Link != "" && !strings.HasPrefix(p.Link, "https://") && !strings.HasPrefix(p.Link, "http://") {
		return invalid("link", "must be an http(s) URL")
	}
	return nil
}

func (p SocialPostPayload) visibility() string {
	if p.Visibility == "" {
		return "PUBLIC"
	}
	return p.Visibility
}

// SocialPostResult reports the endpoint that accepted a post.
type SocialPostResult struct {
	Endpoint string `json:"endpoint"`
	Status   int    `json:"status"`
	ID       string `json:"id,omitempty"`
}

// Payload shapes understood by SocialEndpoint.
const (
	ShapeUGC  = "ugc"
	ShapeREST = "rest"
)

// SocialEndpoint is one candidate URL and the body shape it accepts.
type SocialEndpoint struct {
	Shape string
	URL   string
}

// ParseSocialEndpoints parses a comma separated list of shape=url pairs,
// e.g. "ugc=https://api.linkedin.com/v2/ugcPosts,rest=https://api.linkedin.com/rest/posts".
func ParseSocialEndpoints(spec string) ([]SocialEndpoint, error) {
	var eps []SocialEndpoint
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		shape, url, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("social endpoint %q: want shape=url", part)
		}
		shape = strings.ToLower(strings.TrimSpace(shape))
		if shape != ShapeUGC && shape != ShapeREST {
			return nil, fmt.Errorf("social endpoint %q: unknown shape %q", part, shape)
		}
		eps = append(eps, SocialEndpoint{Shape: shape, URL: strings.TrimSpace(url)})
	}
	return eps, nil
}

// SocialConfig configures a SocialPoster.
type SocialConfig struct {
	Endpoints []SocialEndpoint
	Token     string
	// Author is the URN posts are published as.
	Author string
}

// SocialPoster publishes posts by trying each endpoint in order.
type SocialPoster struct {
	cfg    SocialConfig
	client *http.Client
}

func NewSocialPoster(cfg SocialConfig) *SocialPoster {
	return &SocialPoster{cfg: cfg, client: &http.Client{Timeout: 30 * time.Second}}
}

// Post returns the first successful endpoint's result. When every endpoint
// fails the returned error joins each endpoint's error.
func (s *SocialPoster) Post(ctx context.Context, p SocialPostPayload) (SocialPostResult, error) {
	if len(s.cfg.Endpoints) == 0 {
		return SocialPostResult{}, errors.New("no social endpoints configured")
	}

	var errs []error
	for _, ep := range s.cfg.Endpoints {
		res, err := s.postTo(ctx, ep, p)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return SocialPostResult{}, ctx.Err()
		}
		errs = append(errs, fmt.Errorf("%s %s: %w", ep.Shape, ep.URL, err))
	}
	return SocialPostResult{}, fmt.Errorf("all %d social endpoints failed: %w", len(errs), errors.Join(errs...))
}

func (s *SocialPoster) postTo(ctx context.Context, ep SocialEndpoint, p SocialPostPayload) (SocialPostResult, error) {
	body, err := json.Marshal(s.body(ep.Shape, p))
	if err != nil {
		return SocialPostResult{}, fmt.Errorf("marshaling body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return SocialPostResult{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")
	if ep.Shape == ShapeREST {
		req.Header.Set("LinkedIn-Version", "202401")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return SocialPostResult{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return SocialPostResult{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	id := resp.Header.Get("X-Restli-Id")
	if id == "" {
		var decoded struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(respBody, &decoded) == nil {
			id = decoded.ID
		}
	}
	return SocialPostResult{Endpoint: ep.URL, Status: resp.StatusCode, ID: id}, nil
}

func (s *SocialPoster) body(shape string, p SocialPostPayload) map[string]any {
	if shape == ShapeREST {
		b := map[string]any{
			"author":         s.cfg.Author,
			"commentary":     p.Text,
			"visibility":     p.visibility(),
			"lifecycleState": "PUBLISHED",
			"distribution": map[string]any{
				"feedDistribution":               "MAIN_FEED",
				"targetEntities":                 []any{},
				"thirdPartyDistributionChannels": []any{},
			},
			"isReshareDisabledByAuthor": false,
		}
		if p.Link != "" {
			b["content"] = map[string]any{"article": map[string]any{"source": p.Link}}
		}
		return b
	}

	share := map[string]any{
		"shareCommentary":    map[string]any{"text": p.Text},
		"shareMediaCategory": "NONE",
	}
	if p.Link != "" {
		share["shareMediaCategory"] = "ARTICLE"
		share["media"] = []any{map[string]any{"status": "READY", "originalUrl": p.Link}}
	}
	return map[string]any{
		"author":          s.cfg.Author,
		"lifecycleState":  "PUBLISHED",
		"specificContent": map[string]any{"com.linkedin.ugc.ShareContent": share},
		"visibility":      map[string]any{"com.linkedin.ugc.MemberNetworkVisibility": p.visibility()},
	}
}

func (h *handlers) postSocial(ctx context.Context, _ Exec, p SocialPostPayload) (any, error) {
	if h.Social == nil {
		return nil, errors.New("social posting is not configured")
	}
	return h.Social.Post(ctx, p)
}
