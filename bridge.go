package imgsync

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const bridgeRequestTimeout = 30 * time.Second

// HTTPSession talks to a channel bridge over a small JSON API:
//
//	GET {BaseURL}/me
//	GET {BaseURL}/channels/{channel}/messages?min_id=N&limit=N
//	GET {BaseURL}/channels/{channel}/messages/{id}/media
//
// The bridge owns the channel client credentials; HTTPSession only carries
// a bearer token.
type HTTPSession struct {
	BaseURL       string
	Channel       string       // channel used for media downloads (default: last listed channel)
	Token         string       // optional bearer token
	HTTPClient    *http.Client // default: http.DefaultClient
	StealthClient *http.Client // optional: TLS-fingerprinted client tried first for media
	UserAgent     string       // default: "go-imgsync/1.0"
	MaxMediaBytes int64        // default: 20MB

	self *Identity
}

func (s *HTTPSession) defaults() {
	if s.HTTPClient == nil {
		s.HTTPClient = http.DefaultClient
	}
	if s.UserAgent == "" {
		s.UserAgent = "go-imgsync/1.0"
	}
	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
}

// Connect authenticates against the bridge by resolving the session identity.
func (s *HTTPSession) Connect(ctx context.Context) error {
	s.defaults()
	if s.BaseURL == "" {
		return &RemoteFetchError{Op: "connect", Err: fmt.Errorf("no bridge url configured")}
	}
	id, err := s.Self(ctx)
	if err != nil {
		return err
	}
	s.self = &id
	return nil
}

// Self returns the identity the bridge is authenticated as.
func (s *HTTPSession) Self(ctx context.Context) (Identity, error) {
	s.defaults()
	if s.self != nil {
		return *s.self, nil
	}
	var id Identity
	if err := s.getJSON(ctx, s.BaseURL+"/me", &id); err != nil {
		return Identity{}, &RemoteFetchError{Op: "self", Err: err}
	}
	return id, nil
}

type messagesPage struct {
	Messages []MessageView `json:"messages"`
}

// Messages fetches one page from the bridge and yields it in feed order.
// A failed request is yielded once as *RemoteFetchError.
func (s *HTTPSession) Messages(ctx context.Context, channel string, minID int64, limit int) iter.Seq2[MessageView, error] {
	if s.Channel == "" {
		s.Channel = channel
	}
	return func(yield func(MessageView, error) bool) {
		s.defaults()
		q := url.Values{}
		q.Set("min_id", strconv.FormatInt(minID, 10))
		q.Set("limit", strconv.Itoa(limit))
		endpoint := s.BaseURL + "/channels/" + url.PathEscape(channel) + "/messages?" + q.Encode()

		var page messagesPage
		if err := s.getJSON(ctx, endpoint, &page); err != nil {
			yield(MessageView{}, &RemoteFetchError{Op: "messages", Err: err})
			return
		}
		for i, msg := range page.Messages {
			if limit > 0 && i >= limit {
				return
			}
			if !yield(msg, nil) {
				return
			}
		}
	}
}

// DownloadMedia fetches the photo payload of msg.
func (s *HTTPSession) DownloadMedia(ctx context.Context, msg MessageView) ([]byte, error) {
	s.defaults()
	endpoint := fmt.Sprintf("%s/channels/%s/messages/%d/media", s.BaseURL, url.PathEscape(s.Channel), msg.ID)
	res, err := download(ctx, s.StealthClient, s.HTTPClient, endpoint, DownloadOpts{
		MaxBytes:  s.MaxMediaBytes,
		UserAgent: s.UserAgent,
		Token:     s.Token,
	})
	if err != nil {
		return nil, &RemoteFetchError{Op: "download " + strconv.FormatInt(msg.ID, 10), Err: err}
	}
	if res.MIMEType != "" && !strings.HasPrefix(res.MIMEType, "image/") {
		return nil, &DecodeError{
			Source: "message " + strconv.FormatInt(msg.ID, 10),
			Err:    fmt.Errorf("unexpected content type %q", res.MIMEType),
		}
	}
	return res.Data, nil
}

// Close releases idle connections held by the session clients.
func (s *HTTPSession) Close() error {
	if s.HTTPClient != nil {
		s.HTTPClient.CloseIdleConnections()
	}
	if s.StealthClient != nil {
		s.StealthClient.CloseIdleConnections()
	}
	s.self = nil
	return nil
}

func (s *HTTPSession) getJSON(ctx context.Context, endpoint string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, bridgeRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", s.UserAgent)
	req.Header.Set("Accept", "application/json")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	resp, err := s.HTTPClient.Do(req) //nolint:gosec // G704: URL is built from the configured bridge base
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decode: %w", endpoint, err)
	}
	return nil
}
