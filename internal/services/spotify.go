// Spotify API implementation of [Library]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/tagify/spotmirror/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	playlistPageLimit = 50
	trackPageLimit    = 100
	likedPageLimit    = 50
	mutationBatchSize = 100
)

// spotifyUser represents a Spotify user profile.
type spotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type spotifyOwner struct {
	ID string `json:"id"`
}

type spotifyTrackRef struct {
	Total int `json:"total"`
}

// spotifySimplePlaylist represents a playlist object in paginated lists.
type spotifySimplePlaylist struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	SnapshotID  string          `json:"snapshot_id"`
	Owner       spotifyOwner    `json:"owner"`
	Tracks      spotifyTrackRef `json:"tracks"`
}

type spotifyPaginatedPlaylists struct {
	Items []spotifySimplePlaylist `json:"items"`
	Total int                     `json:"total"`
	Next  *string                 `json:"next"`
}

type spotifyArtist struct {
	Name string `json:"name"`
}

type spotifyAlbum struct {
	Name string `json:"name"`
}

type spotifyTrack struct {
	ID         string          `json:"id"`
	URI        string          `json:"uri"`
	Name       string          `json:"name"`
	Artists    []spotifyArtist `json:"artists"`
	Album      spotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	IsLocal    bool            `json:"is_local"`
}

type spotifyPlaylistTrack struct {
	AddedAt string        `json:"added_at"`
	Track   *spotifyTrack `json:"track"`
}

type spotifyPaginatedTracks struct {
	Items []spotifyPlaylistTrack `json:"items"`
	Total int                    `json:"total"`
	Next  *string                `json:"next"`
}

type spotifySavedTrack struct {
	AddedAt string        `json:"added_at"`
	Track   *spotifyTrack `json:"track"`
}

type spotifyPaginatedSaved struct {
	Items []spotifySavedTrack `json:"items"`
	Total int                 `json:"total"`
	Next  *string             `json:"next"`
}

// SpotifyService implements the [Library] interface for Spotify API interactions.
//
// A session token is threaded through an [oauth2.Token]; every request passes
// the shared [rate.Limiter] and a bounded exponential backoff.
type SpotifyService struct {
	config     *oauth2.Config
	token      *oauth2.Token
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	exclusions shared.ExclusionsConfig
	maxRetries uint64
}

// SpotifyOption customizes a [SpotifyService]; used by tests to point at a fake server.
type SpotifyOption func(*SpotifyService)

// WithBaseURL overrides the Spotify API base URL.
func WithBaseURL(url string) SpotifyOption {
	return func(s *SpotifyService) { s.baseURL = url }
}

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) SpotifyOption {
	return func(s *SpotifyService) { s.httpClient = c }
}

// WithRateLimit overrides the request rate limit (requests per second).
func WithRateLimit(rps float64) SpotifyOption {
	return func(s *SpotifyService) { s.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// NewSpotifyService creates a new Spotify service from credentials and exclusion rules.
func NewSpotifyService(cfg shared.SpotifyConfig, exclusions shared.ExclusionsConfig, opts ...SpotifyOption) (*SpotifyService, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: client_id and client_secret are required", shared.ErrMissingCredentials)
	}

	redirectURI := cfg.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://localhost:8888/callback"
	}

	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"playlist-read-private",
			"user-library-read",
			"playlist-modify-public",
			"playlist-modify-private",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	svc := &SpotifyService{
		config:     config,
		httpClient: http.DefaultClient,
		baseURL:    spotifyBaseURL,
		limiter:    rate.NewLimiter(rate.Limit(5), 1),
		exclusions: exclusions,
		maxRetries: 3,
	}

	for _, opt := range opts {
		opt(svc)
	}

	if cfg.AccessToken != "" {
		svc.token = &oauth2.Token{AccessToken: cfg.AccessToken}
	}

	return svc, nil
}

// Authenticate installs a session token. Expects either an access token or an
// auth code to exchange; the interactive flow itself happens elsewhere.
func (s *SpotifyService) Authenticate(ctx context.Context, credentials map[string]string) error {
	if accessToken, ok := credentials["access_token"]; ok && accessToken != "" {
		s.token = &oauth2.Token{AccessToken: accessToken}
		return nil
	}

	if authCode, ok := credentials["auth_code"]; ok && authCode != "" {
		token, err := s.config.Exchange(ctx, authCode)
		if err != nil {
			return fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrAuthExpired, err)
		}
		s.token = token
		return nil
	}

	return fmt.Errorf("%w: missing access_token or auth_code", shared.ErrMissingCredentials)
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// OAuthConfig exposes the underlying [oauth2.Config] for the callback exchange.
func (s *SpotifyService) OAuthConfig() *oauth2.Config {
	return s.config
}

// doRequest performs an authenticated request with rate limiting and bounded
// exponential backoff. 401 surfaces immediately; 429 honors Retry-After; 5xx
// and transport errors are retried.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	if s.token == nil {
		return fmt.Errorf("%w: call Authenticate first", shared.ErrAuthExpired)
	}

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = data
	}

	backoff := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		var reqBody *bytes.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		} else {
			reqBody = bytes.NewReader(nil)
		}

		req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, reqBody)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+s.token.AccessToken)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("%w: %v", shared.ErrRemoteUnavailable, err))
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%w: status 401", shared.ErrAuthExpired)

		case resp.StatusCode == http.StatusTooManyRequests:
			wait := retryAfter(resp)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			return retry.RetryableError(fmt.Errorf("%w: retry after %s", shared.ErrRateLimited, wait))

		case resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("%w: status %d", shared.ErrRemoteUnavailable, resp.StatusCode))

		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return fmt.Errorf("%w: spotify API error: status %d", shared.ErrRemoteUnavailable, resp.StatusCode)
		}

		if result != nil {
			if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
				return fmt.Errorf("%w: failed to decode response: %v", shared.ErrMalformedResponse, err)
			}
		}

		return nil
	})
}

// retryAfter reads the Retry-After hint from a 429 response, defaulting to one second.
func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Second
}

// CurrentUser retrieves the current authenticated user's profile.
func (s *SpotifyService) CurrentUser(ctx context.Context) (*User, error) {
	var user spotifyUser
	if err := s.doRequest(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: user profile missing id", shared.ErrMalformedResponse)
	}
	return &User{ID: user.ID, DisplayName: user.DisplayName}, nil
}

// Playlists retrieves every playlist owned by the current user, filtered by the
// configured exclusion rules. All pages are fetched and merged before returning.
func (s *SpotifyService) Playlists(ctx context.Context) ([]Playlist, error) {
	user, err := s.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	var all []Playlist
	offset := 0

	for {
		endpoint := fmt.Sprintf("/me/playlists?limit=%d&offset=%d", playlistPageLimit, offset)

		var page spotifyPaginatedPlaylists
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			if item.ID == "" || item.Name == "" {
				return nil, fmt.Errorf("%w: playlist missing id or name", shared.ErrMalformedResponse)
			}
			if item.Owner.ID != user.ID {
				continue
			}
			if s.isExcluded(item) {
				continue
			}
			all = append(all, Playlist{
				ID:          item.ID,
				Name:        strings.TrimSpace(item.Name),
				Description: item.Description,
				SnapshotID:  item.SnapshotID,
				TrackCount:  item.Tracks.Total,
			})
		}

		if page.Next == nil || len(page.Items) == 0 {
			break
		}
		offset += playlistPageLimit
	}

	return all, nil
}

// PlaylistTracks retrieves the full track list of one playlist, merging all pages.
func (s *SpotifyService) PlaylistTracks(ctx context.Context, playlistID string) ([]Track, error) {
	if playlistID == "" {
		return nil, fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

	var all []Track
	offset := 0

	for {
		endpoint := fmt.Sprintf(
			"/playlists/%s/tracks?limit=%d&offset=%d&fields=items(added_at,track(id,uri,name,artists(name),album(name),duration_ms,is_local)),next,total",
			playlistID, trackPageLimit, offset,
		)

		var page spotifyPaginatedTracks
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			if item.Track == nil {
				continue
			}
			track, err := convertTrack(item.Track, item.AddedAt)
			if err != nil {
				return nil, err
			}
			all = append(all, track)
		}

		if page.Next == nil || len(page.Items) == 0 {
			break
		}
		offset += trackPageLimit
	}

	return dedupeTracks(all), nil
}

// LikedTracks retrieves the user's saved tracks added at or after since.
func (s *SpotifyService) LikedTracks(ctx context.Context, since time.Time) ([]Track, error) {
	var all []Track
	offset := 0

	for {
		endpoint := fmt.Sprintf("/me/tracks?limit=%d&offset=%d", likedPageLimit, offset)

		var page spotifyPaginatedSaved
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			if item.Track == nil {
				continue
			}
			track, err := convertTrack(item.Track, item.AddedAt)
			if err != nil {
				return nil, err
			}
			if !since.IsZero() && track.AddedAt.Before(since) {
				continue
			}
			all = append(all, track)
		}

		if page.Next == nil || len(page.Items) == 0 {
			break
		}
		offset += likedPageLimit
	}

	return all, nil
}

// AddPlaylistTracks adds tracks to a playlist in batches of 100.
func (s *SpotifyService) AddPlaylistTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	return s.mutateMembership(ctx, playlistID, trackIDs, true)
}

// RemovePlaylistTracks removes tracks from a playlist in batches of 100.
func (s *SpotifyService) RemovePlaylistTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	return s.mutateMembership(ctx, playlistID, trackIDs, false)
}

func (s *SpotifyService) mutateMembership(ctx context.Context, playlistID string, trackIDs []string, add bool) error {
	if playlistID == "" {
		return fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}
	if len(trackIDs) == 0 {
		return nil
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks", playlistID)

	for i := 0; i < len(trackIDs); i += mutationBatchSize {
		end := min(i+mutationBatchSize, len(trackIDs))
		batch := trackIDs[i:end]

		var body any
		method := http.MethodPost
		if add {
			uris := make([]string, 0, len(batch))
			for _, id := range batch {
				uris = append(uris, "spotify:track:"+id)
			}
			body = map[string]any{"uris": uris}
		} else {
			method = http.MethodDelete
			tracks := make([]map[string]string, 0, len(batch))
			for _, id := range batch {
				tracks = append(tracks, map[string]string{"uri": "spotify:track:" + id})
			}
			body = map[string]any{"tracks": tracks}
		}

		if err := s.doRequest(ctx, method, endpoint, body, nil); err != nil {
			return err
		}
	}

	return nil
}

// isExcluded applies the configured exclusion rules to a playlist.
func (s *SpotifyService) isExcluded(p spotifySimplePlaylist) bool {
	for _, id := range s.exclusions.PlaylistIDs {
		if p.ID == id {
			return true
		}
	}

	name := strings.ToLower(p.Name)
	for _, forbidden := range s.exclusions.PlaylistNames {
		if name == strings.ToLower(forbidden) {
			return true
		}
	}

	for _, word := range s.exclusions.NameKeywords {
		if word != "" && strings.Contains(name, strings.ToLower(word)) {
			return true
		}
	}

	description := strings.ToLower(p.Description)
	for _, word := range s.exclusions.DescriptionKeywords {
		if word != "" && strings.Contains(description, strings.ToLower(word)) {
			return true
		}
	}

	return false
}

// convertTrack validates a raw track and converts it to the domain type.
//
// Regular tracks must carry a remote identifier; local files derive a stable
// one from their URI instead.
func convertTrack(raw *spotifyTrack, addedAt string) (Track, error) {
	track := Track{
		URI:        raw.URI,
		Title:      raw.Name,
		Album:      raw.Album.Name,
		DurationMS: raw.DurationMS,
		IsLocal:    raw.IsLocal,
	}

	for _, artist := range raw.Artists {
		track.Artists = append(track.Artists, artist.Name)
	}

	if addedAt != "" {
		parsed, err := time.Parse(time.RFC3339, addedAt)
		if err != nil {
			return Track{}, fmt.Errorf("%w: bad added_at %q", shared.ErrMalformedResponse, addedAt)
		}
		track.AddedAt = parsed
	}

	if raw.IsLocal {
		if raw.URI == "" {
			return Track{}, fmt.Errorf("%w: local track missing uri", shared.ErrMalformedResponse)
		}
		track.ID = LocalTrackID(raw.URI)
		if track.Album == "" {
			track.Album = "Local File"
		}
		return track, nil
	}

	if raw.ID == "" || raw.Name == "" {
		return Track{}, fmt.Errorf("%w: track missing id or name", shared.ErrMalformedResponse)
	}
	track.ID = raw.ID

	return track, nil
}

// dedupeTracks removes duplicate entries, keeping the earliest added_at per identifier.
func dedupeTracks(tracks []Track) []Track {
	seen := make(map[string]int, len(tracks))
	unique := make([]Track, 0, len(tracks))

	for _, track := range tracks {
		if idx, ok := seen[track.ID]; ok {
			if !track.AddedAt.IsZero() && track.AddedAt.Before(unique[idx].AddedAt) {
				unique[idx].AddedAt = track.AddedAt
			}
			continue
		}
		seen[track.ID] = len(unique)
		unique = append(unique, track)
	}

	return unique
}
