package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiawesome/wes-io-watchparty/internal/auth"
	"github.com/weiawesome/wes-io-watchparty/internal/cache"
	"github.com/weiawesome/wes-io-watchparty/internal/client"
	"github.com/weiawesome/wes-io-watchparty/internal/config"
	"github.com/weiawesome/wes-io-watchparty/internal/domain"
	"github.com/weiawesome/wes-io-watchparty/internal/idgen"
	"github.com/weiawesome/wes-io-watchparty/internal/repository"
	"github.com/weiawesome/wes-io-watchparty/internal/service"
	"github.com/weiawesome/wes-io-watchparty/pkg/jwt"
	"github.com/weiawesome/wes-io-watchparty/pkg/pubsub"
)

type apiFixture struct {
	url    string
	tokens *jwt.Manager
	bus    *pubsub.MemoryPubSub
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens, err := jwt.NewManager("api-test-secret", time.Hour, "test")
	require.NoError(t, err)

	videos := repository.NewMemoryVideoRepository()
	videos.Seed([]config.VideoSeed{
		{ID: 1, Title: "Pilot", VideoURL: "/v/1.mp4"},
		{ID: 2, Title: "Premiere", VideoURL: "/v/2.mp4", StartsIn: time.Hour, DurationSeconds: 900},
	}, time.Now())

	codes, err := idgen.NewRoomCodeGenerator(idgen.DefaultRoomCodeSize)
	require.NoError(t, err)

	bus := pubsub.NewMemoryPubSub()
	parties := service.NewPartyService(
		repository.NewMemoryPartyRepository(),
		videos,
		cache.NewMemoryPartyCache("test"),
		time.Minute,
		bus,
		codes,
	)

	r := gin.New()
	NewHandler(service.NewVideoService(videos, nil), parties, tokens).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		bus.Close()
	})

	return &apiFixture{url: srv.URL, tokens: tokens, bus: bus}
}

func (f *apiFixture) as(t *testing.T, username string) *client.Client {
	t.Helper()
	anon := client.New(f.url, time.Second, nil)
	tok, err := anon.Login(context.Background(), username)
	require.NoError(t, err)
	assert.Equal(t, username, tok.Username)

	return client.New(f.url, time.Second, auth.StaticProvider{User: username, BearerToken: tok.AccessToken})
}

func TestVideoEndpoints(t *testing.T) {
	f := newAPI(t)
	c := f.as(t, "alice")
	videos := client.NewVideoClient(c)
	ctx := context.Background()

	list, err := videos.ListVideos(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	v, err := videos.Video(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Pilot", v.Title)
	assert.Equal(t, int64(1), v.Views)

	_, err = videos.Video(ctx, 2)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = videos.Video(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	snap, err := videos.StreamInfo(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseNotStarted, domain.PhaseOf(snap))

	like, err := videos.ToggleLike(ctx, 1)
	require.NoError(t, err)
	assert.True(t, like.LikedByCurrentUser)
}

func TestLikeRequiresAuth(t *testing.T) {
	f := newAPI(t)
	videos := client.NewVideoClient(client.New(f.url, time.Second, nil))

	_, err := videos.ToggleLike(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestPartyLifecycle(t *testing.T) {
	f := newAPI(t)
	ctx := context.Background()
	alice := client.NewPartyClient(f.as(t, "alice"))
	bob := client.NewPartyClient(f.as(t, "bob"))

	party, err := alice.Create(ctx, "Movie night")
	require.NoError(t, err)
	assert.Equal(t, "alice", party.OwnerUsername)
	code := party.RoomCode

	joined, err := bob.Join(ctx, code)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, joined.ParticipantUsernames)

	assert.ErrorIs(t, bob.StartVideo(ctx, code, 1), domain.ErrForbidden)
	require.NoError(t, alice.StartVideo(ctx, code, 1))

	got, err := bob.Get(ctx, code)
	require.NoError(t, err)
	require.NotNil(t, got.CurrentVideoID)
	assert.Equal(t, int64(1), *got.CurrentVideoID)

	active, err := bob.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.NoError(t, bob.Leave(ctx, code))
	assert.ErrorIs(t, bob.Close(ctx, code), domain.ErrForbidden)
	require.NoError(t, alice.Close(ctx, code))

	got, err = alice.Get(ctx, code)
	require.NoError(t, err)
	assert.False(t, got.Active)

	_, err = bob.Get(ctx, "ZZZZZZ")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBadRequests(t *testing.T) {
	f := newAPI(t)
	token, _, err := f.tokens.GenerateToken("alice")
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		auth   bool
		want   int
	}{
		{"non numeric video id", http.MethodGet, "/api/videos/abc", false, http.StatusBadRequest},
		{"create without body", http.MethodPost, "/api/watch-party", true, http.StatusBadRequest},
		{"create without token", http.MethodPost, "/api/watch-party", false, http.StatusUnauthorized},
		{"login without username", http.MethodPost, "/api/auth/token", false, http.StatusBadRequest},
		{"bad start video id", http.MethodPost, "/api/watch-party/ABCDEF/start-video/0", true, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, f.url+tt.path, nil)
			require.NoError(t, err)
			if tt.auth {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			res, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			res.Body.Close()
			assert.Equal(t, tt.want, res.StatusCode)
		})
	}
}
