package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/common"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePostService struct {
	err       error
	gotUser   int64
	gotCreate *transfer.PostGroupRequest
	gotUpdate *transfer.PostGroupUpdate
	gotQuery  *transfer.PostGroupListQuery
}

func (f *fakePostService) Create(_ context.Context, accountID int64, req *transfer.PostGroupRequest) (*models.PostGroup, error) {
	f.gotUser, f.gotCreate = accountID, req
	if f.err != nil {
		return nil, f.err
	}
	return &models.PostGroup{ID: "g1", AccountID: accountID, Content: req.Content, Status: models.PostStatusDraft}, nil
}

func (f *fakePostService) Get(_ context.Context, accountID int64, id string) (*models.PostGroup, error) {
	f.gotUser = accountID
	if f.err != nil {
		return nil, f.err
	}
	return &models.PostGroup{ID: id, Status: models.PostStatusPartiallyPublished, PlatformPosts: []*models.PlatformPost{
		{Platform: "x", Status: models.PlatformPostPublished, PlatformPostID: "123"},
		{Platform: "youtube", Status: models.PlatformPostFailed, ErrorMessage: "youtube requires a video"},
	}}, nil
}

func (f *fakePostService) List(_ context.Context, accountID int64, q *transfer.PostGroupListQuery) (*transfer.PostGroupList, error) {
	f.gotUser, f.gotQuery = accountID, q
	if f.err != nil {
		return nil, f.err
	}
	return &transfer.PostGroupList{Data: []*models.PostGroup{}, Page: 1, Limit: 20}, nil
}

func (f *fakePostService) Update(_ context.Context, accountID int64, id string, req *transfer.PostGroupUpdate) (*models.PostGroup, error) {
	f.gotUser, f.gotUpdate = accountID, req
	if f.err != nil {
		return nil, f.err
	}
	return &models.PostGroup{ID: id}, nil
}

func (f *fakePostService) Delete(_ context.Context, accountID int64, _ string) error {
	f.gotUser = accountID
	return f.err
}

func (f *fakePostService) Quota(_ context.Context, accountID int64) (*models.QuotaUsage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.QuotaUsage{AccountID: accountID, Pending: 3, Limit: 10}, nil
}

type fakeMediaService struct {
	err error
}

func (f *fakeMediaService) RegisterUpload(_ context.Context, _ int64, groupID string, req *transfer.MediaUploadRequest) (*transfer.MediaUploadResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &transfer.MediaUploadResponse{MediaID: "m1", UploadURL: "https://upload.test/" + groupID + "/" + req.FileName}, nil
}

func (f *fakeMediaService) CompleteUpload(context.Context, int64, string) error { return f.err }

func (f *fakeMediaService) Process(context.Context, string) (*models.MediaReference, error) {
	return nil, nil
}

func (f *fakeMediaService) DeleteObjects(context.Context, []string) error { return nil }

func newApp(posts *fakePostService, media *fakeMediaService) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", "7")
		return c.Next()
	})

	ph := NewPostHandler(posts)
	app.Post("/api/posts", ph.CreatePost)
	app.Get("/api/posts", ph.ListPosts)
	app.Get("/api/posts/:id", ph.GetPost)
	app.Put("/api/posts/:id", ph.UpdatePost)
	app.Delete("/api/posts/:id", ph.RemovePost)
	app.Get("/api/quota", ph.Quota)

	mh := NewMediaHandler(media)
	app.Post("/api/posts/:id/media", mh.RegisterUpload)
	app.Post("/api/media/:id/complete", mh.CompleteUpload)
	return app
}

func do(t *testing.T, app *fiber.App, method, target, body string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp, out
}

func TestCreatePost(t *testing.T) {
	posts := &fakePostService{}
	app := newApp(posts, &fakeMediaService{})

	resp, body := do(t, app, http.MethodPost, "/api/posts",
		`{"content":"hello","connection_ids":[1,2],"scheduled_time":"2030-01-02T15:04:05Z","settings":{"x":{"thread_numbering":true}}}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "g1", body["id"])
	assert.Equal(t, int64(7), posts.gotUser)
	assert.Equal(t, []int64{1, 2}, posts.gotCreate.ConnectionIDs)
	require.NotNil(t, posts.gotCreate.ScheduledTime)
	assert.Equal(t, time.Date(2030, 1, 2, 15, 4, 5, 0, time.UTC), posts.gotCreate.ScheduledTime.UTC())
	assert.Equal(t, true, posts.gotCreate.Settings["x"]["thread_numbering"])

	resp, _ = do(t, app, http.MethodPost, "/api/posts", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{common.Validation("scheduled_time must be in the future"), http.StatusBadRequest},
		{common.InvalidMedia("mixed"), http.StatusBadRequest},
		{common.ErrNotFound, http.StatusNotFound},
		{common.InvalidState("post group is processing"), http.StatusConflict},
		{common.ErrQuotaExceeded, http.StatusForbidden},
		{&common.RateLimitError{RetryAfter: 30 * time.Second, Limit: 5}, http.StatusTooManyRequests},
		{errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			app := newApp(&fakePostService{err: tc.err}, &fakeMediaService{})
			resp, body := do(t, app, http.MethodDelete, "/api/posts/g1", "")
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
			if tc.status == http.StatusTooManyRequests {
				assert.Equal(t, "30", resp.Header.Get("Retry-After"))
			}
			if tc.status == http.StatusInternalServerError {
				assert.NotContains(t, body["error"], "db down")
			}
		})
	}
}

func TestGetPostShowsPerPlatformOutcome(t *testing.T) {
	app := newApp(&fakePostService{}, &fakeMediaService{})

	resp, body := do(t, app, http.MethodGet, "/api/posts/g1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "partially_published", body["status"])

	posts := body["platform_posts"].([]any)
	require.Len(t, posts, 2)
	assert.Equal(t, "123", posts[0].(map[string]any)["platform_post_id"])
	assert.Equal(t, "youtube requires a video", posts[1].(map[string]any)["error"])
}

func TestListPostsParsesQuery(t *testing.T) {
	posts := &fakePostService{}
	app := newApp(posts, &fakeMediaService{})

	resp, _ := do(t, app, http.MethodGet, "/api/posts?page=2&limit=500&status=scheduled&platform=x&from=2030-01-01T00:00:00Z", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, posts.gotQuery.Page)
	assert.Equal(t, 500, posts.gotQuery.Limit)
	assert.Equal(t, "scheduled", posts.gotQuery.Status)
	assert.Equal(t, "x", posts.gotQuery.Platform)
	require.NotNil(t, posts.gotQuery.From)
	assert.Nil(t, posts.gotQuery.To)

	resp, _ = do(t, app, http.MethodGet, "/api/posts?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdatePost(t *testing.T) {
	posts := &fakePostService{}
	app := newApp(posts, &fakeMediaService{})

	resp, _ := do(t, app, http.MethodPut, "/api/posts/g1", `{"status":"draft","content":"v2"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, posts.gotUpdate.Status)
	assert.Equal(t, "draft", *posts.gotUpdate.Status)
	assert.Equal(t, "v2", *posts.gotUpdate.Content)
	assert.Nil(t, posts.gotUpdate.ScheduledTime)
}

func TestQuota(t *testing.T) {
	app := newApp(&fakePostService{}, &fakeMediaService{})

	resp, body := do(t, app, http.MethodGet, "/api/quota", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), body["pending"])
	assert.Equal(t, float64(10), body["limit"])
}

func TestMediaRoutes(t *testing.T) {
	app := newApp(&fakePostService{}, &fakeMediaService{})

	resp, body := do(t, app, http.MethodPost, "/api/posts/g1/media", `{"file_name":"a.jpg","content_type":"image/jpeg","kind":"image"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "m1", body["media_id"])
	assert.Equal(t, "https://upload.test/g1/a.jpg", body["upload_url"])

	resp, _ = do(t, app, http.MethodPost, "/api/media/m1/complete", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	app = newApp(&fakePostService{}, &fakeMediaService{err: common.InvalidMedia("content type video/mp4 does not match kind image")})
	resp, _ = do(t, app, http.MethodPost, "/api/posts/g1/media", `{"file_name":"a.mp4","content_type":"video/mp4","kind":"image"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
