/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/acronis/go-blogapi/httpserver/middleware"
	"github.com/acronis/go-blogapi/internal/auth"
	"github.com/acronis/go-blogapi/internal/post"
	"github.com/acronis/go-blogapi/internal/ratelimit"
	"github.com/acronis/go-blogapi/internal/upload"
	"github.com/acronis/go-blogapi/restapi"
	"github.com/acronis/go-blogapi/testutil"
)

const (
	testErrDomain = "BlogAPI"
	aliceToken    = "alice-token"
	bobToken      = "bob-token"
)

type APITestSuite struct {
	suite.Suite
	now    time.Time
	seq    int
	repo   *post.MemoryRepository
	router chi.Router
}

func TestAPI(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}

func (ts *APITestSuite) SetupTest() {
	ts.now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ts.seq = 0
	ts.repo = post.NewMemoryRepositoryWithOpts(post.MemoryRepositoryOpts{
		Clock: func() time.Time {
			ts.now = ts.now.Add(time.Second)
			return ts.now
		},
		NewID: func() string {
			ts.seq++
			return fmt.Sprintf("post-%d", ts.seq)
		},
	})
	store, err := upload.NewStoreWithOpts(&upload.Config{Dir: ts.T().TempDir(), MaxSize: 1024}, upload.StoreOpts{
		NewName: func() string { return "uploaded" },
	})
	ts.Require().NoError(err)
	ts.router = newTestRouter(RoutesOpts{
		ErrorDomain:   testErrDomain,
		Repository:    ts.repo,
		Authenticator: auth.NewAuthenticator(map[string]string{aliceToken: "alice", bobToken: "bob"}),
		Uploads:       store,
	})
}

func newTestRouter(opts RoutesOpts) chi.Router {
	router := chi.NewRouter()
	router.Route(fmt.Sprintf("/api/v%d", Version), NewRoutes(opts))
	return router
}

func (ts *APITestSuite) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		ts.Require().NoError(err)
		reqBody = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, "/api/v1"+path, reqBody)
	if body != nil {
		req.Header.Set("Content-Type", restapi.ContentTypeAppJSON)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)
	return resp
}

func (ts *APITestSuite) createPost(token, title, author string) post.Post {
	resp := ts.do(http.MethodPost, "/posts", token, post.CreateParams{
		Title: title, Author: author, Content: "Content of the post " + title,
	})
	ts.Require().Equal(http.StatusCreated, resp.Code, resp.Body.String())
	var got PostResponse
	ts.Require().NoError(json.NewDecoder(resp.Body).Decode(&got))
	return got.Post
}

func (ts *APITestSuite) TestCreate() {
	resp := ts.do(http.MethodPost, "/posts", aliceToken, post.CreateParams{
		Title: "First post", Author: "Alice", Content: "Hello, this is my first post.",
	})
	ts.Require().Equal(http.StatusCreated, resp.Code)
	var got PostResponse
	ts.Require().NoError(json.NewDecoder(resp.Body).Decode(&got))
	ts.Require().Equal("Post created", got.Message)
	ts.Require().Equal("post-1", got.Post.ID)
	ts.Require().Equal("alice", got.Post.UserID)
	ts.Require().Equal("First post", got.Post.Title)
}

func (ts *APITestSuite) TestCreateUnauthorized() {
	resp := ts.do(http.MethodPost, "/posts", "", post.CreateParams{Title: "Title", Author: "Al", Content: "0123456789"})
	testutil.RequireErrorInRecorder(ts.T(), resp, http.StatusUnauthorized, testErrDomain, restapi.ErrCodeUnauthorized)

	resp = ts.do(http.MethodPost, "/posts", "unknown", post.CreateParams{Title: "Title", Author: "Al", Content: "0123456789"})
	testutil.RequireErrorInRecorder(ts.T(), resp, http.StatusUnauthorized, testErrDomain, restapi.ErrCodeUnauthorized)
	ts.Require().Zero(ts.seq)
}

func (ts *APITestSuite) TestCreateValidationError() {
	resp := ts.do(http.MethodPost, "/posts", aliceToken, post.CreateParams{Title: "Hi", Author: "Alice"})
	ts.Require().Equal(http.StatusBadRequest, resp.Code)

	var errResp struct {
		Error struct {
			Code    string `json:"code"`
			Context struct {
				Fields []post.FieldError `json:"fields"`
			} `json:"context"`
		} `json:"error"`
	}
	ts.Require().NoError(json.NewDecoder(resp.Body).Decode(&errResp))
	ts.Require().Equal(restapi.ErrCodeValidation, errResp.Error.Code)
	ts.Require().Equal([]post.FieldError{
		{Field: "title", Message: "should be between 3 and 100 characters"},
		{Field: "content", Message: "is required"},
	}, errResp.Error.Context.Fields)
}

func (ts *APITestSuite) TestCreateMalformedJSON() {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/posts", strings.NewReader(`{"title":`))
	req.Header.Set("Content-Type", restapi.ContentTypeAppJSON)
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)
	testutil.RequireErrorInRecorder(ts.T(), resp, http.StatusBadRequest, testErrDomain, restapi.ErrCodeBadRequest)
}

func (ts *APITestSuite) TestGet() {
	created := ts.createPost(aliceToken, "Readable", "Alice")

	resp := ts.do(http.MethodGet, "/posts/"+created.ID, "", nil)
	ts.Require().Equal(http.StatusOK, resp.Code)
	var got PostResponse
	ts.Require().NoError(json.NewDecoder(resp.Body).Decode(&got))
	ts.Require().Equal(created, got.Post)
	ts.Require().Empty(got.Message)

	resp = ts.do(http.MethodGet, "/posts/missing", "", nil)
	testutil.RequireErrorInRecorder(ts.T(), resp, http.StatusNotFound, testErrDomain, restapi.ErrCodeNotFound)
}

func (ts *APITestSuite) TestList() {
	ts.createPost(aliceToken, "Go concurrency", "Alice")
	ts.createPost(bobToken, "Rate limiting", "Bob")
	ts.createPost(aliceToken, "Go generics", "Alice")

	resp := ts.do(http.MethodGet, "/posts?search=go&limit=1&sortBy=title&order=asc", "", nil)
	ts.Require().Equal(http.StatusOK, resp.Code)
	var got ListPostsResponse
	ts.Require().NoError(json.NewDecoder(resp.Body).Decode(&got))
	ts.Require().Equal(1, got.Page)
	ts.Require().Equal(1, got.Limit)
	ts.Require().Equal(2, got.Total)
	ts.Require().Equal(2, got.TotalPages)
	ts.Require().Equal(1, got.Count)
	ts.Require().Equal("Go concurrency", got.Posts[0].Title)

	resp = ts.do(http.MethodGet, "/posts", "", nil)
	ts.Require().Equal(http.StatusOK, resp.Code)
	got = ListPostsResponse{}
	ts.Require().NoError(json.NewDecoder(resp.Body).Decode(&got))
	ts.Require().Equal(post.DefaultLimit, got.Limit)
	ts.Require().Equal(3, got.Count)
	ts.Require().Equal("Go generics", got.Posts[0].Title, "newest first by default")
}

func (ts *APITestSuite) TestListBadQuery() {
	resp := ts.do(http.MethodGet, "/posts?page=abc", "", nil)
	testutil.RequireErrorInRecorder(ts.T(), resp, http.StatusBadRequest, testErrDomain, restapi.ErrCodeBadRequest)

	resp = ts.do(http.MethodGet, "/posts?limit=1000", "", nil)
	testutil.RequireErrorInRecorder(ts.T(), resp, http.StatusBadRequest, testErrDomain, restapi.ErrCodeValidation)

	resp = ts.do(http.MethodGet, "/posts?sortBy=password", "", nil)
	testutil.RequireErrorInRecorder(ts.T(), resp, http.StatusBadRequest, testErrDomain, restapi.ErrCodeValidation)
}

func (ts *APITestSuite) TestListPageOutOfRange() {
	ts.createPost(aliceToken, "Go concurrency", "Alice")

	for _, query := range []string{"page=922337203685477582", "page=9223372036854775807&limit=100", "page=2"} {
		resp := ts.do(http.MethodGet, "/posts?"+query, "", nil)
		ts.Require().Equal(http.StatusOK, resp.Code, query)
		var got ListPostsResponse
		ts.Require().NoError(json.NewDecoder(resp.Body).Decode(&got))
		ts.Require().Equal(1, got.Total)
		ts.Require().Equal(0, got.Count)
		ts.Require().Empty(got.Posts)
	}

	resp := ts.do(http.MethodGet, "/posts?page=9223372036854775808", "", nil)
	testutil.RequireErrorInRecorder(ts.T(), resp, http.StatusBadRequest, testErrDomain, restapi.ErrCodeBadRequest)

	resp = ts.do(http.MethodGet, "/posts?limit=-9223372036854775808", "", nil)
	testutil.RequireErrorInRecorder(ts.T(), resp, http.StatusBadRequest, testErrDomain, restapi.ErrCodeValidation)
}

func (ts *APITestSuite) TestListMine() {
	ts.createPost(aliceToken, "Alice one", "Alice")
	ts.createPost(bobToken, "Bob one", "Bob")
	ts.createPost(aliceToken, "Alice two", "Alice")

	for _, path := range []string{"/posts/my", "/posts/my/posts"} {
		resp := ts.do(http.MethodGet, path, aliceToken, nil)
		ts.Require().Equal(http.StatusOK, resp.Code)
		var got UserPostsResponse
		ts.Require().NoError(json.NewDecoder(resp.Body).Decode(&got))
		ts.Require().Equal(2, got.Count)
		ts.Require().Equal("Alice two", got.Posts[0].Title)
		ts.Require().Equal("Alice one", got.Posts[1].Title)
	}

	resp := ts.do(http.MethodGet, "/posts/my", "", nil)
	testutil.RequireErrorInRecorder(ts.T(), resp, http.StatusUnauthorized, testErrDomain, restapi.ErrCodeUnauthorized)
}

func (ts *APITestSuite) TestUpdate() {
	created := ts.createPost(aliceToken, "Original", "Alice")
	newTitle := "Updated title"

	resp := ts.do(http.MethodPut, "/posts/"+created.ID, aliceToken, post.UpdateParams{Title: &newTitle})
	ts.Require().Equal(http.StatusOK, resp.Code)
	var got PostResponse
	ts.Require().NoError(json.NewDecoder(resp.Body).Decode(&got))
	ts.Require().Equal("Post updated", got.Message)
	ts.Require().Equal(newTitle, got.Post.Title)
	ts.Require().Equal(created.Content, got.Post.Content)
	ts.Require().True(got.Post.UpdatedAt.After(created.UpdatedAt))

	resp = ts.do(http.MethodPut, "/posts/"+created.ID, bobToken, post.UpdateParams{Title: &newTitle})
	testutil.RequireErrorInRecorder(ts.T(), resp, http.StatusForbidden, testErrDomain, restapi.ErrCodeForbidden)

	resp = ts.do(http.MethodPut, "/posts/missing", aliceToken, post.UpdateParams{Title: &newTitle})
	testutil.RequireErrorInRecorder(ts.T(), resp, http.StatusNotFound, testErrDomain, restapi.ErrCodeNotFound)

	resp = ts.do(http.MethodPut, "/posts/"+created.ID, aliceToken, post.UpdateParams{})
	testutil.RequireErrorInRecorder(ts.T(), resp, http.StatusBadRequest, testErrDomain, restapi.ErrCodeValidation)
}

func (ts *APITestSuite) TestDelete() {
	created := ts.createPost(aliceToken, "Doomed post", "Alice")

	resp := ts.do(http.MethodDelete, "/posts/"+created.ID, bobToken, nil)
	testutil.RequireErrorInRecorder(ts.T(), resp, http.StatusForbidden, testErrDomain, restapi.ErrCodeForbidden)

	resp = ts.do(http.MethodDelete, "/posts/"+created.ID, aliceToken, nil)
	testutil.RequireJSONInRecorder(ts.T(), resp, &MessageResponse{Message: "Post deleted"}, &MessageResponse{})

	resp = ts.do(http.MethodGet, "/posts/"+created.ID, "", nil)
	testutil.RequireErrorInRecorder(ts.T(), resp, http.StatusNotFound, testErrDomain, restapi.ErrCodeNotFound)

	resp = ts.do(http.MethodDelete, "/posts/"+created.ID, aliceToken, nil)
	testutil.RequireErrorInRecorder(ts.T(), resp, http.StatusNotFound, testErrDomain, restapi.ErrCodeNotFound)
}

func (ts *APITestSuite) TestUpload() {
	newUploadRequest := func(token string) *http.Request {
		body := &bytes.Buffer{}
		mw := multipart.NewWriter(body)
		fw, err := mw.CreateFormFile(upload.FormField, "doc.pdf")
		ts.Require().NoError(err)
		_, err = fw.Write([]byte("%PDF-1.4\n%%EOF\n"))
		ts.Require().NoError(err)
		ts.Require().NoError(mw.Close())
		req := httptest.NewRequest(http.MethodPost, "/api/v1"+UploadPath, body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return req
	}

	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, newUploadRequest(""))
	testutil.RequireErrorInRecorder(ts.T(), resp, http.StatusUnauthorized, testErrDomain, restapi.ErrCodeUnauthorized)

	resp = httptest.NewRecorder()
	ts.router.ServeHTTP(resp, newUploadRequest(aliceToken))
	ts.Require().Equal(http.StatusOK, resp.Code, resp.Body.String())
	var got upload.UploadResponse
	ts.Require().NoError(json.NewDecoder(resp.Body).Decode(&got))
	ts.Require().Equal("uploaded.pdf", got.Filename)
}

func TestRoutes_RateLimit(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter, err := ratelimit.NewFixedWindowLimiterWithOpts(ratelimit.Rate{Count: 2, Duration: time.Minute},
		ratelimit.FixedWindowLimiterOpts{Clock: func() time.Time { return now }})
	require.NoError(t, err)
	getKey, err := middleware.NewRateLimitGetKeyFunc(middleware.RateLimitKeySourceRemoteAddr, "", nil)
	require.NoError(t, err)
	rateLimitMw := middleware.MustRateLimitWithOpts(ratelimit.Rate{Count: 2, Duration: time.Minute}, testErrDomain,
		middleware.RateLimitOpts{Limiter: limiter, GetKey: getKey})

	router := newTestRouter(RoutesOpts{
		ErrorDomain:   testErrDomain,
		Repository:    post.NewMemoryRepository(),
		Authenticator: auth.NewAuthenticator(nil),
		Middlewares:   []func(http.Handler) http.Handler{rateLimitMw},
	})

	doFrom := func(remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
		req.RemoteAddr = remoteAddr
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		return resp
	}

	for i := 0; i < 2; i++ {
		resp := doFrom("10.0.0.1:1234")
		require.Equal(t, http.StatusOK, resp.Code)
		require.Equal(t, "2", resp.Header().Get(middleware.HeaderRateLimitLimit))
		require.Equal(t, fmt.Sprint(1-i), resp.Header().Get(middleware.HeaderRateLimitRemaining))
	}

	resp := doFrom("10.0.0.1:4321")
	testutil.RequireErrorInRecorder(t, resp, http.StatusTooManyRequests, testErrDomain, middleware.RateLimitErrCode)
	testutil.RequireRetryAfterInRecorder(t, resp, 60)

	// Unauthenticated protected routes are also limited before auth is checked.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/posts", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusTooManyRequests, resp.Code)

	// Other clients have their own quota.
	require.Equal(t, http.StatusOK, doFrom("10.0.0.2:1234").Code)

	// The window is over.
	now = now.Add(time.Minute + time.Millisecond)
	require.Equal(t, http.StatusOK, doFrom("10.0.0.1:1234").Code)
}
