/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-blogapi/restapi"
)

const testBodyLimitErrDomain = "BlogAPI"

// createPostHandler decodes a post the way the posts API does and answers 201 on success.
type createPostHandler struct {
	calls int
}

func (h *createPostHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	h.calls++
	var p struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := restapi.DecodeRequestJSON(r, &p, true); err != nil {
		restapi.RespondMalformedRequestOrInternalError(rw, testBodyLimitErrDomain, err, nil)
		return
	}
	rw.WriteHeader(http.StatusCreated)
}

func makePostBody(t *testing.T, contentLen int) string {
	t.Helper()
	body, err := json.Marshal(map[string]string{"title": "Hello", "content": strings.Repeat("x", contentLen)})
	require.NoError(t, err)
	return string(body)
}

func TestRequestBodyLimit(t *testing.T) {
	const maxSize = 256

	tests := []struct {
		name          string
		maxSize       uint64
		contentLen    int
		chunked       bool
		wantStatus    int
		wantNextCalls int
	}{
		{name: "small post", maxSize: maxSize, contentLen: 10, wantStatus: http.StatusCreated, wantNextCalls: 1},
		{name: "small chunked post", maxSize: maxSize, contentLen: 10, chunked: true, wantStatus: http.StatusCreated, wantNextCalls: 1},
		{
			name: "too large Content-Length is rejected before the handler", maxSize: maxSize, contentLen: 1000,
			wantStatus: http.StatusRequestEntityTooLarge,
		},
		{
			name: "too large chunked body fails while decoding", maxSize: maxSize, contentLen: 1000, chunked: true,
			wantStatus: http.StatusRequestEntityTooLarge, wantNextCalls: 1,
		},
		{
			name: "zero limit", maxSize: 0, contentLen: 0, chunked: true,
			wantStatus: http.StatusRequestEntityTooLarge, wantNextCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/posts", strings.NewReader(makePostBody(t, tt.contentLen)))
			req.Header.Set("Content-Type", restapi.ContentTypeAppJSON)
			if tt.chunked {
				req.ContentLength = -1
			}
			next := &createPostHandler{}
			resp := httptest.NewRecorder()

			RequestBodyLimit(tt.maxSize, testBodyLimitErrDomain)(next).ServeHTTP(resp, req)

			require.Equal(t, tt.wantNextCalls, next.calls)
			require.Equal(t, tt.wantStatus, resp.Code)
			if tt.wantStatus == http.StatusRequestEntityTooLarge {
				require.Contains(t, resp.Body.String(), fmt.Sprintf("%q", testBodyLimitErrDomain))
			}
		})
	}

	t.Run("body exactly at the limit", func(t *testing.T) {
		body := makePostBody(t, 10)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/posts", strings.NewReader(body))
		next := &createPostHandler{}
		resp := httptest.NewRecorder()
		RequestBodyLimit(uint64(len(body)), testBodyLimitErrDomain)(next).ServeHTTP(resp, req)
		require.Equal(t, http.StatusCreated, resp.Code)
	})
}
