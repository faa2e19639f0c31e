// Package testutil provides common test utilities for the enrichment backend.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/meetprep/backend/internal/infrastructure/auth"
	"github.com/meetprep/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// HTTPTestCase drives one ops API handler call.
// Body is JSON-encoded; RawBody is sent verbatim and wins when both are set.
// Claims, when set, are installed before Setup runs.
type HTTPTestCase struct {
	Name           string
	Method         string
	Path           string
	Body           any
	RawBody        string
	Headers        map[string]string
	Claims         *auth.Claims
	ExpectedStatus int
	ExpectedCode   string
	Setup          func(t *testing.T, tc *TestContext)
	Validate       func(t *testing.T, tc *TestContext)
}

// RunHTTPTestCases runs each case as a subtest against handler.
func RunHTTPTestCases(t *testing.T, handler gin.HandlerFunc, cases []HTTPTestCase) {
	t.Helper()

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			runHTTPTestCase(t, handler, tc)
		})
	}
}

func runHTTPTestCase(t *testing.T, handler gin.HandlerFunc, tc HTTPTestCase) {
	t.Helper()

	method := tc.Method
	if method == "" {
		method = http.MethodGet
	}
	path := tc.Path
	if path == "" {
		path = "/"
	}

	req := httptest.NewRequest(method, path, requestBody(t, tc))
	if tc.Body != nil || tc.RawBody != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range tc.Headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	testCtx := &TestContext{Context: c, Recorder: w}
	if tc.Claims != nil {
		testCtx.SetClaims(tc.Claims)
	}
	if tc.Setup != nil {
		tc.Setup(t, testCtx)
	}

	handler(c)

	if tc.ExpectedStatus != 0 {
		assert.Equal(t, tc.ExpectedStatus, w.Code, "status")
	}
	if tc.ExpectedCode != "" {
		AssertErrorResponse(t, testCtx, tc.ExpectedCode)
	}
	if tc.Validate != nil {
		tc.Validate(t, testCtx)
	}
}

func requestBody(t *testing.T, tc HTTPTestCase) io.Reader {
	if tc.RawBody != "" {
		return strings.NewReader(tc.RawBody)
	}
	if tc.Body == nil {
		return nil
	}
	raw, err := json.Marshal(tc.Body)
	require.NoError(t, err, "marshal request body")
	return bytes.NewReader(raw)
}

// JSONResponse decodes the recorded body into a generic map.
func JSONResponse(t *testing.T, tc *TestContext) map[string]any {
	t.Helper()
	return JSONResponseAs[map[string]any](t, tc)
}

// JSONResponseAs decodes the recorded body into T.
func JSONResponseAs[T any](t *testing.T, tc *TestContext) T {
	t.Helper()

	var result T
	require.NoError(t, json.Unmarshal(tc.ResponseBody(), &result), "decode response: %s", tc.ResponseBody())
	return result
}

// Envelope decodes the recorded body as the ops API response envelope.
func Envelope(t *testing.T, tc *TestContext) dto.Response {
	t.Helper()
	return JSONResponseAs[dto.Response](t, tc)
}

// AssertSuccessResponse asserts a successful envelope without an error object.
func AssertSuccessResponse(t *testing.T, tc *TestContext) {
	t.Helper()

	resp := Envelope(t, tc)
	assert.True(t, resp.Success, "success")
	assert.Nil(t, resp.Error, "error")
}

// AssertErrorResponse asserts a failed envelope carrying expectedCode and
// returns its error object for further checks.
func AssertErrorResponse(t *testing.T, tc *TestContext, expectedCode string) *dto.ErrorInfo {
	t.Helper()

	resp := Envelope(t, tc)
	assert.False(t, resp.Success, "success")
	require.NotNil(t, resp.Error, "error object: %s", tc.ResponseBody())
	assert.Equal(t, expectedCode, resp.Error.Code, "error code")
	return resp.Error
}
