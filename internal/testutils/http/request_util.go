/*
Package testhttp contains helpers for calling REST endpoints from tests.
*/
package testhttp

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

/*
DoGet sends GET request to url and decodes JSON response into "response"
(unless it is nil). Returns response status code, zero when the request
failed.
*/
func DoGet(t testing.TB, url string, response any) int {
	rsp, err := http.Get(url) // #nosec G107
	if err != nil {
		t.Logf("GET %s: %v", url, err)
		return 0
	}
	return decodeResponse(t, "GET", url, rsp, response)
}

// DoPost sends "req" JSON encoded to url, response is handled as by DoGet.
func DoPost(t testing.TB, url string, req, response any) int {
	body, err := json.Marshal(req)
	require.NoError(t, err)
	rsp, err := http.Post(url, "application/json", bytes.NewReader(body)) // #nosec G107
	if err != nil {
		t.Logf("POST %s: %v", url, err)
		return 0
	}
	return decodeResponse(t, "POST", url, rsp, response)
}

func decodeResponse(t testing.TB, method, url string, rsp *http.Response, response any) int {
	defer func() { _ = rsp.Body.Close() }()
	b, err := io.ReadAll(rsp.Body)
	require.NoError(t, err)
	t.Logf("%s %s response: %s", method, url, b)
	if response != nil && rsp.StatusCode < http.StatusBadRequest {
		require.NoError(t, json.Unmarshal(b, response))
	}
	return rsp.StatusCode
}
