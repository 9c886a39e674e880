package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	labelledset "github.com/PeaPodTechnologies/LabelledSet"
	"github.com/PeaPodTechnologies/LabelledSet/store"
	"gotest.tools/assert"
)

func TestServer(t *testing.T) {
	stor := store.NewDefaultCachingStore(store.CacheConfig{})
	srv := httptest.NewServer(newServer(stor))
	defer srv.Close()
	client := srv.Client()

	do := func(method, path string, body any, header http.Header, out any) *http.Response {
		t.Helper()
		var reader bytes.Buffer
		if body != nil {
			assert.NilError(t, json.NewEncoder(&reader).Encode(body))
		}
		req, err := http.NewRequest(method, srv.URL+path, &reader)
		assert.NilError(t, err)
		for k, v := range header {
			req.Header[k] = v
		}
		resp, err := client.Do(req)
		assert.NilError(t, err)
		defer resp.Body.Close()
		if out != nil {
			assert.NilError(t, json.NewDecoder(resp.Body).Decode(out))
		}
		return resp
	}

	var group GroupResponse
	resp := do(http.MethodPut, "/groups/test", AssignRequest{Values: []int64{1}}, nil, &group)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.DeepEqual(t, group.Data.Values, []int64{1})
	etag := resp.Header.Get("ETag")
	assert.Assert(t, etag != "")

	resp = do(http.MethodPut, "/groups/test2", AssignRequest{Values: []int64{1, 2, 3}}, nil, &group)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.DeepEqual(t, group.Data.Values, []int64{2, 3})

	resp = do(http.MethodGet, "/values/1", nil, nil, &group)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Equal(t, group.Data.Key, "test")
	assert.Equal(t, group.Data.Meta.Source, store.SourceRef{Type: "http", Name: "api"})

	resp = do(http.MethodPut, "/groups/test2", AssignRequest{Values: []int64{4}}, http.Header{"If-None-Match": {"*"}}, &group)
	assert.Equal(t, resp.StatusCode, http.StatusPreconditionFailed)

	resp = do(http.MethodPut, "/groups/test", AssignRequest{Values: []int64{5}}, http.Header{"If-Match": {etag}}, &group)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	resp = do(http.MethodPut, "/groups/test", AssignRequest{Values: []int64{6}}, http.Header{"If-Match": {etag}}, &group)
	assert.Equal(t, resp.StatusCode, http.StatusPreconditionFailed)

	var status StatusResponse
	resp = do(http.MethodDelete, "/values/2", nil, nil, &status)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	resp = do(http.MethodDelete, "/values/3", nil, nil, &status)
	assert.Equal(t, resp.StatusCode, http.StatusOK)

	resp = do(http.MethodGet, "/groups/test2", nil, nil, &group)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Equal(t, len(group.Data.Values), 0)

	var groups GroupsResponse
	resp = do(http.MethodGet, "/?limit=1", nil, nil, &groups)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Equal(t, len(groups.Data), 1)
	assert.Equal(t, groups.Data[0].Key, "test")
	assert.Assert(t, groups.Continue != "")
	resp = do(http.MethodGet, "/?continue="+url.QueryEscape(groups.Continue), nil, nil, &groups)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Equal(t, len(groups.Data), 1)
	assert.Equal(t, groups.Data[0].Key, "test2")

	resp = do(http.MethodDelete, "/groups/test2", nil, nil, &status)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	resp = do(http.MethodDelete, "/groups/test2", nil, nil, &status)
	assert.Equal(t, resp.StatusCode, http.StatusNotFound)
	resp = do(http.MethodGet, "/groups/test2", nil, nil, &group)
	assert.Equal(t, resp.StatusCode, http.StatusNotFound)

	var stats StatsResponse
	resp = do(http.MethodGet, "/debug/stats", nil, nil, &stats)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Equal(t, stats.Check, "ok")
	assert.Equal(t, stats.Data.Groups, 1)
	assert.Equal(t, stats.Data.Values, 2)
}

func TestServerBadRequests(t *testing.T) {
	srv := httptest.NewServer(newServer(store.NewDefaultCachingStore(store.CacheConfig{})))
	defer srv.Close()

	testCases := []struct {
		Method string
		Path   string
		Body   string
		Status int
	}{
		{Method: http.MethodGet, Path: "/values/abc", Status: http.StatusBadRequest},
		{Method: http.MethodDelete, Path: "/values/1.5", Status: http.StatusBadRequest},
		{Method: http.MethodPut, Path: "/groups/test", Body: "{", Status: http.StatusBadRequest},
		{Method: http.MethodGet, Path: "/?limit=x", Status: http.StatusBadRequest},
		{Method: http.MethodGet, Path: "/?continue=garbage", Status: http.StatusBadRequest},
		{Method: http.MethodGet, Path: "/values/9", Status: http.StatusNotFound},
		{Method: http.MethodGet, Path: "/nowhere", Status: http.StatusNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.Method+tc.Path, func(t *testing.T) {
			req, err := http.NewRequest(tc.Method, srv.URL+tc.Path, strings.NewReader(tc.Body))
			assert.NilError(t, err)
			resp, err := srv.Client().Do(req)
			assert.NilError(t, err)
			resp.Body.Close()
			assert.Equal(t, resp.StatusCode, tc.Status)
		})
	}
}

func TestParsePublishArgs(t *testing.T) {
	testCases := []struct {
		Args      []string
		Overwrite bool
		Expected  any
		Err       string
	}{
		{
			Args:      []string{"assign", "fans", "1", "2"},
			Overwrite: true,
			Expected:  labelledset.AssignMessage{Key: "fans", Overwrite: true, Values: []int64{1, 2}},
		}, {
			Args:     []string{"assign", "fans"},
			Expected: labelledset.AssignMessage{Key: "fans", Values: []int64{}},
		}, {
			Args:     []string{"remove", "3"},
			Expected: labelledset.RemoveMessage{Values: []int64{3}},
		}, {
			Args:     []string{"drop", "fans"},
			Expected: labelledset.DropMessage{Key: "fans"},
		},
		{Args: nil, Err: "expects a message type"},
		{Args: []string{"assign"}, Err: "expects a key"},
		{Args: []string{"assign", "fans", "one"}, Err: `invalid value "one"`},
		{Args: []string{"remove"}, Err: "at least one value"},
		{Args: []string{"drop"}, Err: "exactly one key"},
		{Args: []string{"flush"}, Err: `unknown message type "flush"`},
	}
	for _, tc := range testCases {
		t.Run(strings.Join(tc.Args, " "), func(t *testing.T) {
			actual, err := parsePublishArgs(tc.Args, tc.Overwrite)
			if tc.Err != "" {
				assert.ErrorContains(t, err, tc.Err)
				return
			}
			assert.NilError(t, err)
			assert.DeepEqual(t, actual, tc.Expected)
		})
	}
}

func TestWriteMessages(t *testing.T) {
	messages := make(chan Message, 2)
	messages <- toMessage("ls/devices", labelledset.AssignMessage{
		MessageProps: labelledset.MessageProps{Subject: labelledset.SubjectAssign},
		Key:          "fans",
		Values:       []int64{1},
	})
	messages <- toMessage("ls/devices", labelledset.DropMessage{
		MessageProps: labelledset.MessageProps{Subject: labelledset.SubjectDrop},
		Key:          "fans",
	})
	close(messages)
	var out bytes.Buffer
	writeMessages(context.Background(), &out, messages)
	assert.Equal(t, out.String(),
		`{"address":"ls/devices","subject":"ASSIGN","key":"fans","values":[1]}`+"\n"+
			`{"address":"ls/devices","subject":"DROP","key":"fans"}`+"\n")
}
