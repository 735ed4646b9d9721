package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recordedRequest struct {
	Method      string
	Path        string
	Body        string
	ContentType string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method:      r.Method,
			Path:        r.URL.RequestURI(),
			Body:        body.String(),
			ContentType: r.Header.Get("Content-Type"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found_error"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestAskRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/chat": `{"response":"hi","session_id":"s-1","tokens_used":5}`,
	})
	client := ts.client()

	resp, err := client.post(ctx, "/api/chat", map[string]any{
		"message": "hello",
		"mode":    "support",
		"use_rag": true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Response  string `json:"response"`
		SessionID string `json:"session_id"`
	}
	if err := decodeBody(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result.Response != "hi" || result.SessionID != "s-1" {
		t.Errorf("result = %+v", result)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["message"] != "hello" || body["use_rag"] != true {
		t.Errorf("body = %v", body)
	}
}

func TestUploadRequest_Multipart(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/upload": `{"document_id":"d-1","filename":"notes.md","chunk_count":2,"total_characters":900}`,
	})
	client := ts.client()

	resp, err := client.postFile(ctx, "/api/upload", "/tmp/notes.md", []byte("# notes\nsome content"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		DocumentID string `json:"document_id"`
	}
	if err := decodeBody(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result.DocumentID != "d-1" {
		t.Errorf("document_id = %q", result.DocumentID)
	}

	r := ts.requests[0]
	if !strings.HasPrefix(r.ContentType, "multipart/form-data") {
		t.Errorf("content type = %q, want multipart", r.ContentType)
	}
	if !strings.Contains(r.Body, `filename="notes.md"`) {
		t.Error("multipart body missing the file part")
	}
	if !strings.Contains(r.Body, "# notes") {
		t.Error("multipart body missing the file content")
	}
}

func TestDeleteRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"DELETE /api/documents/d-1": `{"deleted":"d-1"}`,
	})
	client := ts.client()

	resp, err := client.delete(ctx, "/api/documents/d-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := decodeBody(resp, nil); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if ts.requests[0].Method != "DELETE" {
		t.Errorf("method = %q", ts.requests[0].Method)
	}
}

func TestDecodeBody_ErrorEnvelope(t *testing.T) {
	ts := newTestServer(t, nil)
	client := ts.client()

	resp, err := client.get(ctx, "/api/documents/missing")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	decodeErr := decodeBody(resp, nil)
	if decodeErr == nil {
		t.Fatal("expected error from 404 response")
	}
	if !strings.Contains(decodeErr.Error(), "not found") {
		t.Errorf("error = %q, want the server's message surfaced", decodeErr.Error())
	}
}

func TestUploadCommand_MissingArg(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"upload"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing file argument")
	}
}

func TestColorize(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	if got := colorize(colorGreen, "ok"); got != "ok" {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", got)
	}

	noColor = false
	if got := colorize(colorGreen, "ok"); !strings.Contains(got, colorGreen) {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", got)
	}
}
