package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartCommand_PostsTargets(t *testing.T) {
	var gotPath, gotTargets, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotTargets = r.URL.Query().Get("targets")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"bot1: Successfully started item idling"}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	defer rootCmd.SetOut(nil)
	rootCmd.SetArgs([]string{"start", "bot1,bot 2", "--addr", srv.URL + "/"})

	require.NoError(t, rootCmd.Execute())

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/api/sessions/start", gotPath)
	assert.Equal(t, "bot1,bot 2", gotTargets)
	assert.Equal(t, "bot1: Successfully started item idling\n", out.String())
}

func TestStopCommand_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "targets query parameter is required", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := postCommand(t.Context(), srv.URL, "/api/sessions/stop", "all")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Contains(t, err.Error(), "targets query parameter is required")
}

func TestPostCommand_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := postCommand(t.Context(), srv.URL, "/api/sessions/stop", "all")

	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "failed to decode response"))
}

func TestPostCommand_Unreachable(t *testing.T) {
	_, err := postCommand(t.Context(), "http://127.0.0.1:1", "/api/sessions/start", "all")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestStartCommand_RequiresTargets(t *testing.T) {
	rootCmd.SetArgs([]string{"start"})
	assert.Error(t, rootCmd.Execute())
}
