package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opensim-assistant/internal/app"
	"opensim-assistant/internal/config"
)

func TestSmoke_Startup(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping smoke test in short mode")
	}

	// 1. Documentation site
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Inverse Kinematics</title></head><body>
			<div class="wiki-content"><p>Inverse kinematics computes joint angles that best match experimental marker positions.</p></div>
			</body></html>`)
	}))
	defer site.Close()

	// 2. Configure App against a temp data dir
	dir := t.TempDir()
	cfg := &config.Config{
		DataDir:                dir,
		DocsFile:               "opensim_docs.json",
		IndexBackend:           config.BackendBolt,
		IndexPath:              "opensim_index.db",
		EmbeddingProvider:      config.ProviderHash,
		EmbeddingModel:         "hash",
		EmbeddingMaxTokens:     512,
		ChunkSize:              1000,
		ChunkOverlap:           200,
		TopK:                   4,
		EmbedBatchSize:         64,
		RerankProvider:         "none",
		SourceURLs:             []string{site.URL + "/display/OpenSim/Inverse+Kinematics"},
		MaxPages:               20,
		MaxDepth:               3,
		FetchTimeout:           5 * time.Second,
		RequestTimeout:         5 * time.Second,
		QueryLogPath:           filepath.Join(dir, "query.log"),
		BootstrapRetryAttempts: 1,
	}
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := app.Bootstrap(ctx, cfg)
	require.NoError(t, err)
	defer deps.Close()

	_, built, err := deps.BuildIndex(ctx, false, false)
	require.NoError(t, err)
	require.True(t, built)

	a, err := app.New(deps)
	require.NoError(t, err)

	// 3. Run App in Background
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()
	go func() {
		if err := a.Serve(ctx, ln); err != nil {
			t.Logf("app run exited: %v", err)
		}
	}()

	// 4. Wait for Health Check
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 100*time.Millisecond)

	// 5. Ask
	resp, err := http.PostForm(base+"/query", url.Values{"query": {"How does inverse kinematics match marker positions?"}})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status  string `json:"status"`
		Answer  string `json:"answer"`
		Sources []struct {
			Title   string `json:"title"`
			Source  string `json:"source"`
			Section string `json:"section"`
		} `json:"sources"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	require.NotEmpty(t, body.Sources)
	assert.Equal(t, "Inverse Kinematics", body.Sources[0].Title)
	assert.Equal(t, "Inverse Kinematics", body.Sources[0].Section)
	assert.FileExists(t, cfg.QueryLogPath)
}
