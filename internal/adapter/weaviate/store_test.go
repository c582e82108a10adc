package weaviate_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	adapter "opensim-assistant/internal/adapter/weaviate"
	"opensim-assistant/internal/vector"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

func mockWeaviate(t *testing.T, handler http.HandlerFunc) *weaviate.Client {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"version": "1.25.0"}`))
			return
		}
		handler(w, r)
	}))
	t.Cleanup(ts.Close)

	client, err := weaviate.NewClient(weaviate.Config{Host: ts.Listener.Addr().String(), Scheme: "http"})
	require.NoError(t, err)
	return client
}

func graphqlQuery(t *testing.T, r *http.Request) string {
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	q, _ := body["query"].(string)
	return q
}

func TestStore_Add(t *testing.T) {
	client := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/batch/objects", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var body struct {
			Objects []struct {
				Class      string                 `json:"class"`
				Properties map[string]interface{} `json:"properties"`
				Vector     []float32              `json:"vector"`
			} `json:"objects"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Objects, 2)
		assert.Equal(t, vector.DefaultClassName, body.Objects[0].Class)
		assert.Equal(t, "Scaling a model", body.Objects[0].Properties["content"])
		assert.Equal(t, "https://simtk.org/scale", body.Objects[0].Properties["url"])
		assert.Equal(t, []float32{0.1, 0.2}, body.Objects[0].Vector)

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode([]map[string]interface{}{{"id": "1"}, {"id": "2"}})
	})

	store := adapter.NewStore(client, "")
	err := store.Add(context.Background(), []vector.Record{
		{Text: "Scaling a model", Vector: []float32{0.1, 0.2}, Meta: vector.Meta{URL: "https://simtk.org/scale", Title: "Scale"}},
		{Text: "Inverse kinematics", Vector: []float32{0.3, 0.4}, Meta: vector.Meta{URL: "https://simtk.org/ik"}},
	})
	assert.NoError(t, err)
}

func TestStore_Add_ObjectError(t *testing.T) {
	client := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[{"result":{"errors":{"error":[{"message":"vector lengths don't match"}]}}}]`))
	})

	store := adapter.NewStore(client, "")
	err := store.Add(context.Background(), []vector.Record{
		{Text: "t", Vector: []float32{1}, Meta: vector.Meta{URL: "u"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector lengths")
}

func TestStore_Add_RejectsMixedDims(t *testing.T) {
	client := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request to %s", r.URL.Path)
	})

	store := adapter.NewStore(client, "")
	err := store.Add(context.Background(), []vector.Record{
		{Text: "a", Vector: []float32{1, 2}, Meta: vector.Meta{URL: "u"}},
		{Text: "b", Vector: []float32{1}, Meta: vector.Meta{URL: "u"}},
	})
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)
}

func TestStore_Query(t *testing.T) {
	client := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/graphql", r.URL.Path)
		q := graphqlQuery(t, r)
		assert.Contains(t, q, "nearVector")
		assert.Contains(t, q, "limit: 2")

		resp := map[string]interface{}{
			"data": map[string]interface{}{
				"Get": map[string]interface{}{
					vector.DefaultClassName: []interface{}{
						map[string]interface{}{
							"content":    "Run the Scale Tool first.",
							"url":        "https://simtk.org/scale",
							"title":      "Scaling",
							"section":    "OpenSim",
							"type":       "guide",
							"chunkIndex": 3.0,
							"offset":     2400.0,
							"_additional": map[string]interface{}{
								"id":       "abc",
								"distance": 0.25,
							},
						},
						map[string]interface{}{
							"content":     "Other",
							"url":         "https://simtk.org/other",
							"_additional": map[string]interface{}{"distance": "0.5"},
						},
					},
				},
			},
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	})

	store := adapter.NewStore(client, "")
	hits, err := store.Query(context.Background(), []float32{0.1, 0.2}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "abc", hits[0].ID)
	assert.Equal(t, "Run the Scale Tool first.", hits[0].Text)
	assert.Equal(t, "Scaling", hits[0].Meta.Title)
	assert.Equal(t, 3, hits[0].Meta.ChunkIndex)
	assert.Equal(t, 2400, hits[0].Meta.Offset)
	assert.InDelta(t, 0.75, hits[0].Score, 1e-6)
	assert.InDelta(t, 0.5, hits[1].Score, 1e-6)
}

func TestStore_Query_GraphQLError(t *testing.T) {
	client := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"errors":[{"message":"Cannot query field"}]}`))
	})

	_, err := adapter.NewStore(client, "").Query(context.Background(), []float32{1}, 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cannot query field")
}

func TestStore_Count(t *testing.T) {
	client := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/v1/schema/"):
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"class":"OpenSimChunk"}`))
		case r.URL.Path == "/v1/graphql":
			q := graphqlQuery(t, r)
			assert.Contains(t, q, "Aggregate")
			assert.Contains(t, q, "count")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"data":{"Aggregate":{"OpenSimChunk":[{"meta":{"count":42}}]}}}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	store := adapter.NewStore(client, "")
	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	exists, err := store.Exists(context.Background())
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStore_Count_NoClass(t *testing.T) {
	client := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/schema/OpenSimChunk", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	})

	store := adapter.NewStore(client, "")
	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	exists, err := store.Exists(context.Background())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_Reset(t *testing.T) {
	var calls []string
	client := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/schema/OpenSimChunk":
			// exists before the delete, gone afterwards
			if len(calls) == 1 {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(`{"class":"OpenSimChunk"}`))
				return
			}
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPost && r.URL.Path == "/v1/schema":
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"class":"OpenSimChunk"}`))
		default:
			t.Fatalf("unexpected call %s %s", r.Method, r.URL.Path)
		}
	})

	require.NoError(t, adapter.NewStore(client, "").Reset(context.Background()))
	assert.Equal(t, []string{
		"GET /v1/schema/OpenSimChunk",
		"DELETE /v1/schema/OpenSimChunk",
		"GET /v1/schema/OpenSimChunk",
		"POST /v1/schema",
	}, calls)
}
