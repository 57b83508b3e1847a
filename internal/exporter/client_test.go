package exporter

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Export(t *testing.T) {
	csvBodies := map[string]string{
		"users.csv":  "user_id,age,gender\nu1,30,male\nu2,25,female\n",
		"dishes.csv": "item_id,store_id,item_name\nd1,s1,Pho bo\n",
	}

	var triggered int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-export-key", r.Header.Get("Authorization"))

		switch {
		case r.Method == "POST" && r.URL.Path == "/admin/export-data":
			triggered++
			w.WriteHeader(http.StatusAccepted)
			fmt.Fprint(w, `{"export_id":"exp-42"}`)
		case r.Method == "GET":
			name := filepath.Base(r.URL.Path)
			assert.Equal(t, "/admin/exports/exp-42/files/"+name, r.URL.Path)
			body, ok := csvBodies[name]
			if !ok {
				// Empty snapshot files are valid, header only.
				body = "header\n"
			}
			fmt.Fprint(w, body)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-export-key")
	dir := t.TempDir()

	result, err := client.Export(t.Context(), dir)
	require.NoError(t, err)
	assert.Equal(t, "exp-42", result.ExportID)
	assert.Equal(t, 1, triggered)
	assert.Equal(t, 2, result.RowCounts["users.csv"])
	assert.Equal(t, 1, result.RowCounts["dishes.csv"])
	assert.Equal(t, 0, result.RowCounts["interaction.csv"])

	for _, name := range SnapshotFiles {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	data, err := os.ReadFile(filepath.Join(dir, "users.csv"))
	require.NoError(t, err)
	assert.Equal(t, csvBodies["users.csv"], string(data))

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, len(SnapshotFiles))
}

func TestClient_TriggerExportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":"bad key"}`)
	}))
	defer server.Close()

	client := NewClientWithOptions(ClientOptions{BaseURL: server.URL, APIKey: "wrong", RetryMax: 1})

	_, err := client.TriggerExport(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestClient_FetchSnapshotMissingFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewClientWithOptions(ClientOptions{BaseURL: server.URL, RetryMax: 1})

	_, err := client.FetchSnapshot(t.Context(), "exp-1", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "users.csv")
}
