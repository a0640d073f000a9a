//go:build e2e

package e2e

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestE2E_Bootstrap tests workspace and API key creation
func TestE2E_Bootstrap(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	t.Run("create workspace", func(t *testing.T) {
		resp, err := env.Post("/workspaces", map[string]string{"name": "Test Workspace"}, "")
		require.NoError(t, err)

		var ws struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			CreatedAt string `json:"created_at"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &ws))
		assert.NotEmpty(t, ws.ID)
		assert.Equal(t, "Test Workspace", ws.Name)
		assert.NotEmpty(t, ws.CreatedAt)
	})

	t.Run("create API key", func(t *testing.T) {
		wsResp, err := env.Post("/workspaces", map[string]string{"name": "Key Test Workspace"}, "")
		require.NoError(t, err)

		var ws struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(wsResp.Data, &ws))

		keyResp, err := env.Post("/apikeys", map[string]string{
			"workspace_id": ws.ID,
			"name":         "test-key",
		}, "")
		require.NoError(t, err)

		var key struct {
			Token string `json:"token"`
		}
		require.NoError(t, json.Unmarshal(keyResp.Data, &key))
		assert.True(t, strings.HasPrefix(key.Token, "dq_"))
	})

	t.Run("requests without a key are rejected", func(t *testing.T) {
		_, err := env.Get("/documents/", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})
}

// TestE2E_DocumentLifecycle covers upload, processing, status, and deletion
func TestE2E_DocumentLifecycle(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()

	content := []byte(strings.Repeat("The quarterly revenue grew twelve percent year over year. ", 30) +
		"\f" + strings.Repeat("Operating margin held at forty percent across all regions. ", 30))

	docID := env.UploadDocument("report.pdf", content)
	env.WaitForDocumentStatus(docID, "completed", 30*time.Second)

	t.Run("document fields after processing", func(t *testing.T) {
		resp, err := env.Get("/documents/"+docID, env.AuthToken)
		require.NoError(t, err)

		var doc struct {
			ID              string `json:"id"`
			Status          string `json:"status"`
			EmbeddingStatus string `json:"embedding_status"`
			PageCount       int    `json:"page_count"`
			Size            int64  `json:"size"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &doc))
		assert.Equal(t, docID, doc.ID)
		assert.Equal(t, "completed", doc.Status)
		assert.Equal(t, "completed", doc.EmbeddingStatus)
		assert.Equal(t, 2, doc.PageCount)
		assert.Equal(t, int64(len(content)), doc.Size)
	})

	t.Run("status reports embedded chunk counts", func(t *testing.T) {
		resp, err := env.Get("/documents/"+docID+"/status", env.AuthToken)
		require.NoError(t, err)

		var status struct {
			TotalChunks    int `json:"total_chunks"`
			EmbeddedChunks int `json:"embedded_chunks"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &status))
		assert.Greater(t, status.TotalChunks, 0)
		assert.Equal(t, status.TotalChunks, status.EmbeddedChunks)
	})

	t.Run("list includes the document", func(t *testing.T) {
		resp, err := env.Get("/documents/", env.AuthToken)
		require.NoError(t, err)

		var list struct {
			Items []struct {
				ID string `json:"id"`
			} `json:"items"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &list))
		require.Len(t, list.Items, 1)
		assert.Equal(t, docID, list.Items[0].ID)
	})

	t.Run("download URL serves original bytes", func(t *testing.T) {
		resp, err := env.Get("/documents/"+docID+"/download", env.AuthToken)
		require.NoError(t, err)

		var dl struct {
			URL string `json:"url"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &dl))
		require.NotEmpty(t, dl.URL)

		httpResp, err := env.HTTPClient.Get(dl.URL)
		require.NoError(t, err)
		defer httpResp.Body.Close()
		assert.Equal(t, 200, httpResp.StatusCode)
	})

	t.Run("delete removes the document", func(t *testing.T) {
		_, err := env.Delete("/documents/"+docID, env.AuthToken)
		require.NoError(t, err)

		_, err = env.Get("/documents/"+docID, env.AuthToken)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})
}

// TestE2E_QueryFlow covers question answering and feedback over a processed document
func TestE2E_QueryFlow(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()

	content := []byte(strings.Repeat("The quarterly revenue grew twelve percent year over year. ", 40))
	docID := env.UploadDocument("revenue.pdf", content)
	env.WaitForDocumentStatus(docID, "completed", 30*time.Second)

	var queryID string

	t.Run("query returns grounded answer with sources", func(t *testing.T) {
		resp, err := env.Post("/query", map[string]interface{}{
			"document_id": docID,
			"question":    "How much did the quarterly revenue grow year over year?",
		}, env.AuthToken)
		require.NoError(t, err)

		var out struct {
			Answer  string `json:"answer"`
			Sources []struct {
				ChunkID    string  `json:"chunk_id"`
				Similarity float64 `json:"similarity"`
			} `json:"sources"`
			TotalChunksConsidered int    `json:"total_chunks_considered"`
			QueryID               string `json:"query_id"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &out))
		assert.NotEmpty(t, out.Answer)
		require.NotEmpty(t, out.Sources)
		assert.Greater(t, out.Sources[0].Similarity, 0.1)
		assert.Greater(t, out.TotalChunksConsidered, 0)
		assert.NotEmpty(t, out.QueryID)
		queryID = out.QueryID
	})

	t.Run("feedback is recorded", func(t *testing.T) {
		require.NotEmpty(t, queryID)
		_, err := env.Post("/query/feedback", map[string]interface{}{
			"query_id": queryID,
			"helpful":  true,
		}, env.AuthToken)
		require.NoError(t, err)

		var helpful *bool
		err = env.Pool.QueryRow(env.Ctx,
			"SELECT helpful FROM query_logs WHERE id = $1", queryID).Scan(&helpful)
		require.NoError(t, err)
		require.NotNil(t, helpful)
		assert.True(t, *helpful)
	})

	t.Run("query against foreign document is not found", func(t *testing.T) {
		otherResp, err := env.Post("/workspaces", map[string]string{"name": "Other Workspace"}, "")
		require.NoError(t, err)
		var otherWS struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(otherResp.Data, &otherWS))

		keyResp, err := env.Post("/apikeys", map[string]string{
			"workspace_id": otherWS.ID,
			"name":         "other-key",
		}, "")
		require.NoError(t, err)
		var key struct {
			Token string `json:"token"`
		}
		require.NoError(t, json.Unmarshal(keyResp.Data, &key))

		_, err = env.Post("/query", map[string]interface{}{
			"document_id": docID,
			"question":    "Anything?",
		}, key.Token)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})
}

// TestE2E_APIKeyRevocation verifies revoked keys stop authenticating
func TestE2E_APIKeyRevocation(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()

	_, err := env.Get("/documents/", env.AuthToken)
	require.NoError(t, err)

	keysResp, err := env.Get("/apikeys", env.AuthToken)
	require.NoError(t, err)
	var keys []struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(keysResp.Data, &keys))
	require.NotEmpty(t, keys)

	_, err = env.Delete("/apikeys/"+keys[0].ID, env.AuthToken)
	require.NoError(t, err)

	_, err = env.Get("/documents/", env.AuthToken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
