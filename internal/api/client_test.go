package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/samlabs/sam-gateway/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return New(Options{BaseURL: srv.URL}), srv
}

func TestSendTextPostsTurn(t *testing.T) {
	var gotBody map[string]any
	var gotQuery string
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/process_text", r.URL.Path)
		gotQuery = r.URL.Query().Get("platform")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(types.TurnResponse{Reply: "hi", SessionID: "s1"})
	})
	defer srv.Close()

	resp, err := c.SendText(context.Background(), "hello", "spotify", 7, "prev-session")
	require.NoError(t, err)

	assert.Equal(t, "hi", resp.Reply)
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, "spotify", gotQuery)
	assert.Equal(t, "hello", gotBody["text"])
	assert.Equal(t, float64(7), gotBody["platform_account_id"])
	assert.Equal(t, "prev-session", gotBody["session_id"])
}

func TestSendTextOmitsEmptySession(t *testing.T) {
	var gotBody map[string]any
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(types.TurnResponse{})
	})
	defer srv.Close()

	_, err := c.SendText(context.Background(), "hello", "spotify", 7, "")
	require.NoError(t, err)
	assert.NotContains(t, gotBody, "session_id")
}

func TestUploadAudioSendsMultipartClip(t *testing.T) {
	clip := []byte("RIFF fake wav payload")
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/process_voice", r.URL.Path)
		assert.Equal(t, "soundcloud", r.URL.Query().Get("platform"))
		assert.Equal(t, "3", r.URL.Query().Get("platform_account_id"))

		file, header, err := r.FormFile("audio")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "recording.wav", header.Filename)

		got, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, clip, got)

		_ = json.NewEncoder(w).Encode(types.TurnResponse{Reply: "heard"})
	})
	defer srv.Close()

	resp, err := c.UploadAudio(context.Background(), clip, "soundcloud", 3, "")
	require.NoError(t, err)
	assert.Equal(t, "heard", resp.Reply)
}

func TestExecuteActionBody(t *testing.T) {
	var gotBody map[string]any
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/execute", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(types.TurnResponse{Result: float64(42)})
	})
	defer srv.Close()

	resp, err := c.ExecuteAction(context.Background(), &types.Command{
		Type:   "set_volume",
		Params: map[string]any{"volume": 40},
	}, "spotify", 7, "s1")
	require.NoError(t, err)

	assert.Equal(t, float64(42), resp.Result)
	assert.Equal(t, "set_volume", gotBody["action"])
	assert.Equal(t, map[string]any{"volume": float64(40)}, gotBody["parameters"])
	assert.Equal(t, "spotify", gotBody["platform"])
	assert.Equal(t, "s1", gotBody["session_id"])
}

func TestErrorDetailExtractedFromBody(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "platform not connected"})
	})
	defer srv.Close()

	_, err := c.SendText(context.Background(), "hello", "spotify", 7, "")
	require.Error(t, err)
	assert.Equal(t, "platform not connected", Detail(err))

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
}

func TestErrorWithoutDetailBody(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	defer srv.Close()

	_, err := c.SendText(context.Background(), "hello", "spotify", 7, "")
	require.Error(t, err)
	assert.Empty(t, Detail(err))
}

func TestDetailOfNonAPIError(t *testing.T) {
	assert.Empty(t, Detail(io.ErrUnexpectedEOF))
}

func TestPlatformStatusQuery(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/adapter/spotify/status", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("platform_account_id"))
		hasDevice := false
		_ = json.NewEncoder(w).Encode(types.PlatformStatus{IsConnected: true, HasActiveDevice: &hasDevice})
	})
	defer srv.Close()

	status, err := c.PlatformStatus(context.Background(), "spotify", 7)
	require.NoError(t, err)
	assert.True(t, status.IsConnected)
	require.NotNil(t, status.HasActiveDevice)
	assert.False(t, *status.HasActiveDevice)
}

func TestSynthesizeSpeechReturnsRawBytes(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/voice/tts/stream", r.URL.Path)
		assert.Equal(t, "no device found", r.URL.Query().Get("text"))
		_, _ = w.Write([]byte{0x52, 0x49, 0x46, 0x46})
	})
	defer srv.Close()

	clip, err := c.SynthesizeSpeech(context.Background(), "no device found")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x52, 0x49, 0x46, 0x46}, clip)
}

func TestAuthURL(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/adapter/soundcloud/login", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"auth_url": "https://example.com/oauth"})
	})
	defer srv.Close()

	u, err := c.AuthURL(context.Background(), "soundcloud")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/oauth", u)
}
