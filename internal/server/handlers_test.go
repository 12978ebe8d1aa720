package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpseudonym/idbroker/internal/auth"
	"github.com/openpseudonym/idbroker/internal/config"
	"github.com/openpseudonym/idbroker/internal/db/bunx"
	"github.com/openpseudonym/idbroker/internal/services/claims"
	"github.com/openpseudonym/idbroker/internal/services/consent"
	"github.com/openpseudonym/idbroker/internal/services/identity"
	"github.com/openpseudonym/idbroker/internal/services/notify"
	"github.com/openpseudonym/idbroker/internal/testutil"
)

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()

	db := testutil.NewTestDB(t)

	cfg := &config.Config{OIDC: config.OIDCConfig{InsecureDev: true}}
	verifier, err := auth.NewVerifier(cfg)
	require.NoError(t, err)

	return NewRouter(RouterOptions{
		Identity:   identity.NewService(db),
		Claims:     claims.NewService(db),
		Consent:    consent.NewService(db),
		Notify:     notify.NewService(db),
		Middleware: []func(http.Handler) http.Handler{verifier},
	})
}

func tokenFor(t *testing.T, subject string) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": subject}).
		SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func do(t *testing.T, router chi.Router, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()

	var envelope Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func TestRouter_HealthAndAuth(t *testing.T) {
	router := newTestRouter(t)

	t.Run("health needs no token", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/health", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("api needs a token", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/v1/identity", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRouter_IdentityEndpoints(t *testing.T) {
	router := newTestRouter(t)
	alice := tokenFor(t, "subject-a")

	rec := do(t, router, http.MethodPost, "/api/v1/identity", alice, map[string]any{"displayName": "Alice"})
	require.Equal(t, http.StatusCreated, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, "CREATED", envelope.Type)
	require.NotEmpty(t, envelope.ID)
	id := envelope.ID

	t.Run("list mine", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/v1/identity", alice, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var list []identityResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
		require.Len(t, list, 1)
		assert.Equal(t, id, list[0].ID)
		assert.Equal(t, "Alice", list[0].DisplayName)
	})

	t.Run("rename", func(t *testing.T) {
		rec := do(t, router, http.MethodPatch, "/api/v1/identity/"+id, alice, map[string]any{"displayName": "Alicia"})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = do(t, router, http.MethodGet, "/api/v1/identity/"+id, alice, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var got identityResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "Alicia", got.DisplayName)
	})

	t.Run("foreign subject gets 401 envelope", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/v1/identity/"+id, tokenFor(t, "subject-b"), nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		envelope := decodeEnvelope(t, rec)
		assert.Equal(t, "ERROR", envelope.Type)
		assert.Equal(t, http.StatusUnauthorized, envelope.Status)
	})

	t.Run("malformed id gets 400", func(t *testing.T) {
		rec := do(t, router, http.MethodDelete, "/api/v1/identity/not-a-uuid", alice, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRouter_ConsentFlow(t *testing.T) {
	router := newTestRouter(t)
	alice := tokenFor(t, "subject-a")
	bob := tokenFor(t, "subject-b")

	register := func(token, name string) string {
		rec := do(t, router, http.MethodPost, "/api/v1/identity", token, map[string]any{"displayName": name})
		require.Equal(t, http.StatusCreated, rec.Code)
		return decodeEnvelope(t, rec).ID
	}

	aliceID := register(alice, "Alice")
	bobID := register(bob, "Bob")

	// Alice stores a claim on her identity.
	rec := do(t, router, http.MethodPut, "/api/v1/claim", alice, map[string]any{
		"id": aliceID, "name": "email", "value": "alice@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	claimID := decodeEnvelope(t, rec).ID

	// Identical rewrite is a success without a new row.
	rec = do(t, router, http.MethodPut, "/api/v1/claim", alice, map[string]any{
		"id": aliceID, "name": "email", "value": "alice@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, claimID, decodeEnvelope(t, rec).ID)

	// Bob asks for the email claim.
	rec = do(t, router, http.MethodPost, "/api/v1/request", bob, map[string]any{
		"owner": aliceID, "requester": bobID, "claims": []string{"email"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	requestID := decodeEnvelope(t, rec).ID

	t.Run("owner is notified about the new request", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/v1/notification?id="+aliceID, alice, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var inbox []notificationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inbox))
		require.Len(t, inbox, 1)
		assert.Equal(t, "NEW_REQUEST", inbox[0].Type)
		assert.Equal(t, bobID, inbox[0].Context["requester"])
	})

	t.Run("nothing visible before acceptance", func(t *testing.T) {
		rec := do(t, router, http.MethodGet,
			fmt.Sprintf("/api/v1/claim/owner/%s?requester=%s", aliceID, bobID), bob, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var visible []claimResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &visible))
		assert.Empty(t, visible)
	})

	t.Run("requester cannot accept", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/v1/request/"+requestID+"/accept", bob, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("owner accepts and requester sees the claim", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/v1/request/"+requestID+"/accept", alice, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = do(t, router, http.MethodGet,
			fmt.Sprintf("/api/v1/claim/owner/%s?requester=%s", aliceID, bobID), bob, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var visible []claimResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &visible))
		require.Len(t, visible, 1)
		assert.Equal(t, "email", visible[0].Name)
		assert.Equal(t, "alice@example.com", visible[0].Value)
	})

	t.Run("second accept is a bad transition", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/v1/request/"+requestID+"/accept", alice, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown request is 404", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/v1/request/"+bunx.NewUUIDv7()+"/accept", alice, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("role listing", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/v1/request?role=owner", alice, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var asOwner []requestResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &asOwner))
		require.Len(t, asOwner, 1)
		assert.Equal(t, "ACCEPTED", asOwner[0].Status)

		rec = do(t, router, http.MethodGet, "/api/v1/request?role=nonsense", alice, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("requester marks the acceptance notification read", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/v1/notification?id="+bobID, bob, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var inbox []notificationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inbox))
		require.NotEmpty(t, inbox)
		notificationID := inbox[0].ID

		rec = do(t, router, http.MethodPost, "/api/v1/notification/"+notificationID+"/read", alice, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = do(t, router, http.MethodPost, "/api/v1/notification/"+notificationID+"/read", bob, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		// Idempotent.
		rec = do(t, router, http.MethodPost, "/api/v1/notification/"+notificationID+"/read", bob, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("identity deletion revokes the disclosure", func(t *testing.T) {
		rec := do(t, router, http.MethodDelete, "/api/v1/identity/"+aliceID, alice, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = do(t, router, http.MethodGet,
			fmt.Sprintf("/api/v1/claim/owner/%s?requester=%s", aliceID, bobID), bob, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var visible []claimResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &visible))
		assert.Empty(t, visible)

		rec = do(t, router, http.MethodGet, "/api/v1/notification?id="+bobID, bob, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var inbox []notificationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inbox))

		// Bob's accepted request died with its owner, which reads as a denial.
		denied := 0
		for _, n := range inbox {
			if n.Type == "REQUEST_DENIED" {
				denied++
				assert.Equal(t, aliceID, n.Context["owner"])
			}
		}
		assert.Equal(t, 1, denied)
	})
}

func TestRouter_ClaimFiltering(t *testing.T) {
	router := newTestRouter(t)
	alice := tokenFor(t, "subject-a")

	rec := do(t, router, http.MethodPost, "/api/v1/identity", alice, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	aliceID := decodeEnvelope(t, rec).ID

	for name, value := range map[string]string{"email": "a@example.com", "phone": "123"} {
		rec := do(t, router, http.MethodPut, "/api/v1/claim", alice, map[string]any{
			"id": aliceID, "name": name, "value": value,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	t.Run("filtered listing", func(t *testing.T) {
		rec := do(t, router, http.MethodGet,
			"/api/v1/claim?id="+aliceID+`&filter=name+%3D%3D+%22email%22`, alice, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var list []claimResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
		require.Len(t, list, 1)
		assert.Equal(t, "email", list[0].Name)
	})

	t.Run("broken filter is 400", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/v1/claim?id="+aliceID+"&filter=%3D%3D", alice, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("claim delete", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/v1/claim?id="+aliceID, alice, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var list []claimResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
		require.NotEmpty(t, list)

		rec = do(t, router, http.MethodDelete, "/api/v1/claim/"+list[0].ID, alice, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = do(t, router, http.MethodGet, "/api/v1/claim/"+list[0].ID, alice, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
