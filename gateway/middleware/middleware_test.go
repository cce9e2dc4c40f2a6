package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"runclub/crypto"
	"runclub/gateway/auth"
	"runclub/observability/logging"
)

func oracleToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuthenticatorRequiresScope(t *testing.T) {
	authn := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: "s3cret", Issuer: "runclub-oracle", Audience: "runclubd"}, nil)
	var subject string
	handler := authn.Middleware(ScopeKmWrite)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(token string) int {
		req := httptest.NewRequest(http.MethodPost, "/clubs/1/km", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		return res.Code
	}

	base := jwt.MapClaims{"iss": "runclub-oracle", "aud": "runclubd", "sub": "strava-bridge", "exp": time.Now().Add(time.Hour).Unix()}
	require.Equal(t, http.StatusUnauthorized, call(""))
	require.Equal(t, http.StatusUnauthorized, call(oracleToken(t, "wrong", base)))

	readOnly := jwt.MapClaims{"scope": "km:read"}
	for k, v := range base {
		readOnly[k] = v
	}
	require.Equal(t, http.StatusForbidden, call(oracleToken(t, "s3cret", readOnly)))

	writer := jwt.MapClaims{"scope": "km:read km:write"}
	for k, v := range base {
		writer[k] = v
	}
	require.Equal(t, http.StatusNoContent, call(oracleToken(t, "s3cret", writer)))
	require.Equal(t, "strava-bridge", subject)

	wrongIssuer := jwt.MapClaims{"scope": ScopeKmWrite, "iss": "someone-else", "aud": "runclubd"}
	require.Equal(t, http.StatusUnauthorized, call(oracleToken(t, "s3cret", wrongIssuer)))
}

func TestSignaturesRestoresBody(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	now := time.Now()
	verifier := auth.NewVerifier(time.Minute, 8, func() time.Time { return now }, nil)

	var gotBody []byte
	var gotSigner [20]byte
	handler := Signatures(verifier, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSigner, _ = SignerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	body := []byte(`{"name":"Dawn Patrol"}`)
	req := httptest.NewRequest(http.MethodPost, "/clubs", bytes.NewReader(body))
	require.NoError(t, auth.SignRequest(req, body, key, now))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, body, gotBody)
	require.Equal(t, key.PubKey().Address().Bytes(), gotSigner)

	replay := httptest.NewRequest(http.MethodPost, "/clubs", bytes.NewReader(body))
	replay.Header = req.Header.Clone()
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, replay)
	require.Equal(t, http.StatusConflict, res.Code)

	unsigned := httptest.NewRequest(http.MethodPost, "/clubs", bytes.NewReader(body))
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, unsigned)
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestRejectionLogsRedactCredentials(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	now := time.Now()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	verifier := auth.NewVerifier(time.Minute, 8, func() time.Time { return now }, nil)
	signed := Signatures(verifier, logger)(okHandler())
	body := []byte(`{"amount":"10"}`)
	req := httptest.NewRequest(http.MethodPost, "/clubs/1/deposit", bytes.NewReader(body))
	require.NoError(t, auth.SignRequest(req, body, key, now))
	sig := req.Header.Get(auth.HeaderSignature)
	signed.ServeHTTP(httptest.NewRecorder(), req)
	buf.Reset()

	replay := httptest.NewRequest(http.MethodPost, "/clubs/1/deposit", bytes.NewReader(body))
	replay.Header = req.Header.Clone()
	res := httptest.NewRecorder()
	signed.ServeHTTP(res, replay)
	require.Equal(t, http.StatusConflict, res.Code)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "signature rejected", line["msg"])
	require.Equal(t, logging.RedactedValue, line["signature"])
	require.Equal(t, req.Header.Get(auth.HeaderSigner), line["signer"])
	require.NotContains(t, buf.String(), sig)

	buf.Reset()
	authn := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: "s3cret"}, logger)
	token := oracleToken(t, "wrong", jwt.MapClaims{"scope": ScopeKmWrite})
	kmReq := httptest.NewRequest(http.MethodPost, "/clubs/1/km", nil)
	kmReq.Header.Set("Authorization", "Bearer "+token)
	res = httptest.NewRecorder()
	authn.Middleware(ScopeKmWrite)(okHandler()).ServeHTTP(res, kmReq)
	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.NotContains(t, buf.String(), token)
	require.Contains(t, buf.String(), "Bearer "+logging.RedactedValue)
}

func TestObservabilityAssignsRequestID(t *testing.T) {
	obs := NewObservability(ObservabilityConfig{Module: "test", LogRequests: true}, nil)
	router := chi.NewRouter()
	router.Use(obs.Middleware)
	var seen string
	router.Get("/clubs/{id}", func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/clubs/7", nil))
	require.Equal(t, http.StatusTeapot, res.Code)
	_, err := uuid.Parse(res.Header().Get(HeaderRequestID))
	require.NoError(t, err)
	require.Equal(t, res.Header().Get(HeaderRequestID), seen)

	given := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/clubs/8", nil)
	req.Header.Set(HeaderRequestID, given)
	res = httptest.NewRecorder()
	router.ServeHTTP(res, req)
	require.Equal(t, given, res.Header().Get(HeaderRequestID))
}

func TestCORSPreflight(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{"https://club.example"}})(okHandler())
	req := httptest.NewRequest(http.MethodOptions, "/clubs", nil)
	req.Header.Set("Origin", "https://club.example")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusNoContent, res.Code)
	require.Equal(t, "https://club.example", res.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, res.Header().Get("Access-Control-Allow-Headers"), "X-Runclub-Signature")
}
