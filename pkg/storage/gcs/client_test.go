package gcs

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func staticTokenSource(token string) *tokenSource {
	return &tokenSource{
		fetch: func(context.Context) (string, time.Time, error) {
			return token, time.Now().Add(time.Hour), nil
		},
	}
}

func newTestClient(srv *httptest.Server) *Client {
	return &Client{
		httpClient:  srv.Client(),
		tokenSource: staticTokenSource("tok"),
		bucket:      "studio-bucket",
		apiBase:     srv.URL,
		publicBase:  "https://cdn.example.com",
	}
}

func TestUploadSendsMediaRequest(t *testing.T) {
	var gotPath, gotName, gotAuth, gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotName = r.URL.Query().Get("name")
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"name":"barcodes/m.png"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv)
	u, err := client.Upload(context.Background(), "/barcodes/m.png", "image/png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	if gotPath != "/upload/storage/v1/b/studio-bucket/o" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotName != "barcodes/m.png" {
		t.Fatalf("unexpected object name %q", gotName)
	}
	if gotAuth != "Bearer tok" || gotType != "image/png" || gotBody != "png-bytes" {
		t.Fatalf("unexpected request auth=%q type=%q body=%q", gotAuth, gotType, gotBody)
	}
	if u != "https://cdn.example.com/studio-bucket/barcodes/m.png" {
		t.Fatalf("unexpected public url %s", u)
	}
}

func TestUploadReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Upload(context.Background(), "barcodes/m.png", "image/png", strings.NewReader("x"))
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}

func TestUploadRequiresObjectName(t *testing.T) {
	client := &Client{tokenSource: staticTokenSource("tok"), bucket: "b"}
	if _, err := client.Upload(context.Background(), " ", "", strings.NewReader("x")); err == nil {
		t.Fatal("expected missing object error")
	}
	var nilClient *Client
	if _, err := nilClient.Upload(context.Background(), "a", "", nil); err == nil {
		t.Fatal("expected nil client error")
	}
}

func TestPingChecksBucket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/storage/v1/b/studio-bucket/o" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	if err := newTestClient(srv).Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := (&Client{}).Ping(context.Background()); err == nil {
		t.Fatal("expected uninitialized client ping to fail")
	}
}

func TestTokenSourceCachesUntilNearExpiry(t *testing.T) {
	calls := 0
	ts := &tokenSource{fetch: func(context.Context) (string, time.Time, error) {
		calls++
		return "t", time.Now().Add(10 * time.Minute), nil
	}}
	for i := 0; i < 3; i++ {
		if _, err := ts.Token(context.Background()); err != nil {
			t.Fatalf("token: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one fetch, got %d", calls)
	}
}

func TestServiceAccountTokenFetch(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("grant_type") != "urn:ietf:params:oauth:grant-type:jwt-bearer" {
			t.Errorf("unexpected grant type %q", r.Form.Get("grant_type"))
		}
		claims := jwt.MapClaims{}
		if _, err := jwt.ParseWithClaims(r.Form.Get("assertion"), claims, func(*jwt.Token) (any, error) {
			return &key.PublicKey, nil
		}, jwt.WithValidMethods([]string{"RS256"})); err != nil {
			t.Errorf("assertion does not verify: %v", err)
		}
		if claims["iss"] != "svc@example.iam.gserviceaccount.com" || claims["scope"] != storageScope {
			t.Errorf("unexpected assertion claims %v", claims)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "sa-token", "expires_in": 3600})
	}))
	defer srv.Close()

	creds, _ := json.Marshal(map[string]string{
		"client_email": "svc@example.iam.gserviceaccount.com",
		"private_key":  string(pemKey),
		"token_uri":    srv.URL,
	})
	ts, err := newServiceAccountTokenSource(srv.Client(), string(creds))
	if err != nil {
		t.Fatalf("token source: %v", err)
	}
	token, err := ts.Token(context.Background())
	if err != nil || token != "sa-token" {
		t.Fatalf("expected sa-token, got %q err=%v", token, err)
	}

	if _, err := newServiceAccountTokenSource(srv.Client(), `{"client_email":""}`); err == nil {
		t.Fatal("expected invalid credentials error")
	}
}

func TestTokenRequestRejectsEmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"expires_in":3600}`))
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	if _, _, err := requestToken(srv.Client(), req); err == nil {
		t.Fatal("expected missing access_token error")
	}
}
