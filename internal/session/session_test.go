package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimic-ai/interview/internal/apiclient"
	"github.com/mimic-ai/interview/internal/apperr"
)

func authServer(t *testing.T) *httptest.Server {
	t.Helper()
	user := `{"user":{"id":"u-1","username":"taro","email":"taro@example.com","role":"user"}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case loginPath, registerPath:
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			if body["password"] != "secret123" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"success":false,"error":"invalid credentials"}`))
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "token", Value: "jwt", Path: "/", HttpOnly: true})
			_, _ = w.Write([]byte(`{"success":true,"data":` + user + `}`))
		case checkAuthPath:
			if ck, err := r.Cookie("token"); err != nil || ck.Value != "jwt" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"success":false,"error":"unauthorized"}`))
				return
			}
			_, _ = w.Write([]byte(`{"success":true,"data":` + user + `}`))
		case logoutPath:
			http.SetCookie(w, &http.Cookie{Name: "token", Value: "", Path: "/", MaxAge: -1})
			_, _ = w.Write([]byte(`{"success":true,"data":null}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newAuth(t *testing.T, srv *httptest.Server, store *Store) *Auth {
	t.Helper()
	api, err := apiclient.New(srv.URL)
	require.NoError(t, err)
	return NewAuth(api, store, nil)
}

func TestLoginPersistsAndRestores(t *testing.T) {
	srv := authServer(t)
	store := NewStore(filepath.Join(t.TempDir(), "session.json"))

	a := newAuth(t, srv, store)
	assert.Equal(t, GuestName, a.Username())
	u, err := a.Login(context.Background(), "taro@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "taro", u.Username)
	assert.Equal(t, "taro", a.Username())

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	restored := newAuth(t, srv, store)
	u, err = restored.Restore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "u-1", u.ID)
}

func TestLoginRejected(t *testing.T) {
	a := newAuth(t, authServer(t), nil)
	_, err := a.Login(context.Background(), "taro@example.com", "wrong")
	assert.True(t, apperr.IsKind(err, apperr.KindAuthentication))
	assert.Nil(t, a.User())
}

func TestRestoreWithoutSession(t *testing.T) {
	srv := authServer(t)
	store := NewStore(filepath.Join(t.TempDir(), "session.json"))
	u, err := newAuth(t, srv, store).Restore(context.Background())
	require.NoError(t, err)
	assert.Nil(t, u)

	require.NoError(t, os.WriteFile(store.Path(), []byte(`[{"name":"token","value":"stale","path":"/"}]`), 0o600))
	u, err = newAuth(t, srv, store).Restore(context.Background())
	require.NoError(t, err)
	assert.Nil(t, u)
	_, err = os.Stat(store.Path())
	assert.True(t, os.IsNotExist(err), "rejected session is removed")
}

func TestLogoutClearsState(t *testing.T) {
	srv := authServer(t)
	store := NewStore(filepath.Join(t.TempDir(), "session.json"))
	a := newAuth(t, srv, store)
	_, err := a.Register(context.Background(), "taro", "taro@example.com", "secret123")
	require.NoError(t, err)

	require.NoError(t, a.Logout(context.Background()))
	assert.Nil(t, a.User())
	assert.Equal(t, GuestName, a.Username())
	_, err = a.CheckAuth(context.Background())
	assert.True(t, apperr.IsKind(err, apperr.KindAuthentication))
}
