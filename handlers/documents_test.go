package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/diagramsync/internal/collab"
	"github.com/gogotex/diagramsync/internal/document"
	"github.com/gogotex/diagramsync/internal/document/repository"
	"github.com/gogotex/diagramsync/internal/document/service"
	"github.com/gogotex/diagramsync/internal/identity"
	"github.com/gogotex/diagramsync/internal/tokens"
	"github.com/gogotex/diagramsync/pkg/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "handlers-test-secret-32-bytes-xxxx"

type fakeArchiver struct {
	docID string
	body  []byte
	err   error
}

func (f *fakeArchiver) Archive(ctx context.Context, docID string, body []byte, at time.Time, ttl time.Duration) (string, error) {
	f.docID, f.body = docID, body
	return "https://minio.local/" + docID, f.err
}

// brokenStore fails every write like an unreachable database.
type brokenStore struct{ *repository.MemoryRepo }

func (brokenStore) UpdateContent(ctx context.Context, id, content string, at time.Time) (*document.Document, error) {
	return nil, fmt.Errorf("%w: timeout", document.ErrStorage)
}

type app struct {
	engine  *gin.Engine
	repo    *repository.MemoryRepo
	rooms   *collab.Registry
	archive *fakeArchiver
}

func newApp(t *testing.T, store collab.ContentStore) *app {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := repository.NewMemoryRepo()
	if store == nil {
		store = repo
	} else if b, ok := store.(brokenStore); ok {
		repo = b.MemoryRepo
	}
	svc := service.New(repo)
	rooms := collab.NewRegistry(svc.Policy())
	router := collab.NewRouter(svc.Policy(), store, rooms)
	arch := &fakeArchiver{}

	g := gin.New()
	authed := g.Group("/", middleware.AuthMiddleware(identity.NewJWTVerifier(testSecret, nil)))
	NewDocumentHandler(svc, router, arch).Register(authed)
	return &app{engine: g, repo: repo, rooms: rooms, archive: arch}
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	tok, err := tokens.GenerateAccessToken(testSecret, identity.Identity{ID: userID, Name: userID}, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func (a *app) do(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("Authorization", bearer(t, user))
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func decodeDoc(t *testing.T, w *httptest.ResponseRecorder) document.Document {
	t.Helper()
	var d document.Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	return d
}

func TestCreateListGetDocument(t *testing.T) {
	a := newApp(t, nil)

	w := a.do(t, http.MethodPost, "/documents", "alice", `{"name":"orders","type":"Sequence"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	d := decodeDoc(t, w)
	require.NotEmpty(t, d.ID)
	assert.Equal(t, "alice", d.Owner)
	assert.Equal(t, []string{"alice"}, d.Collaborators)
	assert.Equal(t, document.TypeSequence, d.Type)

	w = a.do(t, http.MethodGet, "/documents/"+d.ID, "alice", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodGet, "/documents/"+d.ID, "bob", "")
	require.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, http.MethodGet, "/documents/nope", "alice", "")
	require.Equal(t, http.StatusNotFound, w.Code)

	var list struct {
		Documents []document.Document `json:"documents"`
	}
	w = a.do(t, http.MethodGet, "/api/diagrams", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Documents, 1)

	w = a.do(t, http.MethodGet, "/documents", "bob", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"documents":[]}`, w.Body.String())
}

func TestListNewestFirst(t *testing.T) {
	a := newApp(t, nil)
	var ids []string
	for _, name := range []string{"first", "second"} {
		w := a.do(t, http.MethodPost, "/documents", "alice", `{"name":"`+name+`"}`)
		require.Equal(t, http.StatusCreated, w.Code)
		ids = append(ids, decodeDoc(t, w).ID)
	}
	time.Sleep(5 * time.Millisecond)
	require.Equal(t, http.StatusOK, a.do(t, http.MethodPut, "/documents/"+ids[0], "alice", `{"content":"touched"}`).Code)

	var list struct {
		Documents []document.Document `json:"documents"`
	}
	w := a.do(t, http.MethodGet, "/documents", "alice", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Documents, 2)
	assert.Equal(t, ids[0], list.Documents[0].ID)
}

func TestCreateValidation(t *testing.T) {
	a := newApp(t, nil)
	require.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodPost, "/documents", "", `{"name":"x"}`).Code)
	require.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/documents", "alice", `{"name":""}`).Code)
	require.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/documents", "alice", `{"name":"x","type":"Gantt"}`).Code)
	require.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/documents", "alice", `not json`).Code)
}

func TestUpdateBroadcastsToLiveSessions(t *testing.T) {
	a := newApp(t, nil)
	w := a.do(t, http.MethodPost, "/documents", "alice", `{"name":"flow","type":"Flowchart"}`)
	d := decodeDoc(t, w)

	s := collab.NewSession(8)
	require.NoError(t, s.Authenticate(identity.Identity{ID: "alice"}, "t"))
	require.NoError(t, a.rooms.Register(s))
	_, err := a.rooms.Join(context.Background(), s, d.ID)
	require.NoError(t, err)

	w = a.do(t, http.MethodPut, "/documents/"+d.ID, "alice", `{"content":"box A"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "box A", decodeDoc(t, w).Content)

	select {
	case b := <-s.Outbox():
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(b, &m))
		assert.Equal(t, "update", m["type"])
		assert.Equal(t, "box A", m["content"])
	default:
		t.Fatal("REST update was not broadcast")
	}

	stored, err := a.repo.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, "box A", stored.Content)
}

func TestUpdateErrors(t *testing.T) {
	a := newApp(t, nil)
	d := decodeDoc(t, a.do(t, http.MethodPost, "/documents", "alice", `{"name":"x"}`))

	require.Equal(t, http.StatusForbidden, a.do(t, http.MethodPut, "/documents/"+d.ID, "bob", `{"content":"x"}`).Code)
	require.Equal(t, http.StatusNotFound, a.do(t, http.MethodPut, "/documents/missing", "alice", `{"content":"x"}`).Code)
	require.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPut, "/documents/"+d.ID, "alice", `{}`).Code)
}

func TestUpdateStorageFailure(t *testing.T) {
	a := newApp(t, brokenStore{repository.NewMemoryRepo()})
	d := decodeDoc(t, a.do(t, http.MethodPost, "/documents", "alice", `{"name":"x"}`))

	s := collab.NewSession(8)
	require.NoError(t, s.Authenticate(identity.Identity{ID: "alice"}, "t"))
	_, err := a.rooms.Join(context.Background(), s, d.ID)
	require.NoError(t, err)

	w := a.do(t, http.MethodPut, "/documents/"+d.ID, "alice", `{"content":"lost"}`)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	select {
	case <-s.Outbox():
		t.Fatal("failed write must not be broadcast")
	default:
	}
}

func TestAddCollaborator(t *testing.T) {
	a := newApp(t, nil)
	d := decodeDoc(t, a.do(t, http.MethodPost, "/documents", "alice", `{"name":"x"}`))

	require.Equal(t, http.StatusForbidden, a.do(t, http.MethodPost, "/documents/"+d.ID+"/collaborators", "bob", `{"userId":"bob"}`).Code)
	require.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/documents/"+d.ID+"/collaborators", "alice", `{}`).Code)

	w := a.do(t, http.MethodPost, "/documents/"+d.ID+"/collaborators", "alice", `{"userId":"   "}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "collaborator user id is required")

	w = a.do(t, http.MethodPost, "/documents/"+d.ID+"/collaborators", "alice", `{"userId":"bob"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.ElementsMatch(t, []string{"alice", "bob"}, decodeDoc(t, w).Collaborators)

	require.Equal(t, http.StatusOK, a.do(t, http.MethodPut, "/documents/"+d.ID, "bob", `{"content":"bob was here"}`).Code)
}

func TestArchive(t *testing.T) {
	a := newApp(t, nil)
	d := decodeDoc(t, a.do(t, http.MethodPost, "/documents", "alice", `{"name":"x"}`))

	w := a.do(t, http.MethodPost, "/documents/"+d.ID+"/archive", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "https://minio.local/"+d.ID)
	assert.Equal(t, d.ID, a.archive.docID)
	assert.Contains(t, string(a.archive.body), `"owner":"alice"`)

	require.Equal(t, http.StatusForbidden, a.do(t, http.MethodPost, "/documents/"+d.ID+"/archive", "bob", "").Code)

	a.archive.err = errors.New("minio down")
	require.Equal(t, http.StatusBadGateway, a.do(t, http.MethodPost, "/documents/"+d.ID+"/archive", "alice", "").Code)
}

func TestArchiveNotConfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := repository.NewMemoryRepo()
	svc := service.New(repo)
	g := gin.New()
	g.Use(func(c *gin.Context) { c.Set(middleware.ContextIdentity, identity.Identity{ID: "alice"}) })
	NewDocumentHandler(svc, nil, nil).Register(&g.RouterGroup)

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/documents/x/archive", nil))
	require.Equal(t, http.StatusNotImplemented, w.Code)
}
