package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/teamlink/server/api/rest"
	"github.com/kasuganosora/teamlink/server/config"
	"github.com/kasuganosora/teamlink/server/gateway"
	"github.com/kasuganosora/teamlink/server/messaging"
	mw "github.com/kasuganosora/teamlink/server/middleware"
	"github.com/kasuganosora/teamlink/server/model"
	"github.com/kasuganosora/teamlink/server/notification"
	"github.com/kasuganosora/teamlink/server/presence"
	"github.com/kasuganosora/teamlink/server/scheduler"
	"github.com/kasuganosora/teamlink/server/social"
	"github.com/kasuganosora/teamlink/server/store"
	"github.com/kasuganosora/teamlink/server/sweeper"
	"github.com/kasuganosora/teamlink/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const secret = "rest-test-secret"

type setup struct {
	r   *gin.Engine
	db  *gorm.DB
	st  *store.Store
	rec *testutil.Recorder
}

func newSetup(t *testing.T, users ...string) *setup {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.SetupTestDB(t)
	for _, u := range users {
		testutil.CreateUser(t, db, u)
	}
	logger := zap.NewNop()
	st := store.New(db)
	rec := &testutil.Recorder{}
	verifier := mw.NewJWTVerifier(secret)

	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)
	gw := gateway.New(presence.NewMemoryRegistry(logger), verifier, logger)
	socialSvc := social.NewService(st, rec, nil, logger)
	sw := sweeper.New(st, sched, rec, nil, config.SweeperConfig{}, logger)

	r := gin.New()
	r.Use(mw.ErrorHandler(logger))
	rest.Register(r, rest.Handlers{
		Social:        rest.NewSocialHandler(socialSvc),
		Teams:         rest.NewTeamHandler(socialSvc),
		Chat:          rest.NewChatHandler(messaging.NewService(st, rec, config.MessagingConfig{}, logger)),
		Notifications: rest.NewNotificationHandler(notification.NewService(st)),
		Admin:         rest.NewAdminHandler(gw, sched, sw, logger),
	}, verifier, config.ServerConfig{AdminKey: "admin-key"})

	return &setup{r: r, db: db, st: st, rec: rec}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := mw.GenerateToken(userID, secret, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *setup) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func errorKind(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]interface{}
	decodeBody(t, w, &body)
	kind, _ := body["error"].(string)
	return kind
}

func TestAuthRequired(t *testing.T) {
	s := newSetup(t)
	w := s.do(t, http.MethodGet, "/api/friends", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", errorKind(t, w))
}

func TestProfile(t *testing.T) {
	s := newSetup(t)

	w := s.do(t, http.MethodGet, "/api/me", "idp-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPut, "/api/me", "idp-1", map[string]string{"display_name": "Alice"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/users/idp-1", "idp-2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var u model.User
	decodeBody(t, w, &u)
	assert.Equal(t, "Alice", u.DisplayName)

	w = s.do(t, http.MethodPut, "/api/me", "idp-1", map[string]string{"display_name": "Alice", "photo_url": "not a url"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", errorKind(t, w))
}

func TestFriendFlow(t *testing.T) {
	s := newSetup(t, "alice", "bob")

	w := s.do(t, http.MethodPost, "/api/friends/requests", "alice", map[string]string{"to_user_id": "bob"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var fr model.FriendRequest
	decodeBody(t, w, &fr)

	w = s.do(t, http.MethodPost, "/api/friends/requests", "alice", map[string]string{"to_user_id": "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/friends/requests?direction=incoming", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Requests []model.FriendRequest `json:"requests"`
	}
	decodeBody(t, w, &listed)
	require.Len(t, listed.Requests, 1)

	path := "/api/friends/requests/" + itoa(fr.ID) + "/respond"
	w = s.do(t, http.MethodPost, path, "alice", map[string]string{"action": "accept"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, path, "bob", map[string]string{"action": "accept"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/friends", "alice", nil)
	var friends struct {
		Friends []model.User `json:"friends"`
	}
	decodeBody(t, w, &friends)
	require.Len(t, friends.Friends, 1)
	assert.Equal(t, "bob", friends.Friends[0].ID)

	w = s.do(t, http.MethodPost, "/api/friends/requests", "bob", map[string]string{"to_user_id": "alice"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/friends/requests/abc/respond", "bob", map[string]string{"action": "accept"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTeamAndChatFlow(t *testing.T) {
	s := newSetup(t, "alice", "bob")

	w := s.do(t, http.MethodPost, "/api/teams", "alice", map[string]string{"name": "Red"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var team model.Team
	decodeBody(t, w, &team)
	teamPath := "/api/teams/" + itoa(team.ID)

	w = s.do(t, http.MethodPost, teamPath+"/join", "bob", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var inv model.Invitation
	decodeBody(t, w, &inv)

	w = s.do(t, http.MethodPost, "/api/invitations/"+itoa(inv.ID)+"/accept", "bob", nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "join requests are answered by the owner")

	w = s.do(t, http.MethodPost, "/api/invitations/"+itoa(inv.ID)+"/accept", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, teamPath+"/messages", "bob", map[string]string{"content": "hi team"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, teamPath+"/unread", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"unread":1}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/chats", "alice", map[string]string{"user_id": "bob"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var chat model.Chat
	decodeBody(t, w, &chat)
	chatPath := "/api/chats/" + itoa(chat.ID)

	w = s.do(t, http.MethodPost, chatPath+"/messages", "alice", map[string]string{"content": "hey"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodGet, chatPath+"/messages?limit=10&offset=0", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var msgs struct {
		Messages []model.ChatMessage `json:"messages"`
	}
	decodeBody(t, w, &msgs)
	require.Len(t, msgs.Messages, 1)

	w = s.do(t, http.MethodGet, chatPath+"/messages?offset=-1", "bob", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodGet, chatPath+"/messages?limit=x", "bob", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, chatPath+"/read", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"marked":1}`, w.Body.String())
}

func TestNotifications(t *testing.T) {
	s := newSetup(t, "alice")
	n := &model.Notification{UserID: "alice", Type: model.NotificationTournamentDeleted, Title: "gone"}
	require.NoError(t, s.st.Notifications().Create(context.Background(), n))

	w := s.do(t, http.MethodGet, "/api/notifications/unread", "alice", nil)
	assert.JSONEq(t, `{"unread":1}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/notifications/"+itoa(n.ID)+"/read", "mallory", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/api/notifications/"+itoa(n.ID)+"/read", "alice", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodPost, "/api/notifications/read-all", "alice", nil)
	assert.JSONEq(t, `{"marked":0}`, w.Body.String())
}

func TestAdmin(t *testing.T) {
	s := newSetup(t, "alice")
	tr := &model.Tournament{Title: "old", StartDate: time.Now().UTC().Add(-time.Hour), CreatorID: "alice"}
	require.NoError(t, s.st.Tournaments().Create(context.Background(), tr))

	req := httptest.NewRequest(http.MethodPost, "/api/admin/sweeper/run", nil)
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/admin/sweeper/run", nil)
	req.Header.Set("X-Admin-Key", "admin-key")
	w = httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Queued bool           `json:"queued"`
		Result sweeper.Result `json:"result"`
	}
	decodeBody(t, w, &body)
	assert.False(t, body.Queued)
	assert.Equal(t, 1, body.Result.Deleted)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/metrics", nil)
	req.Header.Set("X-Admin-Key", "admin-key")
	w = httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"connections":0`)
	assert.Contains(t, w.Body.String(), `"online_users":0`)
}

func TestAdminAuth_DisabledWithoutKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", rest.AdminAuth(""), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
