package model_test

import (
	"testing"
	"time"

	"github.com/kasuganosora/teamlink/server/model"
	"github.com/kasuganosora/teamlink/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func TestAutoMigrate_InsertAndQuery(t *testing.T) {
	db := testutil.SetupTestDB(t)

	// User
	alice := &model.User{DisplayName: "alice"}
	require.NoError(t, db.Create(alice).Error)
	assert.NotEmpty(t, alice.ID)
	bob := &model.User{ID: "bob", DisplayName: "bob"}
	require.NoError(t, db.Create(bob).Error)

	var found model.User
	require.NoError(t, db.First(&found, "id = ?", alice.ID).Error)
	assert.Equal(t, "alice", found.DisplayName)

	// FriendRequest + Friendship
	req := &model.FriendRequest{FromUserID: alice.ID, ToUserID: bob.ID, Status: model.StatusPending}
	require.NoError(t, db.Create(req).Error)
	require.NoError(t, db.Create(model.NewFriendship(alice.ID, bob.ID)).Error)

	// Team, member, invitation
	team := &model.Team{Name: "Falcons", OwnerID: alice.ID}
	require.NoError(t, db.Create(team).Error)
	require.NoError(t, db.Create(&model.TeamMember{TeamID: team.ID, UserID: alice.ID, Role: model.TeamRoleOwner}).Error)
	inv := &model.Invitation{
		Kind: model.InvitationInvite, FromUserID: alice.ID, ToUserID: bob.ID,
		TeamID: team.ID, CandidateID: bob.ID, Status: model.StatusPending, SentAt: time.Now(),
	}
	require.NoError(t, db.Create(inv).Error)

	// Chat + messages
	a, b := model.CanonicalPair(alice.ID, bob.ID)
	chat := &model.Chat{UserAID: a, UserBID: b}
	require.NoError(t, db.Create(chat).Error)
	require.NoError(t, db.Create(&model.ChatMessage{ChatID: chat.ID, SenderID: alice.ID, Content: "hi", SentAt: time.Now()}).Error)
	require.NoError(t, db.Create(&model.TeamMessage{TeamID: team.ID, SenderID: alice.ID, Content: "gg", SentAt: time.Now()}).Error)

	// Tournament, notification, audit
	tour := &model.Tournament{Title: "Cup", StartDate: time.Now(), CreatorID: alice.ID}
	require.NoError(t, db.Create(tour).Error)
	require.NoError(t, db.Create(&model.TournamentTeam{TournamentID: tour.ID, TeamID: team.ID}).Error)
	require.NoError(t, db.Create(&model.Notification{
		UserID: alice.ID, Type: model.NotificationTournamentDeleted,
		Payload: datatypes.JSON(`{"tournament_id":1}`),
	}).Error)
	require.NoError(t, db.Create(&model.AuditLog{TraceID: "trace-001", Action: "login"}).Error)
}

func TestUniqueConstraints(t *testing.T) {
	db := testutil.SetupTestDB(t)

	require.NoError(t, db.Create(model.NewFriendship("u1", "u2")).Error)
	err := db.Create(model.NewFriendship("u2", "u1")).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	inv := func(from string) *model.Invitation {
		return &model.Invitation{
			Kind: model.InvitationJoin, FromUserID: from, ToUserID: "owner",
			TeamID: 7, CandidateID: from, Status: model.StatusPending,
		}
	}
	require.NoError(t, db.Create(inv("u1")).Error)
	assert.ErrorIs(t, db.Create(inv("u1")).Error, gorm.ErrDuplicatedKey)
}

func TestHooks_RejectInvalidRows(t *testing.T) {
	db := testutil.SetupTestDB(t)

	assert.Error(t, db.Create(&model.Friendship{UserAID: "z", UserBID: "a"}).Error)
	assert.Error(t, db.Create(&model.FriendRequest{FromUserID: "a", ToUserID: "a", Status: model.StatusPending}).Error)
	assert.Error(t, db.Create(&model.FriendRequest{FromUserID: "a", ToUserID: "b", Status: "MAYBE"}).Error)
	assert.Error(t, db.Create(&model.Invitation{Kind: "OTHER", FromUserID: "a", ToUserID: "b", TeamID: 1, CandidateID: "b", Status: model.StatusPending}).Error)
}

func TestCanonicalPair(t *testing.T) {
	a, b := model.CanonicalPair("bob", "alice")
	assert.Equal(t, "alice", a)
	assert.Equal(t, "bob", b)
	a2, b2 := model.CanonicalPair("alice", "bob")
	assert.Equal(t, a, a2)
	assert.Equal(t, b, b2)

	f := model.NewFriendship("bob", "alice")
	assert.Equal(t, "bob", f.Other("alice"))
	assert.Equal(t, "alice", f.Other("bob"))
}
