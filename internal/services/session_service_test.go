package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arifwid/docuchat/internal/models"
	"github.com/arifwid/docuchat/internal/utils"
)

func newSessionFixture() (*memSessionRepo, *memChatLogRepo, SessionService) {
	sessions := newMemSessionRepo()
	chatlogs := newMemChatLogRepo()
	return sessions, chatlogs, NewSessionService(sessions, chatlogs)
}

func TestSessionCreateDedupsDocIDs(t *testing.T) {
	_, _, svc := newSessionFixture()

	s, err := svc.Create(context.Background(), "u1", "New Chat", []string{"d1", "d2", "d1", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2"}, []string(s.DocIDs))
}

func TestSessionUpdateReplacesDocIDs(t *testing.T) {
	_, _, svc := newSessionFixture()

	s, err := svc.Create(context.Background(), "u1", "x", []string{"d1", "d2"})
	require.NoError(t, err)

	replacement := []string{"d3"}
	updated, err := svc.Update(context.Background(), s.ID, SessionPatch{DocIDs: &replacement})
	require.NoError(t, err)
	assert.Equal(t, []string{"d3"}, []string(updated.DocIDs), "the set is replaced wholesale, not merged")
}

func TestSessionUpdateRejectsEmptyName(t *testing.T) {
	_, _, svc := newSessionFixture()

	s, err := svc.Create(context.Background(), "u1", "x", nil)
	require.NoError(t, err)

	empty := ""
	_, err = svc.Update(context.Background(), s.ID, SessionPatch{Name: &empty})
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))
}

func TestSessionLinkAndUnlinkDocument(t *testing.T) {
	_, _, svc := newSessionFixture()

	s, err := svc.Create(context.Background(), "u1", "x", []string{"d1"})
	require.NoError(t, err)

	require.NoError(t, svc.LinkDocument(context.Background(), s.ID, "d2"))
	require.NoError(t, svc.LinkDocument(context.Background(), s.ID, "d2")) // idempotent

	got, err := svc.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2"}, []string(got.DocIDs))

	require.NoError(t, svc.UnlinkDocument(context.Background(), s.ID, "d1"))
	got, err = svc.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"d2"}, []string(got.DocIDs))
}

func TestSessionVerifyOwnership(t *testing.T) {
	_, _, svc := newSessionFixture()

	s, err := svc.Create(context.Background(), "u1", "mine", nil)
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), s.ID, "u1")
	assert.NoError(t, err)

	_, err = svc.Verify(context.Background(), s.ID, "someone-else")
	assert.True(t, utils.IsCode(err, utils.CodeForbidden))

	_, err = svc.Verify(context.Background(), "missing", "u1")
	assert.True(t, utils.IsCode(err, utils.CodeNotFound))
}

func TestSessionDeleteCascadesChatLogs(t *testing.T) {
	_, chatlogs, svc := newSessionFixture()

	s, err := svc.Create(context.Background(), "u1", "doomed", nil)
	require.NoError(t, err)
	require.NoError(t, chatlogs.Insert(context.Background(), &models.ChatLog{
		ID: "r1", SessionID: s.ID, Prompt: "q", Response: "a", Step: 1,
	}))

	require.NoError(t, svc.Delete(context.Background(), s.ID))

	_, err = svc.Get(context.Background(), s.ID)
	assert.True(t, utils.IsCode(err, utils.CodeNotFound))
	rows, err := chatlogs.ListBySession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
