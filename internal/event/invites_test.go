package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pushRecorder captures notifier pushes for assertions.
type pushRecorder struct {
	pushes []recordedPush
	err    error
}

type recordedPush struct {
	UserID string
	Title  string
	Data   map[string]string
}

func (p *pushRecorder) Push(ctx context.Context, userID, title, body string, data map[string]string) error {
	p.pushes = append(p.pushes, recordedPush{UserID: userID, Title: title, Data: data})
	return p.err
}

func newInviteService(t *testing.T) (*Service, *MemStore, *pushRecorder) {
	t.Helper()
	store := NewMemStore()
	rec := &pushRecorder{}
	svc := NewService(store, NewMemChannel(), nil, rec)
	seedEvent(t, store, func() *Event {
		ev := publicEvent()
		ev.Visibility = VisibilityPrivate
		return ev
	}())
	return svc, store, rec
}

func TestInviteLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, store, rec := newInviteService(t)

	inv, err := svc.Invite(ctx, "ev1", "owner", "guest")
	require.NoError(t, err)
	assert.Equal(t, InvitePending, inv.Status)
	assert.Equal(t, "owner", inv.InvitedBy)

	require.Len(t, rec.pushes, 1)
	assert.Equal(t, "guest", rec.pushes[0].UserID)
	assert.Equal(t, inv.ID, rec.pushes[0].Data["inviteId"])

	// A second pending invitation for the same user is rejected.
	_, err = svc.Invite(ctx, "ev1", "owner", "guest")
	assert.Equal(t, KindInvalid, KindOf(err))

	// Accepting joins the participant set atomically with the status flip.
	answered, err := svc.RespondInvite(ctx, "ev1", inv.ID, "guest", true)
	require.NoError(t, err)
	assert.Equal(t, InviteAccepted, answered.Status)

	ev, err := store.GetEvent(ctx, "ev1")
	require.NoError(t, err)
	assert.True(t, ev.IsParticipant("guest"))

	// The new participant can use the private event.
	_, _, err = svc.AddTrack(ctx, "ev1", track("t1"), "guest")
	assert.NoError(t, err)

	// Answering twice is rejected.
	_, err = svc.RespondInvite(ctx, "ev1", inv.ID, "guest", false)
	assert.Equal(t, KindInvalid, KindOf(err))
}

func TestInviteDecline(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newInviteService(t)

	inv, err := svc.Invite(ctx, "ev1", "owner", "guest")
	require.NoError(t, err)

	answered, err := svc.RespondInvite(ctx, "ev1", inv.ID, "guest", false)
	require.NoError(t, err)
	assert.Equal(t, InviteDeclined, answered.Status)

	ev, err := store.GetEvent(ctx, "ev1")
	require.NoError(t, err)
	assert.False(t, ev.IsParticipant("guest"))
}

func TestReinviteAfterDecline(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newInviteService(t)

	first, err := svc.Invite(ctx, "ev1", "owner", "guest")
	require.NoError(t, err)
	_, err = svc.RespondInvite(ctx, "ev1", first.ID, "guest", false)
	require.NoError(t, err)

	// Declining does not burn the invitation; the manager may try again.
	second, err := svc.Invite(ctx, "ev1", "owner", "guest")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, InvitePending, second.Status)

	// The declined row stays as history next to the new pending one.
	list, err := store.ListInvitations(ctx, "ev1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	statuses := map[InviteStatus]int{}
	for _, inv := range list {
		statuses[inv.Status]++
	}
	assert.Equal(t, 1, statuses[InviteDeclined])
	assert.Equal(t, 1, statuses[InvitePending])

	// And the fresh invitation is fully usable.
	answered, err := svc.RespondInvite(ctx, "ev1", second.ID, "guest", true)
	require.NoError(t, err)
	assert.Equal(t, InviteAccepted, answered.Status)
}

func TestInviteAccessRules(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newInviteService(t)

	_, err := svc.Invite(ctx, "ev1", "stranger", "guest")
	assert.Equal(t, KindForbidden, KindOf(err))

	_, err = svc.Invite(ctx, "ev1", "owner", "owner")
	assert.Equal(t, KindInvalid, KindOf(err), "already a participant")

	inv, err := svc.Invite(ctx, "ev1", "owner", "guest")
	require.NoError(t, err)

	// Only the invitee may answer.
	_, err = svc.RespondInvite(ctx, "ev1", inv.ID, "impostor", true)
	assert.Equal(t, KindForbidden, KindOf(err))

	// Only managers may list.
	_, err = svc.ListInvitations(ctx, "ev1", "guest")
	assert.Equal(t, KindForbidden, KindOf(err))
	list, err := svc.ListInvitations(ctx, "ev1", "owner")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	// Revocation removes the invitation outright.
	require.NoError(t, svc.RevokeInvite(ctx, "ev1", inv.ID, "owner"))
	_, err = svc.RespondInvite(ctx, "ev1", inv.ID, "guest", true)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestInvitePushFailureDoesNotRollBack(t *testing.T) {
	ctx := context.Background()
	svc, store, rec := newInviteService(t)
	rec.err = errors.New("sink unreachable")

	inv, err := svc.Invite(ctx, "ev1", "owner", "guest")
	require.NoError(t, err)

	list, err := store.ListInvitations(ctx, "ev1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, inv.ID, list[0].ID)
}

func TestInviteEndedEvent(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newInviteService(t)

	past := time.Now().Add(-time.Hour)
	ev := publicEvent()
	ev.Visibility = VisibilityPrivate
	ev.EndAt = &past
	seedEvent(t, store, ev)

	_, err := svc.Invite(ctx, "ev1", "owner", "guest")
	assert.Equal(t, KindEventEnded, KindOf(err))
}
