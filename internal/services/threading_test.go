package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"closingflow/internal/models"
)

func TestNormalizeSubject(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Earnest Money Deposit", "earnest money deposit"},
		{"Re: Earnest Money Deposit", "earnest money deposit"},
		{"RE: FWD: Earnest Money Deposit", "earnest money deposit"},
		{"Fw: Fwd: re:   Wire Instructions", "wire instructions"},
		{"AW: Statusbericht", "statusbericht"},
		{"SV: VS: Ref: Closing Docs", "closing docs"},
		{"Re[2]: Closing Docs", "closing docs"},
		{"  Re:  spaced  ", "spaced"},
		{"", ""},
		// "ref" only counts as a prefix with a colon
		{"Reference materials", "reference materials"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, NormalizeSubject(c.in), "input %q", c.in)
	}
}

func TestSubjectThreadIDDeterministic(t *testing.T) {
	propA := uuid.New()
	propB := uuid.New()

	// Same property + equivalent subjects => same thread.
	require.Equal(t,
		SubjectThreadID(propA, "Earnest Money"),
		SubjectThreadID(propA, "Re: earnest money"))

	// Different property => different thread.
	require.NotEqual(t,
		SubjectThreadID(propA, "Earnest Money"),
		SubjectThreadID(propB, "Earnest Money"))

	// Fixed-length hex id.
	require.Len(t, SubjectThreadID(propA, "anything"), 32)
}

func TestResolveThreadIDPrefersInReplyTo(t *testing.T) {
	ctx := context.Background()
	propertyID := uuid.New()
	repo := &fakeInboxRepo{}

	require.NoError(t, repo.Create(ctx, &models.InboxMessage{
		PropertyID:        propertyID,
		ThreadID:          "thread-original",
		Direction:         models.DirectionOutbound,
		ProviderMessageID: "<orig@closingflow.test>",
	}))

	got, err := ResolveThreadID(ctx, repo, propertyID,
		"<orig@closingflow.test>", []string{"<unknown@x>"}, "Totally Different Subject")
	require.NoError(t, err)
	require.Equal(t, "thread-original", got)
}

func TestResolveThreadIDWalksReferencesNewestFirst(t *testing.T) {
	ctx := context.Background()
	propertyID := uuid.New()
	repo := &fakeInboxRepo{}

	require.NoError(t, repo.Create(ctx, &models.InboxMessage{
		PropertyID:        propertyID,
		ThreadID:          "thread-old",
		ProviderMessageID: "<old@x>",
	}))
	require.NoError(t, repo.Create(ctx, &models.InboxMessage{
		PropertyID:        propertyID,
		ThreadID:          "thread-new",
		ProviderMessageID: "<new@x>",
	}))

	// References are oldest-to-newest on the wire; the newest match wins.
	got, err := ResolveThreadID(ctx, repo, propertyID,
		"", []string{"<old@x>", "<new@x>"}, "whatever")
	require.NoError(t, err)
	require.Equal(t, "thread-new", got)
}

func TestResolveThreadIDFallsBackToSubjectHash(t *testing.T) {
	ctx := context.Background()
	propertyID := uuid.New()
	repo := &fakeInboxRepo{}

	got, err := ResolveThreadID(ctx, repo, propertyID,
		"<nobody@x>", []string{"<missing@x>"}, "Re: Inspection Report")
	require.NoError(t, err)
	require.Equal(t, SubjectThreadID(propertyID, "Inspection Report"), got)
}

func TestResolveThreadIDScopedToProperty(t *testing.T) {
	ctx := context.Background()
	propA := uuid.New()
	propB := uuid.New()
	repo := &fakeInboxRepo{}

	require.NoError(t, repo.Create(ctx, &models.InboxMessage{
		PropertyID:        propA,
		ThreadID:          "thread-a",
		ProviderMessageID: "<shared@x>",
	}))

	// A matching message-id on another property must not be reused.
	got, err := ResolveThreadID(ctx, repo, propB, "<shared@x>", nil, "Subject")
	require.NoError(t, err)
	require.Equal(t, SubjectThreadID(propB, "Subject"), got)
}
