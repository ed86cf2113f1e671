package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"referral-ledger/models"
)

func TestReferralService_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ref, err := env.Referrals.Create(ctx, CreateReferralInput{
		ReferrerAccountID: " referrer-1 ",
		ReferralCode:      " abç123",
		Channel:           "Instagram Story",
	})
	require.NoError(t, err)
	assert.Equal(t, "referrer-1", ref.ReferrerAccountID)
	assert.Equal(t, "instagram-story", ref.Channel)
	assert.Equal(t, "ABC123", ref.ReferralCode)
	assert.Equal(t, models.ReferralStatusPending, ref.Status)
	assert.Equal(t, models.RewardStatusUncredited, ref.RewardStatus)

	signed, err := env.Referrals.MarkSignedUp(ctx, ref.ID, "friend-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReferralStatusSignedUp, signed.Status)
	require.NotNil(t, signed.ReferredAccountID)
	assert.Equal(t, "friend-1", *signed.ReferredAccountID)
	assert.NotNil(t, signed.SignedUpAt)

	t.Run("repeat with same account is a no-op", func(t *testing.T) {
		again, err := env.Referrals.MarkSignedUp(ctx, ref.ID, "friend-1")
		require.NoError(t, err)
		assert.Equal(t, models.ReferralStatusSignedUp, again.Status)
	})

	t.Run("different account is rejected", func(t *testing.T) {
		_, err := env.Referrals.MarkSignedUp(ctx, ref.ID, "friend-2")
		assert.Equal(t, "INVALID_STATE", ErrorCode(err))
	})

	t.Run("unknown referral", func(t *testing.T) {
		_, err := env.Referrals.MarkSignedUp(ctx, "missing", "friend-1")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = env.Referrals.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestReferralService_CreateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.Referrals.Create(ctx, CreateReferralInput{})
	assert.Equal(t, "INVALID_INPUT", ErrorCode(err))

	ref, err := env.Referrals.Create(ctx, CreateReferralInput{ReferrerAccountID: "r"})
	require.NoError(t, err)
	assert.Equal(t, DefaultChannel, ref.Channel)

	_, err = env.Referrals.MarkSignedUp(ctx, ref.ID, "  ")
	assert.Equal(t, "INVALID_INPUT", ErrorCode(err))
}

func TestReferralService_RecordShareEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	event, err := env.Referrals.RecordShareEvent(ctx, ShareEventInput{
		ReferrerAccountID: "r1",
		Channel:           "WhatsApp",
		EventType:         models.ShareEventShare,
	})
	require.NoError(t, err)
	assert.Equal(t, "whatsapp", event.Channel)

	_, err = env.Referrals.RecordShareEvent(ctx, ShareEventInput{ReferrerAccountID: "r1", EventType: "like"})
	assert.Equal(t, "INVALID_INPUT", ErrorCode(err))

	_, err = env.Referrals.RecordShareEvent(ctx, ShareEventInput{EventType: models.ShareEventClick})
	assert.Equal(t, "INVALID_INPUT", ErrorCode(err))
}

func TestNormalizeChannel(t *testing.T) {
	assert.Equal(t, "facebook", NormalizeChannel("Facebook"))
	assert.Equal(t, "e-mail-campaign", NormalizeChannel("E-mail  Campaign"))
	assert.Equal(t, DefaultChannel, NormalizeChannel(""))
	assert.Equal(t, DefaultChannel, NormalizeChannel("   "))
}
