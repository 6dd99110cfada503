package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instabids/models"
)

func TestAppendSubmittedBid(t *testing.T) {
	db := testDB(t)
	card := models.BidCard{
		BidCardNumber:         "BC-STORE01",
		HomeownerID:           10,
		ProjectType:           "plumbing",
		ServiceType:           "repair",
		UrgencyLevel:          "week",
		Zip:                   "78701",
		ContractorCountNeeded: 2,
		Status:                models.BidCardCollectingBids,
	}
	require.NoError(t, db.Create(&card).Error)

	updated, err := AppendSubmittedBid(db, card.ID, models.SubmittedBid{
		ContractorID: 7,
		Amount:       1200,
		SubmittedAt:  time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.BidDocument.BidsReceived())
	assert.Equal(t, 1, updated.DocumentVersion)
	assert.Equal(t, models.BidCardCollectingBids, updated.Status)

	// Second distinct bid reaches the target and flips the status.
	updated, err = AppendSubmittedBid(db, card.ID, models.SubmittedBid{
		ContractorID: 9,
		Amount:       1350,
		SubmittedAt:  time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.BidDocument.BidsReceived())
	assert.Equal(t, 2, updated.DocumentVersion)
	assert.Equal(t, models.BidCardBidsComplete, updated.Status)
}

func TestAppendSubmittedBidRejectsDuplicateContractor(t *testing.T) {
	db := testDB(t)
	card := models.BidCard{
		BidCardNumber:         "BC-STORE02",
		HomeownerID:           10,
		ProjectType:           "plumbing",
		ServiceType:           "repair",
		UrgencyLevel:          "week",
		Zip:                   "78701",
		ContractorCountNeeded: 4,
	}
	require.NoError(t, db.Create(&card).Error)

	_, err := AppendSubmittedBid(db, card.ID, models.SubmittedBid{ContractorID: 7, Amount: 1000, SubmittedAt: time.Now()})
	require.NoError(t, err)

	_, err = AppendSubmittedBid(db, card.ID, models.SubmittedBid{ContractorID: 7, Amount: 900, SubmittedAt: time.Now()})
	require.Error(t, err)
	appErr, ok := err.(*models.AppError)
	require.True(t, ok)
	assert.Equal(t, models.ErrInvalidInput, appErr.Kind)

	var fresh models.BidCard
	require.NoError(t, db.First(&fresh, card.ID).Error)
	assert.Equal(t, 1, fresh.BidDocument.BidsReceived())
	assert.Equal(t, 1, fresh.DocumentVersion)
}

func TestAppendSubmittedBidUnknownCard(t *testing.T) {
	db := testDB(t)

	_, err := AppendSubmittedBid(db, 12345, models.SubmittedBid{ContractorID: 7, Amount: 100, SubmittedAt: time.Now()})
	require.Error(t, err)
	appErr, ok := err.(*models.AppError)
	require.True(t, ok)
	assert.Equal(t, models.ErrNotFound, appErr.Kind)
}

func TestWithStoreRetry(t *testing.T) {
	calls := 0
	err := WithStoreRetry(testLogger(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithStoreRetryExhaustion(t *testing.T) {
	calls := 0
	err := WithStoreRetry(testLogger(), func() error {
		calls++
		return errors.New("down")
	})
	require.Error(t, err)
	assert.Equal(t, 5, calls)

	appErr, ok := err.(*models.AppError)
	require.True(t, ok)
	assert.Equal(t, models.ErrStoreUnavailable, appErr.Kind)
	assert.True(t, appErr.Retryable)
}

func TestAppendSubmittedBidUpdatesCampaignCounter(t *testing.T) {
	db := testDB(t)
	card := models.BidCard{
		BidCardNumber:         "BC-STORE03",
		HomeownerID:           10,
		ProjectType:           "plumbing",
		ServiceType:           "repair",
		UrgencyLevel:          "week",
		Zip:                   "78701",
		ContractorCountNeeded: 4,
		Status:                models.BidCardCollectingBids,
	}
	require.NoError(t, db.Create(&card).Error)

	running := models.Campaign{BidCardID: card.ID, Status: models.CampaignActive, BidsNeeded: 4, TimelineHours: 24, DeadlineAt: time.Now().Add(24 * time.Hour)}
	finished := models.Campaign{BidCardID: card.ID, Status: models.CampaignCompleted, BidsNeeded: 4, TimelineHours: 24, DeadlineAt: time.Now().Add(24 * time.Hour)}
	require.NoError(t, db.Create(&running).Error)
	require.NoError(t, db.Create(&finished).Error)

	_, err := AppendSubmittedBid(db, card.ID, models.SubmittedBid{ContractorID: 3, Amount: 800, SubmittedAt: time.Now()})
	require.NoError(t, err)
	_, err = AppendSubmittedBid(db, card.ID, models.SubmittedBid{ContractorID: 4, Amount: 950, SubmittedAt: time.Now()})
	require.NoError(t, err)

	var fresh models.Campaign
	require.NoError(t, db.First(&fresh, running.ID).Error)
	assert.Equal(t, 2, fresh.BidsReceived)

	// Terminal campaigns keep their final tally.
	fresh = models.Campaign{}
	require.NoError(t, db.First(&fresh, finished.ID).Error)
	assert.Equal(t, 0, fresh.BidsReceived)

	// The document itself survives the write and reads back intact.
	var freshCard models.BidCard
	require.NoError(t, db.First(&freshCard, card.ID).Error)
	assert.Equal(t, 2, freshCard.BidDocument.BidsReceived())
	assert.Equal(t, 2, freshCard.DocumentVersion)
}
