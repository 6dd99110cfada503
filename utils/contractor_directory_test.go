package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instabids/models"
)

func TestAvailabilityCountsByZip(t *testing.T) {
	db := testDB(t)
	seedContractors(t, db)

	// One unavailable contractor and one outside the area stay invisible.
	require.NoError(t, db.Create(&models.Contractor{Tier: models.TierInternal, ContractorProfile: models.ContractorProfile{
		CompanyName: "Benched", Email: "benched@example.com", ServiceZips: "78701", IsAvailable: Pointer(false),
	}}).Error)
	require.NoError(t, db.Create(&models.Contractor{Tier: models.TierInternal, ContractorProfile: models.ContractorProfile{
		CompanyName: "Elsewhere", Email: "elsewhere@example.com", ServiceZips: "10001", IsAvailable: Pointer(true),
	}}).Error)

	directory := NewContractorDirectory(db, testLogger())

	t1, t2, t3, err := directory.Availability("78701")
	require.NoError(t, err)
	assert.Equal(t, 3, t1)
	assert.Equal(t, 6, t2)
	assert.Equal(t, 10, t3)
}

func TestSelectOrdersByEnrichmentAndSkipsExcluded(t *testing.T) {
	db := testDB(t)

	seedTierContractor(t, db, models.TierProspect, "Low", "low@example.com", 0.2)
	high := seedTierContractor(t, db, models.TierProspect, "High", "high@example.com", 0.9)
	seedTierContractor(t, db, models.TierProspect, "Mid", "mid@example.com", 0.5)

	directory := NewContractorDirectory(db, testLogger())

	picked, err := directory.Select(models.TierProspect, 2, "78701", nil)
	require.NoError(t, err)
	require.Len(t, picked, 2)
	assert.Equal(t, "High", picked[0].CompanyName)
	assert.Equal(t, "Mid", picked[1].CompanyName)

	picked, err = directory.Select(models.TierProspect, 2, "78701", map[uint]bool{high.ID: true})
	require.NoError(t, err)
	require.Len(t, picked, 2)
	assert.Equal(t, "Mid", picked[0].CompanyName)
	assert.Equal(t, "Low", picked[1].CompanyName)
}

func TestFindByEmailSearchesTierOrder(t *testing.T) {
	db := testDB(t)
	seedContractors(t, db)

	directory := NewContractorDirectory(db, testLogger())

	found, err := directory.FindByEmail("internal1@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.TierInternal, found.Tier)

	found, err = directory.FindByEmail("lead3@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.TierCold, found.Tier)

	_, err = directory.FindByEmail("nobody@example.com")
	require.Error(t, err)
}

func TestPromotionRaisesTierInPlace(t *testing.T) {
	db := testDB(t)

	lead := seedTierContractor(t, db, models.TierCold, "Rising Star", "star@example.com", 0)

	directory := NewContractorDirectory(db, testLogger())

	prospect, err := directory.PromoteLead(lead.ID)
	require.NoError(t, err)
	assert.Equal(t, lead.ID, prospect.ID)
	assert.Equal(t, models.TierProspect, prospect.Tier)
	assert.Equal(t, "Rising Star", prospect.CompanyName)
	assert.NotNil(t, prospect.PromotedAt)

	contractor, err := directory.PromoteProspect(prospect.ID)
	require.NoError(t, err)
	assert.Equal(t, lead.ID, contractor.ID)
	assert.Equal(t, models.TierInternal, contractor.Tier)
	assert.InDelta(t, 0.9, contractor.ResponseRate, 1e-9)

	// One row, upgraded twice; never a second identity.
	var count int64
	require.NoError(t, db.Model(&models.Contractor{}).Where("email = ?", "star@example.com").Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestPromotionRejectsWrongTier(t *testing.T) {
	db := testDB(t)

	internal := seedTierContractor(t, db, models.TierInternal, "Already In", "in@example.com", 0.9)

	directory := NewContractorDirectory(db, testLogger())

	_, err := directory.PromoteLead(internal.ID)
	require.Error(t, err)
	appErr, ok := err.(*models.AppError)
	require.True(t, ok)
	assert.Equal(t, models.ErrInvalidInput, appErr.Kind)
}

func TestPromotionKeepsConversationAttached(t *testing.T) {
	db := testDB(t)

	prospect := seedTierContractor(t, db, models.TierProspect, "Keeps Threads", "threads@example.com", 0.5)

	card := seedCard(t, db, "BC-DIR01")
	conv := models.Conversation{
		BidCardID:       card.ID,
		HomeownerID:     card.HomeownerID,
		ContractorID:    prospect.ID,
		ContractorAlias: ContractorAlias(0),
		Status:          models.ConversationActive,
	}
	require.NoError(t, db.Create(&conv).Error)

	directory := NewContractorDirectory(db, testLogger())
	promoted, err := directory.PromoteProspect(prospect.ID)
	require.NoError(t, err)

	var fresh models.Conversation
	require.NoError(t, db.First(&fresh, conv.ID).Error)
	assert.Equal(t, promoted.ID, fresh.ContractorID)
}
