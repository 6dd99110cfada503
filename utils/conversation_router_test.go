package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instabids/models"
)

func TestContractorAlias(t *testing.T) {
	assert.Equal(t, "Contractor A", ContractorAlias(0))
	assert.Equal(t, "Contractor B", ContractorAlias(1))
	assert.Equal(t, "Contractor Z", ContractorAlias(25))
	assert.Equal(t, "Contractor AA", ContractorAlias(26))
	assert.Equal(t, "Contractor AB", ContractorAlias(27))
	assert.Equal(t, "Contractor AZ", ContractorAlias(51))
	assert.Equal(t, "Contractor BA", ContractorAlias(52))
}

func TestResolveCreatesConversationPerContractor(t *testing.T) {
	db := testDB(t)
	card := models.BidCard{BidCardNumber: "BC-ROUTE01", HomeownerID: 10, ProjectType: "plumbing", ServiceType: "repair", UrgencyLevel: "week", Zip: "78701"}
	require.NoError(t, db.Create(&card).Error)

	router := NewConversationRouter(db, testLogger())

	// Contractor 7 writes first, contractor 9 second: aliases follow
	// insertion order.
	conv1, err := router.Resolve(RouteInput{
		BidCardID:  card.ID,
		SenderType: models.SenderContractor,
		SenderID:   7,
	})
	require.NoError(t, err)
	assert.Equal(t, "Contractor A", conv1.ContractorAlias)
	assert.Equal(t, card.HomeownerID, conv1.HomeownerID)

	conv2, err := router.Resolve(RouteInput{
		BidCardID:  card.ID,
		SenderType: models.SenderContractor,
		SenderID:   9,
	})
	require.NoError(t, err)
	assert.Equal(t, "Contractor B", conv2.ContractorAlias)
	assert.NotEqual(t, conv1.ID, conv2.ID)

	// A repeat send lands in the same conversation.
	again, err := router.Resolve(RouteInput{
		BidCardID:  card.ID,
		SenderType: models.SenderContractor,
		SenderID:   7,
	})
	require.NoError(t, err)
	assert.Equal(t, conv1.ID, again.ID)
}

func TestResolveHomeownerNeedsTarget(t *testing.T) {
	db := testDB(t)
	card := models.BidCard{BidCardNumber: "BC-ROUTE02", HomeownerID: 10, ProjectType: "plumbing", ServiceType: "repair", UrgencyLevel: "week", Zip: "78701"}
	require.NoError(t, db.Create(&card).Error)

	router := NewConversationRouter(db, testLogger())

	_, err := router.Resolve(RouteInput{
		BidCardID:  card.ID,
		SenderType: models.SenderHomeowner,
		SenderID:   10,
	})
	require.Error(t, err)
	appErr, ok := err.(*models.AppError)
	require.True(t, ok)
	assert.Equal(t, models.ErrAmbiguousRecipient, appErr.Kind)

	// Naming a contractor resolves it.
	conv, err := router.Resolve(RouteInput{
		BidCardID:          card.ID,
		SenderType:         models.SenderHomeowner,
		SenderID:           10,
		TargetContractorID: Pointer(uint(7)),
	})
	require.NoError(t, err)
	assert.Equal(t, uint(7), conv.ContractorID)
}

func TestResolveExplicitConversation(t *testing.T) {
	db := testDB(t)
	card := models.BidCard{BidCardNumber: "BC-ROUTE03", HomeownerID: 10, ProjectType: "plumbing", ServiceType: "repair", UrgencyLevel: "week", Zip: "78701"}
	other := models.BidCard{BidCardNumber: "BC-ROUTE04", HomeownerID: 11, ProjectType: "roofing", ServiceType: "repair", UrgencyLevel: "week", Zip: "78702"}
	require.NoError(t, db.Create(&card).Error)
	require.NoError(t, db.Create(&other).Error)

	router := NewConversationRouter(db, testLogger())

	conv, err := router.Resolve(RouteInput{
		BidCardID:  card.ID,
		SenderType: models.SenderContractor,
		SenderID:   7,
	})
	require.NoError(t, err)

	// The explicit id wins over everything else.
	resolved, err := router.Resolve(RouteInput{
		BidCardID:      card.ID,
		SenderType:     models.SenderHomeowner,
		SenderID:       10,
		ConversationID: &conv.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, conv.ID, resolved.ID)

	// A conversation from a different bid card is rejected.
	_, err = router.Resolve(RouteInput{
		BidCardID:      other.ID,
		SenderType:     models.SenderHomeowner,
		SenderID:       11,
		ConversationID: &conv.ID,
	})
	require.Error(t, err)
	appErr, ok := err.(*models.AppError)
	require.True(t, ok)
	assert.Equal(t, models.ErrInvalidConversation, appErr.Kind)

	// As is an id that does not exist.
	missing := uint(9999)
	_, err = router.Resolve(RouteInput{
		BidCardID:      card.ID,
		SenderType:     models.SenderHomeowner,
		SenderID:       10,
		ConversationID: &missing,
	})
	require.Error(t, err)
	appErr, ok = err.(*models.AppError)
	require.True(t, ok)
	assert.Equal(t, models.ErrInvalidConversation, appErr.Kind)
}

func TestResolveUnknownSenderType(t *testing.T) {
	db := testDB(t)
	card := models.BidCard{BidCardNumber: "BC-ROUTE05", HomeownerID: 10, ProjectType: "plumbing", ServiceType: "repair", UrgencyLevel: "week", Zip: "78701"}
	require.NoError(t, db.Create(&card).Error)

	router := NewConversationRouter(db, testLogger())

	_, err := router.Resolve(RouteInput{
		BidCardID:  card.ID,
		SenderType: "robot",
		SenderID:   1,
	})
	require.Error(t, err)
	appErr, ok := err.(*models.AppError)
	require.True(t, ok)
	assert.Equal(t, models.ErrInvalidInput, appErr.Kind)
}
