package utils

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"gorm.io/gorm"

	"instabids/models"
)

// RouteInput identifies the parties of a message to be routed.
type RouteInput struct {
	BidCardID          uint
	SenderType         string
	SenderID           uint
	ConversationID     *uint
	TargetContractorID *uint
}

// ConversationRouter resolves a message to exactly one conversation,
// creating it when absent and assigning the homeowner-facing contractor
// alias in insertion order per bid card.
type ConversationRouter struct {
	DB     *gorm.DB
	Logger *log.Logger

	mu    sync.Mutex
	locks map[uint]*sync.Mutex // per-bid-card creation locks
}

func NewConversationRouter(db *gorm.DB, logger *log.Logger) *ConversationRouter {
	return &ConversationRouter{
		DB:     db,
		Logger: logger,
		locks:  make(map[uint]*sync.Mutex),
	}
}

// Resolve applies the resolution order:
//  1. explicit conversation id, verified against the bid card
//  2. homeowner with a target contractor
//  3. contractor sender
//  4. homeowner without a target -> AmbiguousRecipient
func (cr *ConversationRouter) Resolve(in RouteInput) (*models.Conversation, error) {
	if in.BidCardID == 0 || in.SenderID == 0 {
		return nil, models.NewAppError(models.ErrInvalidInput, "bid_card_id and sender_id are required", false)
	}

	if in.ConversationID != nil {
		var conv models.Conversation
		if err := cr.DB.First(&conv, *in.ConversationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, models.NewAppError(models.ErrInvalidConversation, "conversation not found", false)
			}
			return nil, models.NewAppError(models.ErrStoreUnavailable, err.Error(), true)
		}
		if conv.BidCardID != in.BidCardID {
			return nil, models.NewAppError(models.ErrInvalidConversation,
				"conversation does not belong to this bid card", false)
		}
		return &conv, nil
	}

	switch in.SenderType {
	case models.SenderHomeowner:
		if in.TargetContractorID == nil {
			return nil, models.NewAppError(models.ErrAmbiguousRecipient,
				"homeowner messages must name a target contractor or conversation", false)
		}
		return cr.findOrCreate(in.BidCardID, in.SenderID, *in.TargetContractorID)

	case models.SenderContractor:
		var card models.BidCard
		if err := cr.DB.First(&card, in.BidCardID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, models.NewAppError(models.ErrNotFound, "bid card not found", false)
			}
			return nil, models.NewAppError(models.ErrStoreUnavailable, err.Error(), true)
		}
		return cr.findOrCreate(in.BidCardID, card.HomeownerID, in.SenderID)

	default:
		return nil, models.NewAppError(models.ErrInvalidInput,
			fmt.Sprintf("unknown sender type %q", in.SenderType), false)
	}
}

// findOrCreate returns the unique (bid_card, homeowner, contractor)
// conversation, creating it under the per-bid-card lock so alias
// assignment stays deterministic under concurrent sends.
func (cr *ConversationRouter) findOrCreate(bidCardID, homeownerID, contractorID uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := cr.DB.Where("bid_card_id = ? AND contractor_id = ?", bidCardID, contractorID).
		First(&conv).Error
	if err == nil {
		return &conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewAppError(models.ErrStoreUnavailable, err.Error(), true)
	}

	lock := cr.bidCardLock(bidCardID)
	lock.Lock()
	defer lock.Unlock()

	// Re-check under the lock; another request may have created it.
	err = cr.DB.Where("bid_card_id = ? AND contractor_id = ?", bidCardID, contractorID).
		First(&conv).Error
	if err == nil {
		return &conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewAppError(models.ErrStoreUnavailable, err.Error(), true)
	}

	var count int64
	if err := cr.DB.Model(&models.Conversation{}).
		Where("bid_card_id = ?", bidCardID).Count(&count).Error; err != nil {
		return nil, models.NewAppError(models.ErrStoreUnavailable, err.Error(), true)
	}

	conv = models.Conversation{
		BidCardID:       bidCardID,
		HomeownerID:     homeownerID,
		ContractorID:    contractorID,
		ContractorAlias: ContractorAlias(int(count)),
		Status:          models.ConversationActive,
	}
	if err := cr.DB.Create(&conv).Error; err != nil {
		// The unique index on (bid_card_id, contractor_id) backs up the
		// lock across processes; a conflict means someone else won.
		var existing models.Conversation
		if ferr := cr.DB.Where("bid_card_id = ? AND contractor_id = ?", bidCardID, contractorID).
			First(&existing).Error; ferr == nil {
			return &existing, nil
		}
		return nil, models.NewAppError(models.ErrStoreUnavailable, err.Error(), true)
	}

	if cr.Logger != nil {
		cr.Logger.Printf("Created conversation %d on bid card %d (%s)", conv.ID, bidCardID, conv.ContractorAlias)
	}
	return &conv, nil
}

func (cr *ConversationRouter) bidCardLock(bidCardID uint) *sync.Mutex {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	lock, ok := cr.locks[bidCardID]
	if !ok {
		lock = &sync.Mutex{}
		cr.locks[bidCardID] = lock
	}
	return lock
}

// ContractorAlias maps a zero-based insertion index to the stable
// homeowner-facing pseudonym: "Contractor A" .. "Contractor Z",
// "Contractor AA", "Contractor AB", ...
func ContractorAlias(index int) string {
	n := index + 1 // bijective base 26
	letters := ""
	for n > 0 {
		n--
		letters = string(rune('A'+n%26)) + letters
		n /= 26
	}
	return "Contractor " + letters
}
