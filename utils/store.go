package utils

import (
	"encoding/json"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"gorm.io/gorm"

	"instabids/models"
)

// WithStoreRetry runs a store operation with bounded exponential backoff:
// 5 attempts, 0.5s -> 8s. Exhaustion surfaces as StoreUnavailable.
func WithStoreRetry(logger *log.Logger, op func() error) error {
	delay := 500 * time.Millisecond
	var err error

	for attempt := 1; attempt <= 5; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt < 5 {
			if logger != nil {
				logger.Printf("store operation failed (attempt %d/5), retrying in %s: %v", attempt, delay, err)
			}
			time.Sleep(delay)
			delay *= 2
		}
	}

	sentry.CaptureException(err)
	return models.NewAppError(models.ErrStoreUnavailable, err.Error(), true)
}

// AppendSubmittedBid adds a contractor's bid to the bid card document under
// optimistic concurrency: read, append, conditional write on the document
// version, retry up to 3 times. Returns the updated card.
func AppendSubmittedBid(db *gorm.DB, bidCardID uint, bid models.SubmittedBid) (*models.BidCard, error) {
	for attempt := 0; attempt < 3; attempt++ {
		var card models.BidCard
		if err := db.First(&card, bidCardID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, models.NewAppError(models.ErrNotFound, "bid card not found", false)
			}
			return nil, models.NewAppError(models.ErrStoreUnavailable, err.Error(), true)
		}

		if card.BidDocument.HasBidFrom(bid.ContractorID) {
			return nil, models.NewAppError(models.ErrInvalidInput,
				"contractor already submitted a bid on this card", false)
		}

		doc := card.BidDocument
		doc.SubmittedBids = append(doc.SubmittedBids, bid)

		// A map update bypasses the field serializer, so the document is
		// marshaled by hand.
		docJSON, err := json.Marshal(doc)
		if err != nil {
			return nil, models.NewAppError(models.ErrInvalidInput, err.Error(), false)
		}

		updates := map[string]interface{}{
			"bid_document":     string(docJSON),
			"document_version": card.DocumentVersion + 1,
		}
		if doc.BidsReceived() >= card.ContractorCountNeeded {
			updates["status"] = models.BidCardBidsComplete
		}

		res := db.Model(&models.BidCard{}).
			Where("id = ? AND document_version = ?", card.ID, card.DocumentVersion).
			Updates(updates)
		if res.Error != nil {
			return nil, models.NewAppError(models.ErrStoreUnavailable, res.Error.Error(), true)
		}
		if res.RowsAffected == 1 {
			card.BidDocument = doc
			card.DocumentVersion++
			if s, ok := updates["status"]; ok {
				card.Status = s.(string)
			}
			// Keep the denormalized counter on running campaigns current.
			db.Model(&models.Campaign{}).
				Where("bid_card_id = ? AND status IN ?", card.ID,
					[]string{models.CampaignScheduled, models.CampaignActive, models.CampaignEscalated}).
				Update("bids_received", doc.BidsReceived())
			return &card, nil
		}
		// Lost the version race; reload and try again.
	}

	return nil, models.NewAppError(models.ErrConflictRetryExceeded,
		"bid document update conflicted repeatedly", false)
}
