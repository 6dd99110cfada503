package worker

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"gorm.io/gorm"

	"instabids/config"
	"instabids/models"
	"instabids/utils"
)

// ReplyWorker polls the outreach inbox for contractor replies, attributes
// each reply to its outreach attempt by sender address, marks the attempt
// responded, and routes the body through the messaging pipeline so the
// homeowner sees it filtered under the contractor's alias.
type ReplyWorker struct {
	DB           *gorm.DB
	IMAP         config.IMAPConfig
	Orchestrator *utils.CampaignOrchestrator
	Pipeline     *utils.MessagePipeline
	Directory    *utils.ContractorDirectory
	Logger       *log.Logger
	Interval     time.Duration
}

func NewReplyWorker(db *gorm.DB, cfg config.IMAPConfig, orchestrator *utils.CampaignOrchestrator, pipeline *utils.MessagePipeline, logger *log.Logger, interval time.Duration) *ReplyWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ReplyWorker{
		DB:           db,
		IMAP:         cfg,
		Orchestrator: orchestrator,
		Pipeline:     pipeline,
		Directory:    utils.NewContractorDirectory(db, logger),
		Logger:       logger,
		Interval:     interval,
	}
}

func (rw *ReplyWorker) Start(ctx context.Context) {
	if rw.IMAP.Host == "" {
		rw.Logger.Println("Reply worker disabled: no IMAP host configured")
		return
	}
	rw.Logger.Println("Reply worker started")

	ticker := time.NewTicker(rw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rw.Logger.Println("Reply worker shutting down...")
			return
		case <-ticker.C:
			if err := rw.fetchReplies(); err != nil {
				rw.Logger.Printf("Error fetching replies: %v", err)
			}
		}
	}
}

func (rw *ReplyWorker) fetchReplies() error {
	c, err := imapclient.DialTLS(fmt.Sprintf("%s:%d", rw.IMAP.Host, rw.IMAP.Port), nil)
	if err != nil {
		return fmt.Errorf("imap dial: %w", err)
	}
	defer c.Logout()

	if err := c.Login(rw.IMAP.Username, rw.IMAP.Password); err != nil {
		return fmt.Errorf("imap login: %w", err)
	}

	mailbox := rw.IMAP.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := c.Select(mailbox, false); err != nil {
		return fmt.Errorf("imap select %s: %w", mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := c.Search(criteria)
	if err != nil {
		return fmt.Errorf("imap search: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{}
	messages := make(chan *imap.Message, len(ids))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}, messages)
	}()

	for msg := range messages {
		if err := rw.processInbound(msg, section); err != nil {
			rw.Logger.Printf("Error processing inbound message: %v", err)
		}
	}

	return <-done
}

func (rw *ReplyWorker) processInbound(msg *imap.Message, section *imap.BodySectionName) error {
	if msg.Envelope == nil || len(msg.Envelope.From) == 0 {
		return nil
	}
	from := strings.ToLower(msg.Envelope.From[0].Address())

	contractor, err := rw.Directory.FindByEmail(from)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil // not a contractor we contacted
		}
		return err
	}

	// The most recent in-flight email attempt for this contractor wins.
	var attempt models.OutreachAttempt
	err = rw.DB.Where("contractor_id = ? AND tier = ? AND channel = ? AND status IN ?",
		contractor.ID, contractor.Tier, models.ChannelEmail,
		[]string{models.AttemptSent, models.AttemptDelivered, models.AttemptOpened, models.AttemptClicked}).
		Order("sent_at DESC").
		First(&attempt).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return err
	}

	if attempt.ProviderMessageID != "" {
		if event, ok := utils.NormalizeCallback(attempt.ProviderMessageID, "responded", time.Now()); ok {
			if err := rw.Orchestrator.RecordCallback(event); err != nil {
				rw.Logger.Printf("Callback recording failed for attempt %d: %v", attempt.ID, err)
			}
		}
	}

	var campaign models.Campaign
	if err := rw.DB.First(&campaign, attempt.CampaignID).Error; err != nil {
		return err
	}

	body := rw.extractBody(msg, section)
	if body == "" {
		return nil
	}

	_, _, err = rw.Pipeline.Process(utils.MessageInput{
		Route: utils.RouteInput{
			BidCardID:  campaign.BidCardID,
			SenderType: models.SenderContractor,
			SenderID:   contractor.ID,
		},
		Content:     body,
		MessageType: models.MessageText,
		Metadata: map[string]string{
			"source":      "email_reply",
			"campaign_id": fmt.Sprint(campaign.ID),
		},
	})
	if err != nil {
		return fmt.Errorf("routing reply from %s: %w", from, err)
	}

	rw.Logger.Printf("Routed email reply from contractor %d (tier %d) into campaign %d",
		contractor.ID, contractor.Tier, campaign.ID)
	return nil
}

// extractBody pulls the first text part of the message.
func (rw *ReplyWorker) extractBody(msg *imap.Message, section *imap.BodySectionName) string {
	r := msg.GetBody(section)
	if r == nil {
		return ""
	}

	mr, err := mail.CreateReader(r)
	if err != nil {
		return ""
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ""
		}
		if _, ok := p.Header.(*mail.InlineHeader); ok {
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return ""
			}
			return strings.TrimSpace(string(b))
		}
	}
	return ""
}
