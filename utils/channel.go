package utils

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/badoux/checkmail"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"instabids/config"
	"instabids/models"
)

// OutreachPayload is what a channel delivers for one attempt.
type OutreachPayload struct {
	Attempt    models.OutreachAttempt
	Contractor models.ContractorProfile
	BidCard    models.BidCard
}

// SendResult maps onto the attempt status.
type SendResult struct {
	Status            string
	ProviderMessageID string
	Err               error
}

// OutreachChannel is the transport capability the orchestrator consumes.
type OutreachChannel interface {
	Name() string
	Send(payload OutreachPayload) SendResult
	RatePerMinute() int
	Timeout() time.Duration
}

// CallbackEvent is a normalized provider callback.
type CallbackEvent struct {
	ProviderMessageID string    `json:"provider_message_id"`
	NewStatus         string    `json:"new_status"`
	Timestamp         time.Time `json:"timestamp"`
}

// NormalizeCallback maps a raw provider event payload onto an attempt
// status update. Unknown events are dropped.
func NormalizeCallback(providerMessageID, event string, at time.Time) (CallbackEvent, bool) {
	status, ok := map[string]string{
		"sent":      models.AttemptSent,
		"delivered": models.AttemptDelivered,
		"open":      models.AttemptOpened,
		"opened":    models.AttemptOpened,
		"click":     models.AttemptClicked,
		"clicked":   models.AttemptClicked,
		"reply":     models.AttemptResponded,
		"responded": models.AttemptResponded,
		"bounce":    models.AttemptBounced,
		"bounced":   models.AttemptBounced,
		"failed":    models.AttemptFailed,
	}[strings.ToLower(event)]
	if !ok || providerMessageID == "" {
		return CallbackEvent{}, false
	}
	if at.IsZero() {
		at = time.Now()
	}
	return CallbackEvent{ProviderMessageID: providerMessageID, NewStatus: status, Timestamp: at}, true
}

// Embedded outreach email template
var outreachTemplate = template.Must(template.New("outreach").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>New project invitation</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { color: #2c3e50; border-bottom: 1px solid #eee; padding-bottom: 10px; }
        .detail { margin: 6px 0; }
        .cta { font-size: 18px; font-weight: bold; color: #3498db; margin: 20px 0; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="header">
        <h2>You're invited to bid on a {{.ProjectType}} project</h2>
    </div>

    <div class="detail">Location: {{.City}}, {{.State}} {{.Zip}}</div>
    <div class="detail">Service: {{.ServiceType}}</div>
    <div class="detail">Budget: ${{printf "%.0f" .BudgetMin}} - ${{printf "%.0f" .BudgetMax}}</div>

    <div class="cta">Reply to this email to submit your bid. Reference: {{.BidCardNumber}}</div>

    <div class="footer">
        <p>All communication goes through InstaBids so both sides stay protected.</p>
        <p>© {{.Year}} InstaBids. All rights reserved.</p>
    </div>
</body>
</html>`))

// EmailChannel delivers outreach over SMTP.
type EmailChannel struct {
	SMTP config.SMTPConfig
	Cfg  config.ChannelConfig

	// dial is swappable for tests.
	dial func(m *gomail.Message) error
}

func NewEmailChannel(smtp config.SMTPConfig, cfg config.ChannelConfig) *EmailChannel {
	ec := &EmailChannel{SMTP: smtp, Cfg: cfg}
	ec.dial = func(m *gomail.Message) error {
		d := gomail.NewDialer(smtp.Host, smtp.Port, smtp.Username, smtp.Password)
		return d.DialAndSend(m)
	}
	return ec
}

func (ec *EmailChannel) Name() string { return models.ChannelEmail }
func (ec *EmailChannel) RatePerMinute() int { return ec.Cfg.RatePerMinute }
func (ec *EmailChannel) Timeout() time.Duration { return ec.Cfg.AttemptTimeout }

func (ec *EmailChannel) Send(payload OutreachPayload) SendResult {
	to := payload.Contractor.Email
	if to == "" {
		return SendResult{Status: models.AttemptFailed, Err: fmt.Errorf("contractor has no email address")}
	}
	if err := checkmail.ValidateFormat(to); err != nil {
		return SendResult{Status: models.AttemptFailed, Err: fmt.Errorf("invalid contractor email %q: %w", to, err)}
	}

	var body bytes.Buffer
	err := outreachTemplate.Execute(&body, struct {
		models.BidCard
		Year int
	}{payload.BidCard, time.Now().Year()})
	if err != nil {
		return SendResult{Status: models.AttemptFailed, Err: err}
	}

	messageID := uuid.NewString()

	m := gomail.NewMessage()
	m.SetAddressHeader("From", ec.SMTP.From, ec.SMTP.FromName)
	m.SetHeader("To", to)
	m.SetHeader("Subject", fmt.Sprintf("Project invitation: %s in %s (%s)",
		payload.BidCard.ProjectType, payload.BidCard.City, payload.BidCard.BidCardNumber))
	m.SetHeader("X-Instabids-Message-ID", messageID)
	m.SetBody("text/html", body.String())

	if err := ec.dial(m); err != nil {
		logrus.WithFields(logrus.Fields{
			"channel":     models.ChannelEmail,
			"attempt_id":  payload.Attempt.ID,
			"campaign_id": payload.Attempt.CampaignID,
		}).WithError(err).Warn("email dispatch failed")
		return SendResult{Status: models.AttemptFailed, Err: err}
	}

	return SendResult{Status: models.AttemptSent, ProviderMessageID: messageID}
}

// WebsiteFormChannel posts the invitation into a contractor's website
// contact form.
type WebsiteFormChannel struct {
	Cfg    config.ChannelConfig
	Client *http.Client
}

func NewWebsiteFormChannel(cfg config.ChannelConfig) *WebsiteFormChannel {
	timeout := cfg.AttemptTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebsiteFormChannel{
		Cfg:    cfg,
		Client: &http.Client{Timeout: timeout},
	}
}

func (wc *WebsiteFormChannel) Name() string { return models.ChannelWebsiteForm }
func (wc *WebsiteFormChannel) RatePerMinute() int { return wc.Cfg.RatePerMinute }
func (wc *WebsiteFormChannel) Timeout() time.Duration { return wc.Cfg.AttemptTimeout }

func (wc *WebsiteFormChannel) Send(payload OutreachPayload) SendResult {
	formURL := payload.Contractor.FormURL
	if formURL == "" {
		return SendResult{Status: models.AttemptFailed, Err: fmt.Errorf("contractor has no form URL")}
	}

	messageID := uuid.NewString()
	form := url.Values{
		"name":    {"InstaBids Outreach"},
		"message": {fmt.Sprintf("A homeowner near %s, %s is requesting bids for a %s project. Reference %s at instabids.com to respond.", payload.BidCard.City, payload.BidCard.State, payload.BidCard.ProjectType, payload.BidCard.BidCardNumber)},
		"ref":     {messageID},
	}

	resp, err := wc.Client.PostForm(formURL, form)
	if err != nil {
		return SendResult{Status: models.AttemptFailed, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return SendResult{Status: models.AttemptFailed,
			Err: fmt.Errorf("form submission returned %d", resp.StatusCode)}
	}

	logrus.WithFields(logrus.Fields{
		"channel":    models.ChannelWebsiteForm,
		"attempt_id": payload.Attempt.ID,
		"status":     resp.StatusCode,
	}).Info("form submission accepted")

	return SendResult{Status: models.AttemptSent, ProviderMessageID: messageID}
}

// SMSChannel forwards outreach to an SMS gateway webhook. It is reserved
// for callbacks and channel widening; campaigns start on email and forms.
type SMSChannel struct {
	GatewayURL string
	Cfg        config.ChannelConfig
	Client     *http.Client
}

func NewSMSChannel(gatewayURL string, cfg config.ChannelConfig) *SMSChannel {
	return &SMSChannel{
		GatewayURL: gatewayURL,
		Cfg:        cfg,
		Client:     &http.Client{Timeout: cfg.AttemptTimeout},
	}
}

func (sc *SMSChannel) Name() string { return models.ChannelSMS }
func (sc *SMSChannel) RatePerMinute() int { return sc.Cfg.RatePerMinute }
func (sc *SMSChannel) Timeout() time.Duration { return sc.Cfg.AttemptTimeout }

func (sc *SMSChannel) Send(payload OutreachPayload) SendResult {
	if sc.GatewayURL == "" {
		return SendResult{Status: models.AttemptFailed, Err: fmt.Errorf("sms gateway not configured")}
	}
	if payload.Contractor.Phone == "" {
		return SendResult{Status: models.AttemptFailed, Err: fmt.Errorf("contractor has no phone number")}
	}

	messageID := uuid.NewString()
	resp, err := sc.Client.PostForm(sc.GatewayURL, url.Values{
		"to":   {payload.Contractor.Phone},
		"body": {fmt.Sprintf("InstaBids: bids requested for a %s project near %s. Ref %s", payload.BidCard.ProjectType, payload.BidCard.Zip, payload.BidCard.BidCardNumber)},
		"ref":  {messageID},
	})
	if err != nil {
		return SendResult{Status: models.AttemptFailed, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return SendResult{Status: models.AttemptFailed, Err: fmt.Errorf("sms gateway returned %d", resp.StatusCode)}
	}
	return SendResult{Status: models.AttemptSent, ProviderMessageID: messageID}
}
