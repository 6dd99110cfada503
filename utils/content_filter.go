package utils

import (
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"gorm.io/gorm"

	"instabids/models"
)

// FilterResult is the outcome of one filtering pass.
type FilterResult struct {
	Original        string                `json:"original"`
	Filtered        string                `json:"filtered"`
	ContentFiltered bool                  `json:"content_filtered"`
	FilterReasons   []models.FilterReason `json:"filter_reasons"`
}

type compiledRule struct {
	rule models.ContentFilterRule
	re   *regexp.Regexp // nil for keyword rules
}

// ContentFilter rewrites contact information out of message content before
// it crosses between homeowner and contractor. It never fails: on any
// internal fault the original content passes through unfiltered and the
// fault is logged.
type ContentFilter struct {
	DB     *gorm.DB
	Logger *log.Logger
	TTL    time.Duration

	mu        sync.RWMutex
	rules     []compiledRule
	loadedAt  time.Time
}

func NewContentFilter(db *gorm.DB, logger *log.Logger, ttl time.Duration) *ContentFilter {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &ContentFilter{DB: db, Logger: logger, TTL: ttl}
}

// builtinRules cover at least phones and emails when the rule store is
// unreachable. Replacements are chosen so re-filtering is a no-op.
func builtinRules() []models.ContentFilterRule {
	return []models.ContentFilterRule{
		{
			RuleType:    "regex",
			Pattern:     `\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`,
			Replacement: "[PHONE REMOVED]",
			Severity:    "high",
			Category:    "phone",
		},
		{
			RuleType:    "regex",
			Pattern:     `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`,
			Replacement: "[EMAIL REMOVED]",
			Severity:    "high",
			Category:    "email",
		},
		{
			RuleType:    "regex",
			Pattern:     `(?i)call me at|text me at|reach me at|contact me at`,
			Replacement: "[CONTACT REQUEST REMOVED]",
			Severity:    "medium",
			Category:    "contact_request",
		},
	}
}

// Filter applies every active rule in insertion order. Each match appends a
// FilterReason and is replaced in place. Running the filter over already
// filtered text produces no further reasons.
func (cf *ContentFilter) Filter(content string) (result FilterResult) {
	result = FilterResult{
		Original:      content,
		Filtered:      content,
		FilterReasons: []models.FilterReason{},
	}

	// The filter must never take a message down with it.
	defer func() {
		if r := recover(); r != nil {
			if cf.Logger != nil {
				cf.Logger.Printf("content filter fault, passing content through: %v", r)
			}
			sentry.CaptureMessage("content filter fault")
			result = FilterResult{
				Original:        content,
				Filtered:        content,
				ContentFiltered: false,
				FilterReasons:   []models.FilterReason{},
			}
		}
	}()

	for _, cr := range cf.activeRules() {
		switch cr.rule.RuleType {
		case "regex":
			if cr.re == nil {
				continue
			}
			matches := cr.re.FindAllString(result.Filtered, -1)
			if len(matches) == 0 {
				continue
			}
			result.ContentFiltered = true
			for _, match := range matches {
				result.FilterReasons = append(result.FilterReasons, models.FilterReason{
					Category:    cr.rule.Category,
					Pattern:     cr.rule.Pattern,
					Severity:    cr.rule.Severity,
					MatchedText: match,
					Replacement: cr.rule.Replacement,
				})
			}
			result.Filtered = cr.re.ReplaceAllString(result.Filtered, cr.rule.Replacement)

		case "keyword":
			if !strings.Contains(strings.ToLower(result.Filtered), strings.ToLower(cr.rule.Pattern)) {
				continue
			}
			result.ContentFiltered = true
			result.FilterReasons = append(result.FilterReasons, models.FilterReason{
				Category:    cr.rule.Category,
				Pattern:     cr.rule.Pattern,
				Severity:    cr.rule.Severity,
				MatchedText: cr.rule.Pattern,
				Replacement: cr.rule.Replacement,
			})
			ci := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(cr.rule.Pattern))
			result.Filtered = ci.ReplaceAllString(result.Filtered, cr.rule.Replacement)
		}
	}

	return result
}

// Invalidate drops the cached rule set so the next Filter call reloads.
func (cf *ContentFilter) Invalidate() {
	cf.mu.Lock()
	cf.loadedAt = time.Time{}
	cf.mu.Unlock()
}

// activeRules returns the compiled rule set, refreshing from the store when
// the cache TTL has lapsed. Rules are read-mostly.
func (cf *ContentFilter) activeRules() []compiledRule {
	cf.mu.RLock()
	if !cf.loadedAt.IsZero() && time.Since(cf.loadedAt) < cf.TTL {
		rules := cf.rules
		cf.mu.RUnlock()
		return rules
	}
	cf.mu.RUnlock()

	cf.mu.Lock()
	defer cf.mu.Unlock()
	if !cf.loadedAt.IsZero() && time.Since(cf.loadedAt) < cf.TTL {
		return cf.rules
	}

	cf.rules = compileRules(cf.loadRules())
	cf.loadedAt = time.Now()
	return cf.rules
}

func (cf *ContentFilter) loadRules() []models.ContentFilterRule {
	if cf.DB == nil {
		return builtinRules()
	}

	var rules []models.ContentFilterRule
	err := cf.DB.Where("is_active = ?", true).Order("id ASC").Find(&rules).Error
	if err != nil {
		if cf.Logger != nil {
			cf.Logger.Printf("failed to load filter rules, using built-in set: %v", err)
		}
		return builtinRules()
	}
	if len(rules) == 0 {
		return builtinRules()
	}
	return rules
}

func compileRules(rules []models.ContentFilterRule) []compiledRule {
	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		cr := compiledRule{rule: rule}
		if rule.RuleType == "regex" {
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				// Skip unparsable rules rather than dropping the message
				continue
			}
			cr.re = re
		}
		compiled = append(compiled, cr)
	}
	return compiled
}
