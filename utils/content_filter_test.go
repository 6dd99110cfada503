package utils

import (
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"instabids/models"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	return db
}

func testLogger() *log.Logger {
	return log.New(os.Stdout, "TEST: ", log.LstdFlags)
}

func TestFilterRemovesContactInfo(t *testing.T) {
	cf := NewContentFilter(nil, testLogger(), time.Minute)

	result := cf.Filter("Call me at 555-123-4567 or email me at john@example.com tomorrow")

	assert.True(t, result.ContentFiltered)
	assert.Equal(t, "[CONTACT REQUEST REMOVED] [PHONE REMOVED] or email me at [EMAIL REMOVED] tomorrow", result.Filtered)

	categories := make([]string, 0, len(result.FilterReasons))
	for _, reason := range result.FilterReasons {
		categories = append(categories, reason.Category)
	}
	assert.ElementsMatch(t, []string{"phone", "email", "contact_request"}, categories)
}

func TestFilterPhoneFormats(t *testing.T) {
	cf := NewContentFilter(nil, testLogger(), time.Minute)

	for _, content := range []string{
		"my number is 555-123-4567",
		"my number is 555.123.4567",
		"my number is 555 123 4567",
		"my number is 5551234567",
	} {
		result := cf.Filter(content)
		assert.True(t, result.ContentFiltered, content)
		assert.Equal(t, "my number is [PHONE REMOVED]", result.Filtered, content)
	}
}

func TestFilterIdempotent(t *testing.T) {
	cf := NewContentFilter(nil, testLogger(), time.Minute)

	first := cf.Filter("text me at 555-123-4567, email: a@b.com")
	second := cf.Filter(first.Filtered)

	assert.False(t, second.ContentFiltered)
	assert.Empty(t, second.FilterReasons)
	assert.Equal(t, first.Filtered, second.Filtered)
}

func TestFilterCleanContentPassesThrough(t *testing.T) {
	cf := NewContentFilter(nil, testLogger(), time.Minute)

	result := cf.Filter("The quote covers materials and labor for the deck repair.")

	assert.False(t, result.ContentFiltered)
	assert.Equal(t, result.Original, result.Filtered)
	assert.Empty(t, result.FilterReasons)
}

func TestFilterKeywordRules(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Create(&models.ContentFilterRule{
		RuleType:    "keyword",
		Pattern:     "whatsapp",
		Replacement: "[REMOVED]",
		Severity:    "medium",
		Category:    "keyword",
		IsActive:    Pointer(true),
	}).Error)

	cf := NewContentFilter(db, testLogger(), time.Minute)

	result := cf.Filter("Message me on WhatsApp instead")
	assert.True(t, result.ContentFiltered)
	assert.Equal(t, "Message me on [REMOVED] instead", result.Filtered)
	require.Len(t, result.FilterReasons, 1)
	assert.Equal(t, "keyword", result.FilterReasons[0].Category)
}

func TestFilterRulesAppliedInInsertionOrder(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Create(&models.ContentFilterRule{
		RuleType:    "regex",
		Pattern:     `\bfoo bar\b`,
		Replacement: "[FIRST]",
		Category:    "keyword",
		IsActive:    Pointer(true),
	}).Error)
	require.NoError(t, db.Create(&models.ContentFilterRule{
		RuleType:    "regex",
		Pattern:     `\bbar\b`,
		Replacement: "[SECOND]",
		Category:    "keyword",
		IsActive:    Pointer(true),
	}).Error)

	cf := NewContentFilter(db, testLogger(), time.Minute)

	// The earlier rule consumes the overlapping text before the later one
	// runs.
	result := cf.Filter("foo bar")
	assert.Equal(t, "[FIRST]", result.Filtered)
}

func TestFilterSkipsInactiveAndBadRules(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Create(&models.ContentFilterRule{
		RuleType:    "regex",
		Pattern:     `\bsecret\b`,
		Replacement: "[X]",
		Category:    "keyword",
		IsActive:    Pointer(false),
	}).Error)
	require.NoError(t, db.Create(&models.ContentFilterRule{
		RuleType:    "regex",
		Pattern:     `([`, // does not compile
		Replacement: "[Y]",
		Category:    "keyword",
		IsActive:    Pointer(true),
	}).Error)
	require.NoError(t, db.Create(&models.ContentFilterRule{
		RuleType:    "regex",
		Pattern:     `\bvisible\b`,
		Replacement: "[Z]",
		Category:    "keyword",
		IsActive:    Pointer(true),
	}).Error)

	cf := NewContentFilter(db, testLogger(), time.Minute)

	result := cf.Filter("secret and visible")
	assert.Equal(t, "secret and [Z]", result.Filtered)
}

func TestFilterFallsBackToBuiltinsOnEmptyStore(t *testing.T) {
	db := testDB(t)
	cf := NewContentFilter(db, testLogger(), time.Minute)

	result := cf.Filter("reach me at 555-123-4567")
	assert.Equal(t, "[CONTACT REQUEST REMOVED] [PHONE REMOVED]", result.Filtered)
}

func TestFilterInvalidateReloadsRules(t *testing.T) {
	db := testDB(t)
	cf := NewContentFilter(db, testLogger(), time.Hour)

	// First pass caches the built-in fallback set.
	assert.Equal(t, "[PHONE REMOVED]", cf.Filter("555-123-4567").Filtered)

	require.NoError(t, db.Create(&models.ContentFilterRule{
		RuleType:    "keyword",
		Pattern:     "venmo",
		Replacement: "[PAYMENT REMOVED]",
		Category:    "keyword",
		IsActive:    Pointer(true),
	}).Error)

	// Still cached: the new rule is not visible yet.
	assert.False(t, cf.Filter("pay me on venmo").ContentFiltered)

	cf.Invalidate()
	assert.True(t, cf.Filter("pay me on venmo").ContentFiltered)
}
