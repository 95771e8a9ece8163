package errors

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorBuilderBasic(t *testing.T) {
	base := NewStd("connection refused")
	err := New(base).
		Component("photocache").
		Category(CategoryNetwork).
		Context("reference", "ChIJ_abc").
		Build()

	assert.Equal(t, "connection refused", err.Error())
	assert.Equal(t, "photocache", err.GetComponent())
	assert.Equal(t, string(CategoryNetwork), err.GetCategory())
	assert.Equal(t, "ChIJ_abc", err.GetContext()["reference"])
	assert.WithinDuration(t, time.Now(), err.GetTimestamp(), time.Second)
}

func TestErrorUnwrapping(t *testing.T) {
	base := NewStd("record missing")
	err := New(fmt.Errorf("lookup failed: %w", base)).
		Component("datastore").
		Category(CategoryDatabase).
		Build()

	assert.True(t, Is(err, base))
	assert.ErrorContains(t, err, "lookup failed")

	var enhanced *EnhancedError
	require.True(t, As(err, &enhanced))
	assert.Equal(t, CategoryDatabase, enhanced.Category)
}

func TestIsCategory(t *testing.T) {
	err := Newf("probe failed with status %d", 404).
		Component("imagehealth").
		Category(CategoryHealthCheck).
		Build()

	assert.True(t, IsCategory(err, CategoryHealthCheck))
	assert.False(t, IsCategory(err, CategoryDatabase))
	assert.False(t, IsCategory(NewStd("plain"), CategoryHealthCheck))
}

func TestPriorityValidation(t *testing.T) {
	err := New(NewStd("boom")).Priority(PriorityHigh).Build()
	assert.Equal(t, PriorityHigh, err.GetPriority())

	// Unknown values fall back to medium rather than propagating garbage.
	err = New(NewStd("boom")).Priority("urgent!!").Build()
	assert.Equal(t, PriorityMedium, err.GetPriority())

	err = New(NewStd("boom")).Build()
	assert.Empty(t, err.GetPriority())
}

func TestCategoryDetectionFromMessage(t *testing.T) {
	cases := []struct {
		message  string
		category ErrorCategory
	}{
		{"context deadline exceeded", CategoryTimeout},
		{"dial tcp 10.0.0.1:443: connection refused", CategoryNetwork},
		{"invalid photo reference", CategoryValidation},
		{"something else entirely", CategoryGeneric},
	}
	for _, tc := range cases {
		err := New(NewStd(tc.message)).Build()
		assert.Equal(t, tc.category, err.Category, "message %q", tc.message)
	}
}

func TestCategoryDetectionFromComponent(t *testing.T) {
	err := New(NewStd("something broke")).Component("datastore").Build()
	assert.Equal(t, CategoryDatabase, err.Category)

	err = New(NewStd("something broke")).Component("migration").Build()
	assert.Equal(t, CategoryMigration, err.Category)
}

func TestNetworkContextAnonymizesURL(t *testing.T) {
	err := NetworkError(NewStd("connection reset"), "https://api.example.com/secret/path?token=abc", 10*time.Second)

	ctx := err.GetContext()
	assert.Equal(t, "https-endpoint", ctx["url_category"], "raw URLs must never land in error context")
	assert.Equal(t, 10.0, ctx["timeout_seconds"])
	for _, v := range ctx {
		assert.NotContains(t, fmt.Sprint(v), "token=abc")
	}
}

func TestGetContextReturnsCopy(t *testing.T) {
	err := New(NewStd("boom")).Context("key", "value").Build()

	ctx := err.GetContext()
	ctx["key"] = "mutated"

	assert.Equal(t, "value", err.GetContext()["key"])
}

func TestEnhancedErrorIsMatchesCategory(t *testing.T) {
	a := New(NewStd("first")).Category(CategoryImageFetch).Build()
	b := New(NewStd("second")).Category(CategoryImageFetch).Build()
	c := New(NewStd("third")).Category(CategoryDatabase).Build()

	assert.True(t, Is(a, b), "errors of the same category match")
	assert.False(t, Is(a, c))
}
