package threat

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEvent() *Event {
	return &Event{
		VIPID:           "vip-1",
		VIPName:         "Jane Doe",
		Platform:        PlatformTwitter,
		ThreatType:      ThreatTypeImpersonation,
		Severity:        SeverityHigh,
		ConfidenceScore: 0.87,
		Content:         "suspicious account impersonating the subject",
		SourceURL:       "https://twitter.com/fake_account",
	}
}

func TestEventValidate(t *testing.T) {
	t.Run("valid event passes", func(t *testing.T) {
		require.NoError(t, validEvent().Validate())
	})

	t.Run("confidence out of range", func(t *testing.T) {
		event := validEvent()
		event.ConfidenceScore = 1.5
		err := event.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation))

		var validation *ValidationError
		require.True(t, errors.As(err, &validation))
		assert.Equal(t, "confidence_score", validation.Field)
	})

	t.Run("unrecognized severity", func(t *testing.T) {
		event := validEvent()
		event.Severity = "extreme"
		err := event.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation))
	})

	t.Run("unrecognized threat type", func(t *testing.T) {
		event := validEvent()
		event.ThreatType = "gossip"
		assert.True(t, errors.Is(event.Validate(), ErrValidation))
	})

	t.Run("missing vip name", func(t *testing.T) {
		event := validEvent()
		event.VIPName = ""
		assert.True(t, errors.Is(event.Validate(), ErrValidation))
	})
}

func TestSeverityRank(t *testing.T) {
	assert.True(t, SeverityLow.Rank() < SeverityMedium.Rank())
	assert.True(t, SeverityMedium.Rank() < SeverityHigh.Rank())
	assert.True(t, SeverityHigh.Rank() < SeverityCritical.Rank())
	assert.Equal(t, -1, Severity("extreme").Rank())
}

func TestEventDayBoundary(t *testing.T) {
	midnight := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	event := &Event{CreatedAt: midnight}
	assert.Equal(t, "2026-03-15", event.Day())

	justBefore := &Event{CreatedAt: midnight.Add(-time.Nanosecond)}
	assert.Equal(t, "2026-03-14", justBefore.Day())
}

func TestEventBefore(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	earlier := &Event{ID: "b", CreatedAt: base}
	later := &Event{ID: "a", CreatedAt: base.Add(time.Second)}
	assert.True(t, earlier.Before(later))
	assert.False(t, later.Before(earlier))

	// Equal timestamps break ties by id.
	tieA := &Event{ID: "a", CreatedAt: base}
	tieB := &Event{ID: "b", CreatedAt: base}
	assert.True(t, tieA.Before(tieB))
	assert.False(t, tieB.Before(tieA))
}

func TestErrorTaxonomy(t *testing.T) {
	notFound := &NotFoundError{Kind: "threat event", ID: "x"}
	assert.True(t, errors.Is(notFound, ErrNotFound))
	assert.False(t, errors.Is(notFound, ErrValidation))

	transient := &TransientStoreError{Op: "append", Err: errors.New("connection refused")}
	assert.True(t, errors.Is(transient, ErrStoreUnavailable))
	assert.Contains(t, transient.Error(), "append")
}
