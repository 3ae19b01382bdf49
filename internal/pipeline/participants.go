package pipeline

import (
	"github.com/surgitrain/segmentation-service/internal/domain/entity"
)

// SessionCollector folds the detector's per-frame card sightings into one
// ParticipantEvent per card-showing session. A card is usually visible across
// many consecutive sampled frames with occasionally garbled reads; the session
// identity is decided by majority vote and stamped at the session's start.
type SessionCollector struct {
	timeoutMisses int

	open      bool
	startSec  float64
	sightings []entity.ParticipantEvent
	misses    int
	events    []entity.ParticipantEvent
}

// NewSessionCollector closes an open session after timeoutMisses consecutive
// frames without a sighting.
func NewSessionCollector(timeoutMisses int) *SessionCollector {
	if timeoutMisses < 1 {
		timeoutMisses = 1
	}
	return &SessionCollector{timeoutMisses: timeoutMisses}
}

// Observe records the detector result for one sampled frame; nil means no
// card was visible.
func (c *SessionCollector) Observe(sighting *entity.ParticipantEvent) {
	if sighting != nil {
		if !c.open {
			c.open = true
			c.startSec = sighting.TimestampSec
			c.sightings = c.sightings[:0]
		}
		c.sightings = append(c.sightings, *sighting)
		c.misses = 0
		return
	}

	if !c.open {
		return
	}
	c.misses++
	if c.misses >= c.timeoutMisses {
		c.closeSession()
	}
}

// Events closes any open session and returns all collected participant
// events in timestamp order.
func (c *SessionCollector) Events() []entity.ParticipantEvent {
	if c.open {
		c.closeSession()
	}
	return c.events
}

func (c *SessionCollector) closeSession() {
	type identity struct {
		id   string
		role entity.ParticipantRole
	}
	counts := make(map[identity]int)
	confSums := make(map[identity]float64)
	for _, s := range c.sightings {
		key := identity{id: s.ParticipantID, role: s.Role}
		counts[key]++
		confSums[key] += s.OCRConfidence
	}

	var winner identity
	best := -1
	for _, s := range c.sightings {
		key := identity{id: s.ParticipantID, role: s.Role}
		if counts[key] > best {
			winner = key
			best = counts[key]
		}
	}

	c.events = append(c.events, entity.ParticipantEvent{
		TimestampSec:  c.startSec,
		ParticipantID: winner.id,
		Role:          winner.role,
		OCRConfidence: confSums[winner] / float64(counts[winner]),
	})

	c.open = false
	c.misses = 0
	c.sightings = c.sightings[:0]
}
