// Package convo folds inbound AI protocol events into an ordered, queryable
// conversation transcript.
package convo

import (
	"sync"
	"time"

	"github.com/voicelink/voicelink/pkg/bridge/aiproto"
)

// Item is one entry of the conversation transcript.
type Item struct {
	ID         string    `json:"id"`
	Role       string    `json:"role"`
	Kind       string    `json:"kind"`
	Status     string    `json:"status"`
	Text       string    `json:"text,omitempty"`
	Transcript string    `json:"transcript,omitempty"`
	HasAudio   bool      `json:"has_audio"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Result is what ProcessEvent hands back to the session: the affected item,
// if any, and the raw audio delta payload for audio-output events.
type Result struct {
	Item       *Item
	AudioDelta string
}

// Tracker maintains the per-call transcript. Append/update only; items are
// never reordered or deleted while the session is live.
type Tracker struct {
	mu    sync.Mutex
	items map[string]*Item
	order []string
	now   func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		items: make(map[string]*Item),
		now:   time.Now,
	}
}

func (t *Tracker) insertLocked(id, role, kind, status string) *Item {
	item := &Item{
		ID:        id,
		Role:      role,
		Kind:      kind,
		Status:    status,
		UpdatedAt: t.now(),
	}
	t.items[id] = item
	t.order = append(t.order, id)
	return item
}

// ProcessEvent folds one decoded AI event into the transcript. Update events
// referencing unknown item ids are ignored rather than treated as fatal;
// the protocol may reference items created before the tracker existed.
func (t *Tracker) ProcessEvent(event any) Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev := event.(type) {
	case aiproto.ItemCreated:
		if ev.Item.ID == "" {
			return Result{}
		}
		item, ok := t.items[ev.Item.ID]
		if !ok {
			status := ev.Item.Status
			if status == "" {
				status = aiproto.StatusInProgress
			}
			item = t.insertLocked(ev.Item.ID, ev.Item.Role, ev.Item.Type, status)
		}
		for _, part := range ev.Item.Content {
			if part.Text != "" {
				item.Text += part.Text
			}
			if part.Transcript != "" {
				item.Transcript += part.Transcript
			}
			if part.Type == "audio" || part.Type == "input_audio" {
				item.HasAudio = true
			}
		}
		item.UpdatedAt = t.now()
		return Result{Item: t.snapshotLocked(item)}

	case aiproto.AudioDelta:
		if ev.ItemID == "" {
			return Result{AudioDelta: ev.Delta}
		}
		item, ok := t.items[ev.ItemID]
		if !ok {
			// Audio can precede the item-created event; treat the delta as
			// implicit creation so playback bookkeeping has an item to name.
			item = t.insertLocked(ev.ItemID, "assistant", "message", aiproto.StatusInProgress)
		}
		item.HasAudio = true
		item.UpdatedAt = t.now()
		return Result{Item: t.snapshotLocked(item), AudioDelta: ev.Delta}

	case aiproto.TranscriptDelta:
		item, ok := t.items[ev.ItemID]
		if !ok {
			return Result{}
		}
		item.Transcript += ev.Delta
		item.UpdatedAt = t.now()
		return Result{Item: t.snapshotLocked(item)}

	case aiproto.TranscriptDone:
		item, ok := t.items[ev.ItemID]
		if !ok {
			return Result{}
		}
		if ev.Transcript != "" {
			item.Transcript = ev.Transcript
		}
		item.UpdatedAt = t.now()
		return Result{Item: t.snapshotLocked(item)}

	case aiproto.InputTranscriptionCompleted:
		item, ok := t.items[ev.ItemID]
		if !ok {
			return Result{}
		}
		item.Transcript = ev.Transcript
		item.UpdatedAt = t.now()
		return Result{Item: t.snapshotLocked(item)}

	case aiproto.OutputItemDone:
		item, ok := t.items[ev.Item.ID]
		if !ok {
			return Result{}
		}
		item.Status = aiproto.StatusCompleted
		for _, part := range ev.Item.Content {
			if part.Transcript != "" {
				item.Transcript = part.Transcript
			}
			if part.Text != "" {
				item.Text = part.Text
			}
		}
		item.UpdatedAt = t.now()
		return Result{Item: t.snapshotLocked(item)}

	case aiproto.ItemTruncated:
		item, ok := t.items[ev.ItemID]
		if !ok {
			return Result{}
		}
		item.Status = aiproto.StatusTruncated
		item.UpdatedAt = t.now()
		return Result{Item: t.snapshotLocked(item)}

	default:
		return Result{}
	}
}

func (t *Tracker) snapshotLocked(item *Item) *Item {
	out := *item
	return &out
}

// Items returns the transcript in insertion order. Never blocks, never fails
// on an empty conversation.
func (t *Tracker) Items() []Item {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Item, 0, len(t.order))
	for _, id := range t.order {
		if item, ok := t.items[id]; ok {
			out = append(out, *item)
		}
	}
	return out
}

// Len returns the number of transcript items.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}
