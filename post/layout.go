package post

import (
	"strconv"
	"unicode/utf8"

	"go.dedis.ch/chainblog/encoding"
	"go.dedis.ch/chainblog/ledger"
	"golang.org/x/xerrors"
)

const (
	// DefaultShardBound is the number of content shards scanned by default.
	DefaultShardBound = 60

	// DefaultSlotSize is the maximum size of a key and its value in a global
	// state slot.
	DefaultSlotSize = 128
)

// ErrContentTooLong is returned when the content cannot be stored even across
// all the shards.
var ErrContentTooLong = xerrors.New("content too long")

// Layout describes how a post is spread over the global state.
type Layout struct {
	shardBound int
	slotSize   int
}

// LayoutOption is the type of option to create a layout.
type LayoutOption func(*Layout)

// WithShardBound sets the number of shard keys, starting at "0".
func WithShardBound(n int) LayoutOption {
	return func(l *Layout) {
		l.shardBound = n
	}
}

// WithSlotSize sets the maximum size of a key and its value.
func WithSlotSize(n int) LayoutOption {
	return func(l *Layout) {
		l.slotSize = n
	}
}

// NewLayout returns a layout with the default bounds unless changed by the
// options.
func NewLayout(opts ...LayoutOption) Layout {
	layout := Layout{
		shardBound: DefaultShardBound,
		slotSize:   DefaultSlotSize,
	}

	for _, opt := range opts {
		opt(&layout)
	}

	return layout
}

// ShardBound returns the number of shard keys.
func (l Layout) ShardBound() int {
	return l.shardBound
}

// ShardKey returns the state key of the shard at the given index.
func ShardKey(index int) string {
	return strconv.Itoa(index)
}

// ContentKeys returns every key that can hold a part of the content.
func (l Layout) ContentKeys() []string {
	keys := make([]string, 0, l.shardBound+1)
	keys = append(keys, KeyContent)

	for i := 0; i < l.shardBound; i++ {
		keys = append(keys, ShardKey(i))
	}

	return keys
}

// Decode projects the application into a post. Missing text fields default to
// an empty string and missing counters to zero. Content shards are
// concatenated in index order, and the CONTENT key overrides them when it is
// present. Entries with an undecodable key are ignored; an undecodable value
// of a post field returns a codec error.
func (l Layout) Decode(app ledger.Application) (Post, error) {
	state := make(map[string]ledger.Value, len(app.GlobalState))

	for _, kv := range app.GlobalState {
		key, err := encoding.Base64ToBytes(kv.Key)
		if err != nil {
			continue
		}

		state[string(key)] = kv.Value
	}

	p := Post{
		ID:    app.ID,
		Owner: app.Creator,
	}

	var err error

	p.Title, err = decodeText(state, KeyTitle)
	if err != nil {
		return p, xerrors.Errorf("field %s: %w", KeyTitle, err)
	}

	p.Image, err = decodeText(state, KeyImage)
	if err != nil {
		return p, xerrors.Errorf("field %s: %w", KeyImage, err)
	}

	shards := []byte{}
	for i := 0; i < l.shardBound; i++ {
		value, found := state[ShardKey(i)]
		if !found {
			continue
		}

		data, err := encoding.Base64ToBytes(value.Bytes)
		if err != nil {
			return p, xerrors.Errorf("shard %d: %w", i, err)
		}

		shards = append(shards, data...)
	}

	p.Content, err = encoding.WireToText(shards)
	if err != nil {
		return p, xerrors.Errorf("shards: %w", err)
	}

	_, found := state[KeyContent]
	if found {
		p.Content, err = decodeText(state, KeyContent)
		if err != nil {
			return p, xerrors.Errorf("field %s: %w", KeyContent, err)
		}
	}

	p.Upvotes = state[KeyUpvote].Uint
	p.Downvotes = state[KeyDownvote].Uint

	return p, nil
}

func decodeText(state map[string]ledger.Value, key string) (string, error) {
	value, found := state[key]
	if !found {
		return "", nil
	}

	return encoding.Base64ToText(value.Bytes)
}

// EncodeContent returns the slots that store the content. It uses the single
// CONTENT slot when it fits, and otherwise splits the content over the shard
// keys without breaking a UTF-8 sequence.
func (l Layout) EncodeContent(content string) (map[string][]byte, error) {
	data := encoding.TextToWire(content)

	if len(KeyContent)+len(data) <= l.slotSize {
		return map[string][]byte{KeyContent: data}, nil
	}

	slots := make(map[string][]byte)

	for i := 0; len(data) > 0; i++ {
		if i >= l.shardBound {
			return nil, xerrors.Errorf("%w: %d bytes left after %d shards",
				ErrContentTooLong, len(data), l.shardBound)
		}

		key := ShardKey(i)
		size := l.slotSize - len(key)

		if size >= len(data) {
			size = len(data)
		} else {
			for size > 0 && !utf8.RuneStart(data[size]) {
				size--
			}
		}

		if size <= 0 {
			return nil, xerrors.Errorf("slot size %d too small", l.slotSize)
		}

		slots[key] = data[:size]
		data = data[size:]
	}

	return slots, nil
}
