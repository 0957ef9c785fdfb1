package conversation

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SiblingSource is the slice of the backend the navigator needs: sibling
// resolution, branch switching, and the authoritative conversation fetch.
type SiblingSource interface {
	GetSiblings(ctx context.Context, messageID string) ([]Sibling, error)
	SwitchSibling(ctx context.Context, messageID string, siblingID string, chatID string) error
	GetConversation(ctx context.Context, chatID string) ([]*Message, error)
}

// Navigator resolves and switches between sibling versions of a message.
// Switching a sibling changes every message after the branch point, so the
// navigator never patches the store in place: it always reloads the full
// conversation after a switch.
type Navigator struct {
	source SiblingSource
	store  *Store
}

func NewNavigator(source SiblingSource, store *Store) *Navigator {
	return &Navigator{source: source, store: store}
}

// Siblings returns the ordered sibling list for a message position,
// sorted by sequence number.
func (n *Navigator) Siblings(ctx context.Context, messageID string) ([]Sibling, error) {
	sibs, err := n.source.GetSiblings(ctx, messageID)
	if err != nil {
		return nil, errors.Wrapf(err, "could not resolve siblings of %s", messageID)
	}
	sort.SliceStable(sibs, func(i, j int) bool {
		return sibs[i].Sequence < sibs[j].Sequence
	})
	return sibs, nil
}

// Cursor returns the position of the visible sibling at the message's tree
// position and the total sibling count. The visible sibling is the one
// present in the current message sequence.
func (n *Navigator) Cursor(ctx context.Context, chatID string, messageID string) (int, int, error) {
	sibs, err := n.Siblings(ctx, messageID)
	if err != nil {
		return 0, 0, err
	}
	visible := map[string]bool{}
	for _, m := range n.store.Messages(chatID) {
		visible[m.ID] = true
	}
	for i, sib := range sibs {
		if visible[sib.ID] {
			return i, len(sibs), nil
		}
	}
	return 0, len(sibs), errors.Errorf("no visible sibling for message %s", messageID)
}

// Navigate marks siblingID as the visible branch at messageID's position
// and reloads the conversation from the source of truth. Non-visible
// siblings are kept by the backend; switching never deletes.
func (n *Navigator) Navigate(ctx context.Context, chatID string, messageID string, siblingID string) error {
	log.Debug().
		Str("chat_id", chatID).
		Str("message_id", messageID).
		Str("sibling_id", siblingID).
		Msg("switching visible sibling")

	if err := n.source.SwitchSibling(ctx, messageID, siblingID, chatID); err != nil {
		return errors.Wrapf(err, "could not switch to sibling %s", siblingID)
	}

	msgs, err := n.source.GetConversation(ctx, chatID)
	if err != nil {
		return errors.Wrapf(err, "could not reload conversation %s after sibling switch", chatID)
	}
	n.store.Replace(chatID, msgs)
	return nil
}
