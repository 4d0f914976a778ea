package youtube

import "fmt"

// FilterSubscriptions reduces the raw subscription listing to the channels
// with new uploads, preserving the original relative order. Malformed
// entries (missing channel ID or negative count) are skipped and reported
// back so the caller can log them; one bad entry never aborts the batch.
func FilterSubscriptions(raw []RawSubscription) ([]Subscription, []error) {
	var (
		subs      []Subscription
		malformed []error
	)

	for i, entry := range raw {
		if entry.ChannelID == "" {
			malformed = append(malformed, fmt.Errorf("subscription entry %d: missing channel id", i))
			continue
		}
		if entry.NewItemCount < 0 {
			malformed = append(malformed, fmt.Errorf("subscription entry %d (%s): negative new item count %d",
				i, entry.ChannelID, entry.NewItemCount))
			continue
		}
		if entry.NewItemCount == 0 {
			continue
		}
		subs = append(subs, Subscription{
			ChannelID:    entry.ChannelID,
			ChannelTitle: entry.ChannelTitle,
			NewItemCount: entry.NewItemCount,
		})
	}

	return subs, malformed
}
