package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

const (
	transcriptPageSize = 100
	transcriptMaxPages = 50
)

// fetchHistory pages backwards through a channel and returns messages oldest first.
func fetchHistory(api API, channelID string) ([]*discordgo.Message, error) {
	var (
		all    []*discordgo.Message
		before string
	)
	for page := 0; page < transcriptMaxPages; page++ {
		batch, err := api.ChannelMessages(channelID, transcriptPageSize, before, "", "")
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < transcriptPageSize {
			break
		}
		before = batch[len(batch)-1].ID
	}
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return all, nil
}

// renderTranscript formats messages as plain text, one line per message.
func renderTranscript(t *domain.Ticket, messages []*discordgo.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Transcript of ticket %s (owner %s)\n", t.ID, t.OwnerID)
	fmt.Fprintf(&b, "Opened %s\n\n", t.CreatedAt.UTC().Format(time.RFC3339))
	for _, m := range messages {
		author := "unknown"
		if m.Author != nil {
			author = m.Author.Username
		}
		content := m.Content
		for _, e := range m.Embeds {
			if e.Title != "" {
				content = strings.TrimSpace(content + " [" + e.Title + "]")
			}
		}
		for _, a := range m.Attachments {
			content = strings.TrimSpace(content + " " + a.URL)
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.Timestamp.UTC().Format("2006-01-02 15:04:05"), author, content)
	}
	return b.String()
}
