package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sandai/arena/src/domain/notification"
)

// Discord accepts at most ten embeds per message.
const maxEmbeds = 10

// WebhookExecutor is the part of a discordgo session used to post.
type WebhookExecutor interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordDispatcher posts events to a Discord channel webhook as embeds.
type DiscordDispatcher struct {
	Session  WebhookExecutor
	ID       string
	Token    string
	Username string
}

// NewDiscordDispatcher parses a https://discord.com/api/webhooks/{id}/{token}
// URL.
func NewDiscordDispatcher(webhookURL, username string) (*DiscordDispatcher, error) {
	id, token, err := parseDiscordWebhook(webhookURL)
	if err != nil {
		return nil, err
	}
	session, err := discordgo.New("")
	if err != nil {
		return nil, err
	}
	return &DiscordDispatcher{Session: session, ID: id, Token: token, Username: username}, nil
}

func parseDiscordWebhook(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", errors.New("not a discord webhook url")
}

func (d *DiscordDispatcher) Dispatch(ctx context.Context, events []*notification.Event) error {
	for start := 0; start < len(events); start += maxEmbeds {
		end := min(start+maxEmbeds, len(events))
		embeds := make([]*discordgo.MessageEmbed, 0, end-start)
		for _, e := range events[start:end] {
			embeds = append(embeds, embed(e))
		}
		_, err := d.Session.WebhookExecute(d.ID, d.Token, false, &discordgo.WebhookParams{
			Username: d.Username,
			Embeds:   embeds,
		}, discordgo.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("%w: %w", notification.ErrDispatchFailed, err)
		}
	}
	return nil
}

var embedColors = map[notification.EventType]int{
	notification.EventMatchSettled:        0x2ecc71,
	notification.EventMatchVoided:         0x95a5a6,
	notification.EventMatchDisputed:       0xe74c3c,
	notification.EventTournamentCompleted: 0xf1c40f,
	notification.EventTournamentCancelled: 0x95a5a6,
}

func embed(e *notification.Event) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:     string(e.Type),
		Color:     embedColors[e.Type],
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
	}
	switch {
	case e.MatchID != "":
		out.Description = "Match `" + string(e.MatchID) + "`"
	case e.TournamentID != "":
		out.Description = "Tournament `" + string(e.TournamentID) + "`"
	}
	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{Name: k, Value: e.Data[k], Inline: true})
	}
	return out
}
