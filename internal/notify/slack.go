package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hochfrequenz/asset-scheduler/internal/domain"
)

// SlackWebhook posts reports to a Slack incoming webhook
type SlackWebhook struct {
	URL    string
	Client *http.Client
}

// NewSlackWebhook returns a webhook notifier with a 10s timeout
func NewSlackWebhook(url string) *SlackWebhook {
	return &SlackWebhook{URL: url, Client: &http.Client{Timeout: 10 * time.Second}}
}

type slackPayload struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color     string       `json:"color"`
	Title     string       `json:"title,omitempty"`
	TitleLink string       `json:"title_link,omitempty"`
	Text      string       `json:"text"`
	Fields    []slackField `json:"fields,omitempty"`
	Footer    string       `json:"footer,omitempty"`
	MrkdwnIn  []string     `json:"mrkdwn_in,omitempty"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// levelColors are the attachment bar colors
var levelColors = map[Level]string{
	LevelSuccess: "#28a745",
	LevelWarning: "#ffc107",
	LevelError:   "#dc3545",
	LevelInfo:    "#439FE0",
}

func slackPayloadFor(n Notification) slackPayload {
	a := slackAttachment{
		Color:     levelColors[n.Level],
		TitleLink: n.URL,
		Text:      n.Summary,
		Footer:    "asset-sched " + string(n.Phase),
		MrkdwnIn:  []string{"text"},
	}
	if n.RunID != "" {
		a.Title = "Run " + n.RunID
	}
	if n.Message != "" {
		a.Text = "```" + strings.TrimRight(n.Message, "\n") + "```"
	}
	for _, s := range []domain.Status{domain.StatusSuccess, domain.StatusOK, domain.StatusWarning, domain.StatusError} {
		if c := n.Counts[s]; c > 0 {
			a.Fields = append(a.Fields, slackField{Title: string(s), Value: strconv.Itoa(c), Short: true})
		}
	}
	return slackPayload{Text: n.Title, Attachments: []slackAttachment{a}}
}

// Send implements Notifier; an empty URL disables it
func (s *SlackWebhook) Send(ctx context.Context, n Notification) error {
	if s.URL == "" {
		return nil
	}
	body, err := json.Marshal(slackPayloadFor(n))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}
