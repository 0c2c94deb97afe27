package main

import (
	"github.com/slack-go/slack"
)

// postReport sends the generated report text to the configured Slack
// channel.
func postReport(cfg Config, report string) error {
	api := slack.New(cfg.SlackBotToken)
	_, _, err := api.PostMessage(cfg.ReportChannelID, slack.MsgOptionText(report, false))
	return err
}
