package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/fieldreach/outreach/cadence"
	"github.com/fieldreach/outreach/contacts"
	"github.com/fieldreach/outreach/engine"
)

// assumeClassifier puts every unknown contact into a single configured
// category. Wiring a real enrichment backend replaces this.
type assumeClassifier struct {
	category string
}

func (c *assumeClassifier) Classify(ctx context.Context, target engine.Target) (string, error) {
	return c.category, nil
}

func classifierFromViper() engine.Classifier {
	category := strings.TrimSpace(viper.GetString("classify.assume_category"))
	if category == "" {
		category = contacts.CategoryNew
	}
	return &assumeClassifier{category: category}
}

// dryRunExecutor logs what would be sent without touching any network.
// Every dispatch counts as a success so cadence behavior can be
// exercised end to end.
type dryRunExecutor struct {
	logger *slog.Logger
}

func (e *dryRunExecutor) Execute(ctx context.Context, target engine.Target, step cadence.Step) (bool, string) {
	var detail string
	switch step.Action {
	case cadence.ActionInvite:
		detail = "connection invite"
	case cadence.ActionInviteWithNote:
		detail = fmt.Sprintf("connection invite with note %q", step.ContentRef)
	case cadence.ActionDirectMessage:
		detail = fmt.Sprintf("direct message %q", step.ContentRef)
	default:
		detail = string(step.Action)
	}
	e.logger.Info("dry run dispatch",
		"contact_id", target.ID,
		"step_id", step.ID,
		"detail", detail,
	)
	return true, "dry_run"
}

func executorFromViper(logger *slog.Logger) engine.Executor {
	return &dryRunExecutor{logger: logger}
}
