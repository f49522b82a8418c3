package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/fieldreach/outreach/cadence"
	"github.com/fieldreach/outreach/contacts"
	"github.com/fieldreach/outreach/engine"
	"github.com/fieldreach/outreach/internal/listfile"
	"github.com/fieldreach/outreach/internal/logutil"
	"github.com/fieldreach/outreach/internal/statepaths"
)

// app bundles everything a subcommand needs to talk to the engine.
type app struct {
	logger *slog.Logger
	policy *cadence.Policy
	engine *engine.Engine
	audit  *engine.AuditLog
}

func (a *app) Close() {
	if a.audit != nil {
		_ = a.audit.Close()
	}
}

func buildApp() (*app, error) {
	logger, err := logutil.LoggerFromViper()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	policyPath := statepaths.PolicyPath()
	if policyPath == "" {
		return nil, fmt.Errorf("no cadence policy configured (set --policy or cadence.policy_file)")
	}
	policy, err := cadence.LoadPolicyFile(policyPath)
	if err != nil {
		return nil, err
	}

	limiter := cadence.NewLimiter(policy, statepaths.CadenceDir())
	service := contacts.NewService(contacts.NewFileStore(statepaths.ContactsDir()), policy.Sequences)

	audit, err := engine.NewAuditLog(statepaths.AuditDir(), logger)
	if err != nil {
		return nil, err
	}

	eng := engine.New(engine.Options{
		Policy:       policy,
		Limiter:      limiter,
		Contacts:     service,
		Classifier:   classifierFromViper(),
		Executor:     executorFromViper(logger),
		Logger:       logger,
		Audit:        audit,
		PollInterval: viper.GetDuration("cadence.poll_interval"),
	})

	return &app{logger: logger, policy: policy, engine: eng, audit: audit}, nil
}

func loadTargets(path string) ([]engine.Target, error) {
	entries, err := listfile.Load(statepaths.ExpandHomePath(strings.TrimSpace(path)))
	if err != nil {
		return nil, err
	}
	targets := make([]engine.Target, 0, len(entries))
	for _, e := range entries {
		targets = append(targets, engine.Target{ID: e.ID, Attrs: e.Attrs})
	}
	return targets, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
