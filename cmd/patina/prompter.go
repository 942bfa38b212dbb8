package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/postrv/patina/internal/permission"
)

// terminalPrompter asks for approval interactively on the terminal.
type terminalPrompter struct{}

func (terminalPrompter) Prompt(ctx context.Context, req permission.Request) (permission.Decision, error) {
	var decision permission.Decision

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[permission.Decision]().
				Title(fmt.Sprintf("Allow %s?", req.Call.Name)).
				Description(fmt.Sprintf("signature %s\nclassification %s\ninput %s",
					req.Signature, req.Classification, string(req.Call.Input))).
				Options(
					huh.NewOption("Allow once", permission.DecisionAllowOnce),
					huh.NewOption("Allow always", permission.DecisionAllowAlways),
					huh.NewOption("Deny", permission.DecisionDeny),
				).
				Value(&decision),
		),
	)

	if err := form.RunWithContext(ctx); err != nil {
		// Aborted prompt (ctrl-c, closed terminal) denies the call.
		return permission.DecisionDeny, nil
	}
	return decision, nil
}
