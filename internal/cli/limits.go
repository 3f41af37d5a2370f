package cli

import (
	"context"
	"fmt"
)

// limitJSON is one row of the limits command output.
type limitJSON struct {
	Category string `json:"category"`
	Minutes  int    `json:"minutes"`
}

// Execute implements the go-flags Commander interface for LimitsCommand.
func (c *LimitsCommand) Execute(args []string) error {
	if (c.Category == "") != (c.Minutes == nil) {
		return fmt.Errorf("--category and --minutes must be given together")
	}

	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()
	return c.executeWith(e)
}

func (c *LimitsCommand) executeWith(e *env) error {
	ctx := context.Background()

	if c.Category != "" && c.Minutes != nil {
		if err := e.tracker.SetLimit(ctx, c.Category, *c.Minutes); err != nil {
			return err
		}
		if !(c.globals != nil && c.globals.JSON) {
			if *c.Minutes == 0 {
				fmt.Printf("Disabled limit for %s.\n", c.Category)
			} else {
				fmt.Printf("Set %s limit to %d minutes.\n", c.Category, *c.Minutes)
			}
			return nil
		}
	}

	limits, err := e.tracker.Limits(ctx)
	if err != nil {
		return err
	}

	rows := make([]limitJSON, 0, len(limits))
	for _, name := range limits.Categories() {
		rows = append(rows, limitJSON{Category: name, Minutes: limits[name]})
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(rows)
	}

	fmt.Println("Category limits:")
	for _, r := range rows {
		if r.Minutes == 0 {
			fmt.Printf("  %-12s off\n", r.Category)
			continue
		}
		fmt.Printf("  %-12s %d min\n", r.Category, r.Minutes)
	}
	return nil
}
