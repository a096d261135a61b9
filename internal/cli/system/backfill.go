package system

import (
	"fmt"

	"github.com/julianstephens/habitlog/internal/backfill"
	"github.com/julianstephens/habitlog/internal/cli"
	"github.com/julianstephens/habitlog/internal/models"
	"github.com/julianstephens/habitlog/internal/utils"
)

type BackfillCmd struct {
	Date   string `help:"Day to fill in (YYYY-MM-DD). Defaults to yesterday."`
	Status string `help:"Status written for missing days." default:"achieved" enum:"achieved,not_achieved,unchecked"`
}

func (c *BackfillCmd) Run(ctx *cli.Context) error {
	date := c.Date
	if date != "" {
		d, err := utils.NormalizeDay(date)
		if err != nil {
			return err
		}
		date = d
	}
	status, err := models.ParseLogStatus(c.Status)
	if err != nil {
		return err
	}

	client, err := ctx.ServiceClient()
	if err != nil {
		return err
	}
	report, err := backfill.New(client, backfill.WithStatus(status)).Run(ctx.Ctx, date)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %s\n", report.Date, report)
	if report.Failed > 0 {
		fmt.Printf("⚠ %d habit(s) could not be checked, see the log for details\n", report.Failed)
	}
	return nil
}
