package habits

import (
	"fmt"

	"github.com/julianstephens/habitlog/internal/cli"
)

type TemplateCmd struct {
	List TemplateListCmd `cmd:"" help:"List habit templates." default:"1"`
}

type TemplateListCmd struct{}

func (c *TemplateListCmd) Run(ctx *cli.Context) error {
	cat, err := ctx.Catalog()
	if err != nil {
		return err
	}
	templates, err := cat.Templates(ctx.Ctx)
	if err != nil {
		return err
	}
	if len(templates) == 0 {
		fmt.Println("No templates found.")
		return nil
	}
	for _, t := range templates {
		icon := t.Icon
		if icon == "" {
			icon = " "
		}
		fmt.Printf("%s %-24s %-8s %s\n", icon, t.Name, t.DefaultFrequencyType, t.ID)
	}
	fmt.Println("\nUse 'habitlog habit add --template <name>' to start from one.")
	return nil
}
