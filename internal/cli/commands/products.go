package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/codecheck/internal/cli/output"
	"github.com/leapstack-labs/codecheck/internal/registry"
)

// NewProductsCommand creates the products command group.
func NewProductsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "products",
		Aliases: []string{"product"},
		Short:   "Manage product GTINs",
		Long:    `Manage the product name to GTIN mappings stored in the products file (default: products.json).`,
	}

	cmd.AddCommand(newProductsListCommand())
	cmd.AddCommand(newProductsAddCommand())
	cmd.AddCommand(newProductsRmCommand())
	cmd.AddCommand(newProductsImportCommand())
	return cmd
}

type productInfo struct {
	Name string `json:"name"`
	GTIN string `json:"gtin"`
}

func newProductsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			r := cc.Renderer
			names := cc.State.ProductNames()

			if r.EffectiveMode() == output.ModeJSON {
				infos := make([]productInfo, 0, len(names))
				for _, name := range names {
					gtin, _ := cc.State.Product(name)
					infos = append(infos, productInfo{Name: name, GTIN: gtin})
				}
				return r.JSON(infos)
			}

			if len(names) == 0 {
				r.Println("No products. Add one with 'codecheck products add <name> <gtin>'.")
				return nil
			}
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				gtin, _ := cc.State.Product(name)
				rows = append(rows, []string{name, gtin})
			}
			r.Table([]string{"Product", "GTIN"}, rows)
			return nil
		},
	}
}

func newProductsAddCommand() *cobra.Command {
	var rename string
	cmd := &cobra.Command{
		Use:   "add <name> <gtin>",
		Short: "Add or update a product",
		Example: `  codecheck products add "Milk 1L" 04600000000000
  codecheck products add "Milk 1 L" 04600000000000 --rename "Milk 1L"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			if rename != "" {
				if _, ok := cc.State.Product(rename); !ok {
					return fmt.Errorf("product %q: %w", rename, registry.ErrNotFound)
				}
			}
			if err := cc.State.SaveProduct(rename, registry.Product{Name: args[0], GTIN: args[1]}); err != nil {
				return err
			}
			cc.Renderer.Success(fmt.Sprintf("Saved product %q", args[0]))
			return nil
		},
	}
	cmd.Flags().StringVar(&rename, "rename", "", "Existing product to rename to <name>")
	_ = cmd.RegisterFlagCompletionFunc("rename", completeProducts)
	return cmd
}

func newProductsRmCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "rm <name>",
		Aliases: []string{"delete", "remove"},
		Short:   "Delete a product",
		Args:    cobra.ExactArgs(1),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) > 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			return completeProducts(cmd, args, toComplete)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			if _, ok := cc.State.Product(args[0]); !ok {
				return fmt.Errorf("product %q: %w", args[0], registry.ErrNotFound)
			}
			if err := confirm(cmd, yes, fmt.Sprintf("Delete product %q?", args[0])); err != nil {
				return err
			}
			if err := cc.State.DeleteProduct(args[0]); err != nil {
				return err
			}
			cc.Renderer.Success(fmt.Sprintf("Deleted product %q", args[0]))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Delete without asking")
	return cmd
}

func newProductsImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <products.json>",
		Short: "Import products from a JSON list",
		Long: `Import a JSON list of {"Name": ..., "Gtin": ...} objects. Entries missing
either field are skipped; existing names are overwritten.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			n, err := cc.State.ImportProducts(f)
			if err != nil {
				return err
			}
			cc.Renderer.Success(fmt.Sprintf("Imported %d products", n))
			return nil
		},
	}
}
