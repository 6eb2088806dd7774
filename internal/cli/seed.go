package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ahsanhabibakik/rupomoti/internal/app"
	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	"github.com/ahsanhabibakik/rupomoti/internal/platform/slug"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// catalogFile is the seed format. Prices are minor units. Categories may
// name a parent that appears earlier in the file or already exists.
type catalogFile struct {
	Categories []seedCategory `yaml:"categories"`
	Products   []seedProduct  `yaml:"products"`
}

type seedCategory struct {
	Name        string `yaml:"name"`
	Slug        string `yaml:"slug"`
	Description string `yaml:"description"`
	Parent      string `yaml:"parent"`
	Position    int    `yaml:"position"`
}

type seedProduct struct {
	Name           string `yaml:"name"`
	Slug           string `yaml:"slug"`
	Description    string `yaml:"description"`
	Price          int64  `yaml:"price"`
	CompareAtPrice int64  `yaml:"compare_at_price"`
	SKU            string `yaml:"sku"`
	Stock          int    `yaml:"stock"`
	Category       string `yaml:"category"`
	Active         *bool  `yaml:"active"`
	Featured       bool   `yaml:"featured"`
}

type seedReport struct {
	CategoriesCreated int
	CategoriesUpdated int
	ProductsCreated   int
	ProductsUpdated   int
}

func seedCmd(open Opener) *cobra.Command {
	var (
		file   string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert categories and products from a YAML file",
		Long:  "Upsert categories and products from a YAML file. Existing rows are matched by slug.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("failed to open seed file: %w", err)
			}
			defer f.Close()

			catalog, err := parseCatalog(f)
			if err != nil {
				return err
			}

			env, cleanup, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := seedCatalog(cmd.Context(), env, catalog, dryRun)
			if err != nil {
				return err
			}

			prefix := ""
			if dryRun {
				prefix = "(dry run) "
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%scategories: %d created, %d updated\n",
				prefix, report.CategoriesCreated, report.CategoriesUpdated)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%sproducts: %d created, %d updated\n",
				prefix, report.ProductsCreated, report.ProductsUpdated)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML catalog file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report changes without writing")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// parseCatalog decodes a seed file and fills in derived slugs. Unknown keys
// and duplicate slugs are rejected.
func parseCatalog(r io.Reader) (*catalogFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var c catalogFile
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return &c, nil
		}
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	seen := make(map[string]bool)
	for i := range c.Categories {
		cat := &c.Categories[i]
		s, err := seedSlug(cat.Slug, cat.Name)
		if err != nil {
			return nil, fmt.Errorf("category %d: %w", i+1, err)
		}
		if seen[s] {
			return nil, fmt.Errorf("category %d: duplicate slug %q", i+1, s)
		}
		seen[s] = true
		cat.Slug = s
	}

	seen = make(map[string]bool)
	for i := range c.Products {
		p := &c.Products[i]
		s, err := seedSlug(p.Slug, p.Name)
		if err != nil {
			return nil, fmt.Errorf("product %d: %w", i+1, err)
		}
		if seen[s] {
			return nil, fmt.Errorf("product %d: duplicate slug %q", i+1, s)
		}
		seen[s] = true
		p.Slug = s
	}
	return &c, nil
}

func seedSlug(explicit, name string) (string, error) {
	if name == "" {
		return "", errors.New("name is required")
	}
	if explicit != "" {
		if !slug.Valid(explicit) {
			return "", fmt.Errorf("invalid slug %q", explicit)
		}
		return explicit, nil
	}
	s := slug.Make(name)
	if s == "" {
		return "", fmt.Errorf("cannot derive a slug from %q, set one explicitly", name)
	}
	return s, nil
}

func seedCatalog(ctx context.Context, env *Env, c *catalogFile, dryRun bool) (seedReport, error) {
	var report seedReport

	existing, err := env.Catalog.ListCategories(ctx)
	if err != nil {
		return report, err
	}
	categoryIDs := make(map[string]uuid.UUID, len(existing))
	for _, cat := range existing {
		categoryIDs[cat.Slug] = cat.ID
	}

	for _, sc := range c.Categories {
		in := app.CategoryInput{
			Name:        sc.Name,
			Slug:        sc.Slug,
			Description: sc.Description,
			Position:    sc.Position,
		}
		if sc.Parent != "" {
			parentID, ok := categoryIDs[sc.Parent]
			if !ok {
				return report, fmt.Errorf("category %q: unknown parent %q", sc.Slug, sc.Parent)
			}
			in.ParentID = &parentID
		}

		id, exists := categoryIDs[sc.Slug]
		switch {
		case dryRun:
			categoryIDs[sc.Slug] = id
		case exists:
			if _, err := env.Catalog.UpdateCategory(ctx, id, in); err != nil {
				return report, fmt.Errorf("category %q: %w", sc.Slug, err)
			}
		default:
			created, err := env.Catalog.CreateCategory(ctx, in)
			if err != nil {
				return report, fmt.Errorf("category %q: %w", sc.Slug, err)
			}
			categoryIDs[sc.Slug] = created.ID
		}
		if exists {
			report.CategoriesUpdated++
		} else {
			report.CategoriesCreated++
		}
	}

	for _, sp := range c.Products {
		in := app.ProductInput{
			Name:           sp.Name,
			Slug:           sp.Slug,
			Description:    sp.Description,
			Price:          sp.Price,
			CompareAtPrice: sp.CompareAtPrice,
			SKU:            sp.SKU,
			Stock:          sp.Stock,
			Active:         sp.Active == nil || *sp.Active,
			Featured:       sp.Featured,
		}
		if sp.Category != "" {
			categoryID, ok := categoryIDs[sp.Category]
			if !ok {
				return report, fmt.Errorf("product %q: unknown category %q", sp.Slug, sp.Category)
			}
			in.CategoryID = &categoryID
		}

		current, err := env.Products.GetBySlug(ctx, sp.Slug)
		if err != nil && !errors.Is(err, domain.ErrProductNotFound) {
			return report, fmt.Errorf("product %q: %w", sp.Slug, err)
		}

		if current != nil {
			report.ProductsUpdated++
			if dryRun {
				continue
			}
			// Images are managed in the back-office; keep them.
			in.ImageIDs = current.ImageIDs
			if _, err := env.Catalog.UpdateProduct(ctx, current.ID, in); err != nil {
				return report, fmt.Errorf("product %q: %w", sp.Slug, err)
			}
			continue
		}

		report.ProductsCreated++
		if dryRun {
			continue
		}
		if _, err := env.Catalog.CreateProduct(ctx, in); err != nil {
			return report, fmt.Errorf("product %q: %w", sp.Slug, err)
		}
	}

	return report, nil
}
