package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/topic-leads/internal/model"
	"github.com/sells-group/topic-leads/internal/registry"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the source catalog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, err := initRegistry(cfg)
		if err != nil {
			return eris.Wrap(err, "load source catalog")
		}

		tierFlag, _ := cmd.Flags().GetString("min-tier")
		tier, err := model.ParseTier(tierFlag)
		if err != nil {
			return eris.Wrap(err, "--min-tier")
		}

		pillar, _ := cmd.Flags().GetString("pillar")
		sources, err := selectSources(reg, tier, pillar)
		if err != nil {
			return err
		}

		if len(sources) == 0 {
			fmt.Fprintln(os.Stderr, "No sources match.")
			return nil
		}
		formatSources(os.Stdout, sources)
		return nil
	},
}

// selectSources lists the catalog at tier, narrowed to pillar when set. An
// unknown pillar is an error naming the known ones.
func selectSources(reg *registry.Registry, tier model.Tier, pillar string) ([]model.SourceDescriptor, error) {
	if pillar == "" {
		return reg.ListSources(tier), nil
	}
	if !reg.HasPillar(pillar) {
		return nil, eris.Errorf("--pillar: unknown pillar %q (known: %s)", pillar, strings.Join(reg.Pillars(), "; "))
	}
	return reg.ByPillar(tier, pillar), nil
}

// formatSources writes a tabular source listing to w.
func formatSources(out io.Writer, sources []model.SourceDescriptor) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tKIND\tTIER\tPILLAR\tURL")
	_, _ = fmt.Fprintln(w, "----\t----\t----\t------\t---")

	for _, s := range sources {
		kind := string(s.Kind)
		if s.Provider != "" {
			kind += "/" + s.Provider
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.Name, kind, s.Tier, s.Pillar, s.URL)
	}
	_ = w.Flush()
}

func init() {
	sourcesCmd.Flags().String("min-tier", "low", "lowest tier to list (high, medium, low)")
	sourcesCmd.Flags().String("pillar", "", "only list sources in this pillar")
	rootCmd.AddCommand(sourcesCmd)
}
