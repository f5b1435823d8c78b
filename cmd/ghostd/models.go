package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ghostd/internal/registry"
)

func newModelsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect and download local GGUF models",
	}
	cmd.AddCommand(newModelsListCmd(a), newModelsPullCmd(a))
	return cmd
}

func newModelsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List models in the models directory and the configured references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := registry.NewHub(a.cfg.Local.ModelsDir, a.log)
			if err != nil {
				return err
			}
			models, err := registry.LoadDir(hub.Dir)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tPATH")
			for _, m := range models {
				fmt.Fprintf(tw, "%s\t%s\n", m.ID, m.Path)
			}
			fmt.Fprintln(tw)
			fmt.Fprintln(tw, "ROLE\tREF\tSTATUS")
			for _, c := range a.configuredRefs() {
				status := "missing"
				ref, err := registry.ParseRef(c.ref)
				if err != nil {
					status = "invalid: " + err.Error()
				} else if _, err := hub.Find(ref); err == nil {
					status = "downloaded"
				} else if !errors.Is(err, registry.ErrNotDownloaded) {
					status = err.Error()
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", c.role, c.ref, status)
			}
			return tw.Flush()
		},
	}
}

func newModelsPullCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pull [ref...]",
		Short: "Download models from Hugging Face (defaults to the configured GPU and CPU models)",
		Example: "  ghostd models pull\n" +
			"  ghostd models pull OleFranz/Qwen3-0.6B-Text-FIM-GGUF:Q4_K_M",
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := registry.NewHub(a.cfg.Local.ModelsDir, a.log)
			if err != nil {
				return err
			}
			refs := args
			if len(refs) == 0 {
				for _, c := range a.configuredRefs() {
					refs = append(refs, c.ref)
				}
			}
			if len(refs) == 0 {
				return fmt.Errorf("no model references given and none configured")
			}
			for _, s := range refs {
				ref, err := registry.ParseRef(s)
				if err != nil {
					return err
				}
				last := -1
				path, err := hub.Pull(cmd.Context(), ref, func(done, total int64) {
					if total <= 0 {
						return
					}
					if pct := int(done * 100 / total); pct != last {
						last = pct
						fmt.Fprintf(os.Stderr, "\r%s %3d%%", ref.Filename(), pct)
					}
				})
				if last >= 0 {
					fmt.Fprintln(os.Stderr)
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, path)
			}
			return nil
		},
	}
}

type configuredRef struct{ role, ref string }

func (a *app) configuredRefs() []configuredRef {
	var out []configuredRef
	if a.cfg.Local.GPUModel != "" {
		out = append(out, configuredRef{"gpu", a.cfg.Local.GPUModel})
	}
	if a.cfg.Local.CPUModel != "" && a.cfg.Local.CPUModel != a.cfg.Local.GPUModel {
		out = append(out, configuredRef{"cpu", a.cfg.Local.CPUModel})
	}
	return out
}
