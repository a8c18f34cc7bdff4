package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"kiln/internal/actor"
	"kiln/internal/config"
	"kiln/internal/ipc"
)

// actorFile is the on-disk form of a batch registration. Image paths are
// resolved relative to the file's directory.
type actorFile struct {
	Actors []actorEntry `toml:"actors" json:"actors"`
}

type actorEntry struct {
	Name  string  `toml:"name" json:"name"`
	Image string  `toml:"image" json:"image"`
	Start float64 `toml:"start" json:"start"`
	End   float64 `toml:"end" json:"end"`
}

func newActorsCommand(ctx *commandContext) *cobra.Command {
	var providerID string

	actorsCmd := &cobra.Command{
		Use:   "actors",
		Short: "Register and manage provider actors",
	}
	actorsCmd.PersistentFlags().StringVarP(&providerID, "provider", "p", "", "Provider id (default from config)")

	actorsCmd.AddCommand(newActorsRegisterCommand(ctx, &providerID))
	actorsCmd.AddCommand(newActorsListCommand(ctx, &providerID))
	actorsCmd.AddCommand(newActorsDeleteCommand(ctx, &providerID))
	return actorsCmd
}

func newActorsRegisterCommand(ctx *commandContext, providerID *string) *cobra.Command {
	var file string
	var single actorEntry
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register actors from a reference image and clip range",
		Long: "Register one actor with --name/--image/--start/--end, or many with --file.\n" +
			"The file is TOML or JSON with an \"actors\" list of {name, image, start, end}.",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := collectActorItems(file, single)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ActorsRegister(ipc.ActorsRegisterRequest{Provider: *providerID, Items: items})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Results)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					leftColumns("Name", "Outcome", "Detail"),
					buildActorResultRows(resp.Results),
				))
				failed := 0
				for _, r := range resp.Results {
					if !r.OK {
						failed++
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d actors failed to register", failed, len(resp.Results))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "TOML or JSON file listing actors")
	cmd.Flags().StringVar(&single.Name, "name", "", "Actor name")
	cmd.Flags().StringVar(&single.Image, "image", "", "Reference image path")
	cmd.Flags().Float64Var(&single.Start, "start", 0, "Clip start in seconds")
	cmd.Flags().Float64Var(&single.End, "end", 0, "Clip end in seconds")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newActorsListCommand(ctx *commandContext, providerID *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered actors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ActorsList(*providerID)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Actors)
				}
				if len(resp.Actors) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No actors registered")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					leftColumns("ID", "Name", "Username", "Created"),
					buildActorRows(resp.Actors),
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newActorsDeleteCommand(ctx *commandContext, providerID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <actor-id>",
		Short: "Delete a registered actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.ActorsDelete(*providerID, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted actor %s\n", args[0])
				return nil
			})
		},
	}
}

// collectActorItems builds registration items from a file or the single-item
// flags. Image paths are made absolute because the daemon resolves them.
func collectActorItems(file string, single actorEntry) ([]actor.Item, error) {
	file = strings.TrimSpace(file)
	if file == "" {
		if strings.TrimSpace(single.Name) == "" || strings.TrimSpace(single.Image) == "" {
			return nil, errors.New("provide --file or both --name and --image")
		}
		image, err := resolveImagePath("", single.Image)
		if err != nil {
			return nil, err
		}
		return []actor.Item{{Name: single.Name, ImagePath: image, Start: single.Start, End: single.End}}, nil
	}

	path, err := config.ExpandPath(file)
	if err != nil {
		return nil, fmt.Errorf("resolve actor file: %w", err)
	}
	entries, err := readActorFile(path)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("actor file %s lists no actors", path)
	}
	items := make([]actor.Item, 0, len(entries))
	for _, entry := range entries {
		image, err := resolveImagePath(filepath.Dir(path), entry.Image)
		if err != nil {
			return nil, err
		}
		items = append(items, actor.Item{Name: entry.Name, ImagePath: image, Start: entry.Start, End: entry.End})
	}
	return items, nil
}

func readActorFile(path string) ([]actorEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read actor file: %w", err)
	}
	var parsed actorFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("parse actor file %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("parse actor file %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("actor file %s must end in .toml or .json", path)
	}
	return parsed.Actors, nil
}

func resolveImagePath(baseDir, image string) (string, error) {
	image = strings.TrimSpace(image)
	if image == "" {
		return "", nil
	}
	if baseDir != "" && !filepath.IsAbs(image) && !strings.HasPrefix(image, "~") {
		return filepath.Join(baseDir, image), nil
	}
	expanded, err := config.ExpandPath(image)
	if err != nil {
		return "", fmt.Errorf("resolve image path %q: %w", image, err)
	}
	return expanded, nil
}
