package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/hyperjump/retriever/internal/cli"
	"github.com/hyperjump/retriever/internal/config"
	"github.com/hyperjump/retriever/internal/models"
	"github.com/hyperjump/retriever/internal/storage"
	"github.com/hyperjump/retriever/internal/tenant"
)

// projectInput carries the flags of "project add" and "project limits".
type projectInput struct {
	ID       string
	Key      string
	KeyHash  string
	Rate     float64
	Burst    int
	Capacity int
}

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects in the local database",
		Long: `Manage projects in the database named by --config.

A running server picks up projects added here on its next start. Use the
projects_file setting for changes that apply without a restart.`,
	}
	cmd.AddCommand(newProjectAddCmd(), newProjectListCmd(), newProjectLimitsCmd(), newProjectHashKeyCmd())
	return cmd
}

func newProjectAddCmd() *cobra.Command {
	var in projectInput
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a project or replace its key and limits",
		Example: `  retriever project add --id docs --key s3cret
  retriever project add --id docs --key-hash '$2a$10$...' --rate 5 --burst 10 --capacity 1000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			p, err := addProject(cmd.Context(), store, cfg.Quota, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Project registered: %s (rate %g/s, burst %d, capacity %d)\n",
				p.ID, p.RateLimit, p.Burst, p.CapacityLimit)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.ID, "id", "", "project id")
	cmd.Flags().StringVar(&in.Key, "key", "", "project key (hashed before it is stored)")
	cmd.Flags().StringVar(&in.KeyHash, "key-hash", "", "bcrypt hash of the project key")
	cmd.Flags().Float64Var(&in.Rate, "rate", 0, "requests per second (0 = config default)")
	cmd.Flags().IntVar(&in.Burst, "burst", 0, "token bucket burst (0 = config default)")
	cmd.Flags().IntVar(&in.Capacity, "capacity", 0, "maximum documents (0 = config default)")
	cmd.MarkFlagsMutuallyExclusive("key", "key-hash")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newProjectListCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects, their limits and document counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			_, store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			summaries, err := listProjects(cmd.Context(), store)
			if err != nil {
				return err
			}
			return cli.WriteProjects(cmd.OutOrStdout(), summaries, format)
		},
	}
	cmd.Flags().StringVar(&output, "output", "text", "output format: text or json")
	return cmd
}

func newProjectLimitsCmd() *cobra.Command {
	var in projectInput
	cmd := &cobra.Command{
		Use:     "limits",
		Short:   "Update a project's rate and capacity limits",
		Example: `  retriever project limits --id docs --rate 2 --capacity 500`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			flags := cmd.Flags()
			p, err := updateLimits(cmd.Context(), store, in,
				flags.Changed("rate"), flags.Changed("burst"), flags.Changed("capacity"))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Limits updated: %s (rate %g/s, burst %d, capacity %d)\n",
				p.ID, p.RateLimit, p.Burst, p.CapacityLimit)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.ID, "id", "", "project id")
	cmd.Flags().Float64Var(&in.Rate, "rate", 0, "requests per second (0 = unlimited)")
	cmd.Flags().IntVar(&in.Burst, "burst", 0, "token bucket burst")
	cmd.Flags().IntVar(&in.Capacity, "capacity", 0, "maximum documents (0 = unlimited)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newProjectHashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key <key>",
		Short: "Print the bcrypt hash of a key for the projects file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return writeKeyHash(cmd.OutOrStdout(), args[0], cfg.Quota.BcryptCost)
		},
	}
}

func openStore() (*config.Config, *storage.SQLiteStorage, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return cfg, store, nil
}

// addProject validates in, hashes a plaintext key and stores the project. Zero limits take
// the quota defaults the server would apply.
func addProject(ctx context.Context, store storage.Storage, q config.QuotaConfig, in projectInput) (*models.Project, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return nil, fmt.Errorf("%w: --id is required", models.ErrValidation)
	}
	if in.Rate < 0 || in.Burst < 0 || in.Capacity < 0 {
		return nil, fmt.Errorf("%w: limits must not be negative", models.ErrValidation)
	}

	keyHash := in.KeyHash
	switch {
	case in.Key != "" && keyHash != "":
		return nil, fmt.Errorf("%w: use either --key or --key-hash", models.ErrValidation)
	case in.Key != "":
		h, err := tenant.HashKey(in.Key, q.BcryptCost)
		if err != nil {
			return nil, err
		}
		keyHash = h
	case keyHash == "":
		return nil, fmt.Errorf("%w: --key or --key-hash is required", models.ErrValidation)
	}
	if _, err := bcrypt.Cost([]byte(keyHash)); err != nil {
		return nil, fmt.Errorf("%w: --key-hash is not a bcrypt hash", models.ErrValidation)
	}

	p := &models.Project{
		ID:            id,
		KeyHash:       keyHash,
		RateLimit:     in.Rate,
		Burst:         in.Burst,
		CapacityLimit: in.Capacity,
	}
	if p.RateLimit == 0 {
		p.RateLimit = q.DefaultRateLimit
	}
	if p.Burst == 0 {
		p.Burst = q.DefaultBurst
	}
	if p.CapacityLimit == 0 {
		p.CapacityLimit = q.DefaultCapacity
	}
	if err := store.PutProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// updateLimits changes only the limits whose flags were set.
func updateLimits(ctx context.Context, store storage.Storage, in projectInput, rateSet, burstSet, capacitySet bool) (*models.Project, error) {
	if in.Rate < 0 || in.Burst < 0 || in.Capacity < 0 {
		return nil, fmt.Errorf("%w: limits must not be negative", models.ErrValidation)
	}
	p, err := store.GetProject(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	if rateSet {
		p.RateLimit = in.Rate
	}
	if burstSet {
		p.Burst = in.Burst
	}
	if capacitySet {
		p.CapacityLimit = in.Capacity
	}
	if err := store.UpdateProjectLimits(ctx, p.ID, p.RateLimit, p.Burst, p.CapacityLimit); err != nil {
		return nil, err
	}
	return p, nil
}

func listProjects(ctx context.Context, store storage.Storage) ([]cli.ProjectSummary, error) {
	projects, err := store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]cli.ProjectSummary, 0, len(projects))
	for _, p := range projects {
		n, err := store.CountDocuments(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, cli.ProjectSummary{
			ID:            p.ID,
			RateLimit:     p.RateLimit,
			Burst:         p.Burst,
			CapacityLimit: p.CapacityLimit,
			Documents:     n,
		})
	}
	return out, nil
}

func writeKeyHash(w io.Writer, key string, cost int) error {
	h, err := tenant.HashKey(key, cost)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, h)
	return err
}
