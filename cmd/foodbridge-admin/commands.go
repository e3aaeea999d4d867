package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Cedctf/foodbridge-sub000/internal/auth"
	"github.com/Cedctf/foodbridge-sub000/internal/config"
	"github.com/Cedctf/foodbridge-sub000/internal/db"
	"github.com/Cedctf/foodbridge-sub000/internal/logger"
	"github.com/Cedctf/foodbridge-sub000/internal/services"
	"github.com/Cedctf/foodbridge-sub000/internal/utils"
)

const commandTimeout = 5 * time.Minute

// admin carries what every subcommand shares.
type admin struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &admin{}
	root := &cobra.Command{
		Use:          "foodbridge-admin",
		Short:        "Operator commands for the FoodBridge API",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load("admin")
			if err != nil {
				return err
			}
			logger.Init(cfg.IsDev(), "")
			a.cfg = cfg
			return nil
		},
	}

	root.AddCommand(a.indexesCmd(), a.reconcileCmd(), a.impactCmd(), a.tokenCmd())
	return root
}

// withDB connects to Mongo for the duration of fn.
func (a *admin) withDB(cmd *cobra.Command, fn func(ctx context.Context, database *mongo.Database) error) error {
	client, database, err := db.ConnectDB(a.cfg.MongoURI, a.cfg.MongoDbName)
	if err != nil {
		return err
	}
	defer func() { _ = db.DisconnectDB(client) }()

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()
	return fn(ctx, database)
}

func (a *admin) indexesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "indexes",
		Short: "Create the storage indexes the claim invariants depend on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(cmd, func(ctx context.Context, database *mongo.Database) error {
				if err := db.EnsureIndexes(ctx, database); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "indexes ensured")
				return nil
			})
		},
	}
}

func (a *admin) reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [listing-id]",
		Short: "Repair listing status from approved requests",
		Long:  "Marks listings claimed when an approved request exists for them. Without an id every listing is checked.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var listingID utils.SixID
			if len(args) == 1 {
				id, err := utils.ParseSixID(args[0])
				if err != nil {
					return fmt.Errorf("invalid listing id %q: %w", args[0], err)
				}
				listingID = id
			}

			return a.withDB(cmd, func(ctx context.Context, database *mongo.Database) error {
				reconciler := services.NewReconcileService(
					services.NewListingService(database, a.cfg), services.NewRequestService(database))

				if listingID.IsZero() {
					n, err := reconciler.ReconcileAll(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "repaired %d listing(s)\n", n)
					return nil
				}

				repaired, err := reconciler.ReconcileListing(ctx, listingID)
				if err != nil {
					return err
				}
				if repaired {
					fmt.Fprintf(cmd.OutOrStdout(), "listing %s marked claimed\n", listingID)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "listing %s already consistent\n", listingID)
				}
				return nil
			})
		},
	}
}

func (a *admin) impactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "impact <owner-id>",
		Short: "Print a donor's impact record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(cmd, func(ctx context.Context, database *mongo.Database) error {
				impact, err := services.NewImpactService(database, a.cfg).GetImpact(ctx, args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(impact)
			})
		},
	}
}

func (a *admin) tokenCmd() *cobra.Command {
	var (
		isAdmin bool
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a development bearer token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.cfg.IsDev() {
				return fmt.Errorf("refusing to mint tokens with APP_ENV=%s", a.cfg.AppEnv)
			}
			if ttl <= 0 {
				ttl = a.cfg.JwtTTL
			}
			token, err := auth.GenerateJWT(args[0], isAdmin, a.cfg.JwtSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "include the admin claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to JWT_TTL_SECONDS)")
	return cmd
}
