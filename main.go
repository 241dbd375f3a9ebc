package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"runwayiq/campaign"
	"runwayiq/config"
	"runwayiq/importer"
	"runwayiq/models"
	"runwayiq/utils"
)

const (
	Version = "1.0.0"
	appName = "runwayiq"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          appName,
		Short:        "RunwayIQ sales operations backend",
		SilenceUsage: true,
	}

	cmd.AddCommand(serveCmd(), migrateCmd(), importCmd(), templateCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})
	return cmd
}

// bootstrap loads configuration, sets up logging and connects to the database
func bootstrap() error {
	if err := config.LoadConfig(); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	utils.ConfigureLogging(config.AppConfig.LogLevel, config.AppConfig.LogFormat)
	if err := utils.InitSentry(config.AppConfig.SentryDSN, config.AppConfig.Environment); err != nil {
		logrus.WithError(err).Warn("Sentry initialization failed")
	}
	return config.ConnectDB()
}

// loadTemplate reads the campaign template file, falling back to the built-in template
func loadTemplate(path string) (*campaign.Template, error) {
	if path == "" {
		return campaign.DefaultTemplate(), nil
	}
	return campaign.LoadTemplate(path)
}

func newEngine(db *gorm.DB, cfg *config.Config) (*campaign.Engine, error) {
	tmpl, err := loadTemplate(cfg.CampaignTemplatePath)
	if err != nil {
		return nil, err
	}
	return campaign.NewEngine(db, tmpl, utils.Logger("campaign"), campaign.WithLocation(cfg.Location())), nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			// ConnectDB migrates as part of connecting
			if err := bootstrap(); err != nil {
				return err
			}
			fmt.Println("Database is up to date")
			return nil
		},
	}
}

func templateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Print the effective campaign template as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			tmpl, err := loadTemplate(file)
			if err != nil {
				return err
			}
			out, err := tmpl.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", os.Getenv("CAMPAIGN_TEMPLATE_PATH"), "Template YAML file")
	return cmd
}

func importCmd() *cobra.Command {
	var (
		file           string
		userEmail      string
		owner          string
		startCampaigns bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import leads from a CSV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := bootstrap(); err != nil {
				return err
			}
			db := config.DB

			var user models.User
			if err := db.Where("email = ?", strings.ToLower(strings.TrimSpace(userEmail))).First(&user).Error; err != nil {
				return fmt.Errorf("user %s not found: %w", userEmail, err)
			}
			if owner == "" {
				owner = user.DisplayName()
			}

			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()

			rows, rowErrs, err := importer.ParseCSV(f)
			if err != nil {
				return err
			}

			engine, err := newEngine(db, &config.AppConfig)
			if err != nil {
				return err
			}
			im := importer.NewImporter(db, engine, utils.Logger("import"))
			result, err := im.Import(context.Background(), rows, importer.Options{
				UserID:         user.ID,
				Owner:          owner,
				Source:         importer.SourceCSV,
				StartCampaigns: startCampaigns,
			})
			if err != nil {
				return err
			}
			result.AddRowErrors(rowErrs)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, result.Message)
			if result.CampaignsCreated > 0 {
				fmt.Fprintf(out, "Campaigns created: %d\n", result.CampaignsCreated)
			}
			for _, e := range result.Errors {
				fmt.Fprintf(out, "  - %s\n", e)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "CSV file to import")
	cmd.Flags().StringVarP(&userEmail, "user", "u", "", "Email of the account the leads belong to")
	cmd.Flags().StringVar(&owner, "owner", "", "Owner label for imported leads (defaults to the user's name)")
	cmd.Flags().BoolVar(&startCampaigns, "start-campaigns", false, "Start a campaign for every imported lead")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
