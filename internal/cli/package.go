package cli

import (
	"github.com/spf13/cobra"

	"github.com/datahub-project/datahub-upgrade/internal/artifact"
)

func PackageCmd(_ *app) *cobra.Command {
	var (
		version    string
		registry   string
		repository string
		properties []string
		output     string
	)

	cmd := &cobra.Command{
		Use:   "package",
		Short: "Print the archive and image plan of a release",
		Long: `Derives the archive name, image tag and docker build arguments of a release.

Snapshot versions are tagged "head", every other version "v<semver>".`,
		Example: `  datahub-upgrade package --version 0.14.1 --repository acryldata/datahub-upgrade
  datahub-upgrade package --version 0.15.0-SNAPSHOT --property githubMirrorUrl=https://mirror.local`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateFormat(output); err != nil {
				return err
			}
			props, err := artifact.ParseProperties(properties)
			if err != nil {
				return err
			}
			plan, err := artifact.NewPlan(registry, repository, version, props)
			if err != nil {
				return err
			}
			return printPlan(cmd.OutOrStdout(), plan, output)
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "release version")
	cmd.Flags().StringVar(&registry, "registry", "", "image registry host")
	cmd.Flags().StringVar(&repository, "repository", "acryldata/datahub-upgrade", "image repository")
	cmd.Flags().StringArrayVar(&properties, "property", nil, "build property as key=value, repeatable")
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format (supported values: table, json)")
	_ = cmd.MarkFlagRequired("version")

	return cmd
}
