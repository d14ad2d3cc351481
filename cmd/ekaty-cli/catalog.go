package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Dhoini/ekaty/internal/app"
	"github.com/Dhoini/ekaty/internal/service"
	"github.com/spf13/cobra"
)

var (
	importFile    string
	importFormat  string
	placesQuery   string
	placesMaxPage int
)

// importCmd загрузка данных из файлов
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import data from files",
}

var importRestaurantsCmd = &cobra.Command{
	Use:   "restaurants",
	Short: "Import restaurants from a JSON or CSV file",
	Long: `Import restaurants from a JSON array or a CSV file with a header row.

Existing restaurants are matched by Google place id, then by slug, and updated in place.
The format is taken from --format or from the file extension.`,
	RunE: runImportRestaurants,
}

// placesCmd группа команд Google Places
var placesCmd = &cobra.Command{
	Use:   "places",
	Short: "Fill the catalog from Google Places",
}

var placesImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Search Google Places and upsert the results",
	RunE:  runPlacesImport,
}

var placesSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh every restaurant that has a place id",
	RunE:  runPlacesSync,
}

func init() {
	importRestaurantsCmd.Flags().StringVar(&importFile, "file", "", "path to the JSON or CSV file")
	importRestaurantsCmd.Flags().StringVar(&importFormat, "format", "", "json or csv")
	_ = importRestaurantsCmd.MarkFlagRequired("file")
	importCmd.AddCommand(importRestaurantsCmd)

	placesImportCmd.Flags().StringVar(&placesQuery, "query", "restaurants in Katy, TX", "text search query")
	placesImportCmd.Flags().IntVar(&placesMaxPage, "max-pages", 3, "result pages to fetch (1-3)")
	placesCmd.AddCommand(placesImportCmd, placesSyncCmd)
}

func runImportRestaurants(cmd *cobra.Command, _ []string) error {
	path := importFile
	format := strings.ToLower(importFormat)
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	if format != service.FormatJSON && format != service.FormatCSV {
		return fmt.Errorf("cannot detect format of %s, use --format", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
		report, err := a.Services.Import.ImportFile(ctx, f, format)
		if err != nil {
			return err
		}
		return printJSON(cmd, report)
	})
}

func runPlacesImport(cmd *cobra.Command, _ []string) error {
	if placesMaxPage < 1 || placesMaxPage > 3 {
		return fmt.Errorf("--max-pages must be between 1 and 3")
	}
	return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
		report, err := a.Services.Import.ImportPlaces(ctx, placesQuery, placesMaxPage)
		if err != nil {
			return err
		}
		return printJSON(cmd, report)
	})
}

func runPlacesSync(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
		report, err := a.Services.Import.SyncPlaces(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd, report)
	})
}
