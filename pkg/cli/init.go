package cli

import (
	// blank import for embeds
	_ "embed"
	"fmt"
	"os"
	"path"

	"github.com/spf13/cobra"

	"github.com/slipway-ci/slipway/pkg/global"
	"github.com/slipway-ci/slipway/pkg/util/console"
	"github.com/slipway-ci/slipway/pkg/util/files"
)

//go:embed init-templates/slipway.yaml
var slipwayYamlContent []byte

//go:embed init-templates/.github/workflows/release.yaml
var releaseWorkflowContent []byte

func newInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:        "init",
		SuggestFor: []string{"new", "start"},
		Short:      "Configure a project for slipway",
		RunE:       initCommand,
		Args:       cobra.MaximumNArgs(0),
	}
	addProjectDirFlag(cmd)
	return cmd
}

func initCommand(cmd *cobra.Command, args []string) error {
	dir := projectDirFlag
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		dir = cwd
	}

	console.Infof("Setting up %s for slipway...\n", dir)

	fileContentMap := map[string][]byte{
		global.ConfigFilename:            slipwayYamlContent,
		".github/workflows/release.yaml": releaseWorkflowContent,
	}

	for filename, content := range fileContentMap {
		filePath := path.Join(dir, filename)
		fileExists, err := files.Exists(filePath)
		if err != nil {
			return err
		}

		if fileExists {
			console.Infof("Skipped existing %s", filename)
			continue
		}

		dirPath := path.Dir(filePath)
		if err := os.MkdirAll(dirPath, os.ModePerm); err != nil {
			return fmt.Errorf("Error creating directory %s: %w", dirPath, err)
		}
		if err := os.WriteFile(filePath, content, 0o644); err != nil {
			return fmt.Errorf("Error writing %s: %w", filePath, err)
		}
		console.Infof("Created %s", filename)
	}

	console.Infof("\nNext: set the project name in %s and publish a release", global.ConfigFilename)
	return nil
}
