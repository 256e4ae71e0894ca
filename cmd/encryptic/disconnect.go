package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vbgl/encryptic/internal/cloud"
	"github.com/vbgl/encryptic/internal/ui"
)

var disconnectCmd = &cobra.Command{
	Use:     "disconnect",
	GroupID: "setup",
	Short:   "Disconnect from the cloud backend",
	Long: `Release the backend session, for example revoking the remote-storage
token. Backends without a session have nothing to release.

With --forget the backend settings are also removed from the config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		forget, _ := cmd.Flags().GetBool("forget")

		adapter, err := openAdapter()
		if err != nil {
			return err
		}

		if _, ok := adapter.(cloud.Disconnecter); !ok {
			fmt.Printf("%s %s keeps no session\n", ui.RenderDim("·"), cfg.Backend)
		} else if err := cloud.Disconnect(cmd.Context(), adapter); err != nil {
			return fmt.Errorf("failed to disconnect: %w", err)
		} else {
			fmt.Printf("%s Disconnected from %s\n", ui.RenderPass("✓"), cfg.Backend)
		}

		if !forget {
			return nil
		}
		if cfg.File == "" {
			fmt.Printf("%s No config file to update\n", ui.RenderWarn("⚠"))
			return nil
		}

		switch cfg.BackendName() {
		case cloud.BackendDropbox:
			cfg.DropboxLike = nil
		default:
			cfg.RemoteStorage = nil
		}
		if err := writeConfig(cfg.File); err != nil {
			return err
		}
		fmt.Printf("%s Removed %s settings from %s\n", ui.RenderPass("✓"), cfg.Backend, cfg.File)
		return nil
	},
}

func init() {
	disconnectCmd.Flags().Bool("forget", false, "remove backend settings from the config file")
	rootCmd.AddCommand(disconnectCmd)
}
