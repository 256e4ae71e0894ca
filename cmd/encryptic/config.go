package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vbgl/encryptic/internal/cloud"
	"github.com/vbgl/encryptic/internal/config"
	"github.com/vbgl/encryptic/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Create or inspect the configuration",
}

var configInitCmd = &cobra.Command{
	Use:         "init",
	Annotations: map[string]string{annotationConfig: "optional"},
	Short:       "Write a config file for a backend",
	Long: `Write a config file, prompting for the backend, the profile and the
backend settings when run in a terminal.

Non-interactive use:
  encryptic config init --backend remote-storage --url https://storage.example.com/alice --token s3cret
  encryptic config init --backend dropbox-like --root ~/Dropbox/Apps/encryptic

The file is written to --config, or config.yaml in the encryptic config
directory. Use a .toml extension for TOML output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		url, _ := cmd.Flags().GetString("url")
		token, _ := cmd.Flags().GetString("token")
		root, _ := cmd.Flags().GetString("root")

		path := cfgFile
		if path == "" {
			path = filepath.Join(config.DefaultDir(), "config.yaml")
		}
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		backend := cfg.Backend
		profile := cfg.Profile
		current := cloud.Settings(cfg.RemoteStorage)
		if url == "" {
			url = current.String("url")
		}
		if token == "" {
			token = current.String("token")
		}
		if root == "" {
			root = cloud.Settings(cfg.DropboxLike).String("root")
		}

		if interactive() && !cmd.Flags().Changed("backend") {
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewSelect[string]().
						Title("Cloud backend").
						Options(
							huh.NewOption("remote-storage server", string(cloud.BackendRemoteStorage)),
							huh.NewOption("Dropbox-like synced folder", string(cloud.BackendDropbox)),
						).
						Value(&backend),
					huh.NewInput().
						Title("Profile").
						Value(&profile).
						Validate(notEmpty("profile")),
				),
				huh.NewGroup(
					huh.NewInput().Title("Server URL").Value(&url).Validate(notEmpty("url")),
					huh.NewInput().Title("Bearer token").EchoMode(huh.EchoModePassword).Value(&token),
				).WithHideFunc(func() bool { return backend != string(cloud.BackendRemoteStorage) }),
				huh.NewGroup(
					huh.NewInput().Title("Application folder").Value(&root).Validate(notEmpty("folder")),
				).WithHideFunc(func() bool { return backend != string(cloud.BackendDropbox) }),
			)
			if err := form.Run(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					fmt.Println("Aborted")
					return nil
				}
				return fmt.Errorf("failed to read answers: %w", err)
			}
		}

		out := config.Default()
		out.Backend = backend
		out.Profile = profile
		switch out.BackendName() {
		case cloud.BackendDropbox:
			if root == "" {
				return fmt.Errorf("--root is required for %s", cloud.BackendDropbox)
			}
			out.SetBackendSetting("root", expandHome(root))
		default:
			if url == "" {
				return fmt.Errorf("--url is required for %s", cloud.BackendRemoteStorage)
			}
			out.SetBackendSetting("url", url)
			if token != "" {
				out.SetBackendSetting("token", token)
			}
		}
		if err := out.Validate(); err != nil {
			return err
		}

		cfg = out
		if err := writeConfig(path); err != nil {
			return err
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	Long: `Print the configuration after merging defaults, the config file and
ENCRYPTIC_* environment variables. Tokens are masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		shown := *cfg
		shown.RemoteStorage = masked(cfg.RemoteStorage)
		shown.DropboxLike = masked(cfg.DropboxLike)

		data, err := config.Encode(&shown, "."+format)
		if err != nil {
			return err
		}

		source := cfg.File
		if source == "" {
			source = "defaults and environment"
		}
		fmt.Println(ui.RenderDim("# " + source))
		fmt.Print(string(data))
		return nil
	},
}

func writeConfig(path string) error {
	if err := config.Write(path, cfg); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func notEmpty(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func masked(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	out := make(map[string]any, len(settings))
	for k, v := range settings {
		if strings.Contains(strings.ToLower(k), "token") {
			v = "********"
		}
		out[k] = v
	}
	return out
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func init() {
	configInitCmd.Flags().Bool("force", false, "overwrite an existing config file")
	configInitCmd.Flags().String("url", "", "remote-storage server URL")
	configInitCmd.Flags().String("token", "", "remote-storage bearer token")
	configInitCmd.Flags().String("root", "", "dropbox-like application folder")
	configShowCmd.Flags().String("format", "yaml", "output format (yaml or toml)")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
