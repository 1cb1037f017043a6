package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ioustamora/datamesh/internal/domain"
)

var quiet bool

// parseMeshURL parses a mesh:// URL and returns the catalog name.
func parseMeshURL(meshURL string) (string, error) {
	if !strings.HasPrefix(meshURL, "mesh://") {
		return "", fmt.Errorf("URL must start with mesh://")
	}
	return strings.TrimPrefix(meshURL, "mesh://"), nil
}

var putCmd = &cobra.Command{
	Use:   "put [file-path] [mesh://name]",
	Short: "Encrypt, erasure-code, and store a file across the mesh (destination optional - uses filename if not specified)",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		filePath := args[0]

		name := filepath.Base(filePath)
		if len(args) == 2 {
			parsed, err := parseMeshURL(args[1])
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				return
			}
			name = parsed
		}

		data, err := os.ReadFile(filePath)
		if err != nil {
			fmt.Printf("Error reading file: %v\n", err)
			return
		}

		tagList, _ := cmd.Flags().GetStringSlice("tags")

		err = withNode(func(ctx context.Context, n *node) error {
			var bar *progressbar.ProgressBar
			if !quiet {
				bar = progressbar.DefaultBytes(-1, fmt.Sprintf("encoding %s", name))
			}
			file, err := n.orch.Put(ctx, name, data, tagList)
			if err != nil {
				return err
			}
			if bar != nil {
				bar.Finish()
			}
			fmt.Printf("stored mesh://%s (fk=%s, health=%d%%)\n", file.Name, file.FK, file.Health)
			return nil
		})
		if err != nil {
			fmt.Printf("Error storing file: %v\n", err)
			os.Exit(1)
		}
	},
}

var getCmd = &cobra.Command{
	Use:   "get [mesh://name] [output-path]",
	Short: "Fetch, reconstruct, and decrypt a file from the mesh",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		meshURL, outputPath := args[0], args[1]

		name, err := parseMeshURL(meshURL)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}

		err = withNode(func(ctx context.Context, n *node) error {
			plaintext, _, err := n.orch.Get(ctx, name)
			if err != nil {
				return err
			}

			if stat, err := os.Stat(outputPath); err == nil && stat.IsDir() {
				outputPath = filepath.Join(outputPath, name)
			}
			if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
				return fmt.Errorf("creating output directory: %w", err)
			}
			return os.WriteFile(outputPath, plaintext, 0o644)
		})
		if err != nil {
			fmt.Printf("Error fetching file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("fetched mesh://%s -> %s\n", name, outputPath)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [mesh://name]",
	Short: "Remove a file's catalog entry",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name, err := parseMeshURL(args[0])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}

		err = withNode(func(ctx context.Context, n *node) error {
			return n.orch.Delete(ctx, name)
		})
		if err != nil {
			fmt.Printf("Error deleting file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("deleted mesh://%s\n", name)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog entries, optionally filtered by tag",
	Run: func(cmd *cobra.Command, args []string) {
		tag, _ := cmd.Flags().GetString("tag")

		var files []domain.File
		err := withNode(func(ctx context.Context, n *node) error {
			result, err := n.orch.List(ctx, tag)
			if err != nil {
				return err
			}
			files = result
			return nil
		})
		if err != nil {
			fmt.Printf("Error listing files: %v\n", err)
			os.Exit(1)
		}

		if len(files) == 0 {
			fmt.Println("no files found")
			return
		}
		for _, f := range files {
			fmt.Printf("  %-24s  size=%-10d  health=%-4d  tags=%v\n", f.Name, f.Size, f.Health, f.Tags)
		}
	},
}

var infoCmd = &cobra.Command{
	Use:   "info [mesh://name]",
	Short: "Show catalog metadata for a single file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name, err := parseMeshURL(args[0])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}

		err = withNode(func(ctx context.Context, n *node) error {
			file, err := n.orch.Info(ctx, name)
			if err != nil {
				return err
			}
			fmt.Printf("name:         %s\n", file.Name)
			fmt.Printf("file key:     %s\n", file.FK)
			fmt.Printf("size:         %d\n", file.Size)
			fmt.Printf("uploaded at:  %s\n", file.UploadedAt.Format("2006-01-02T15:04:05Z07:00"))
			fmt.Printf("owner:        %s\n", file.OwnerFP)
			fmt.Printf("health:       %d%%\n", file.Health)
			fmt.Printf("tags:         %v\n", file.Tags)
			return nil
		})
		if err != nil {
			fmt.Printf("Error fetching info: %v\n", err)
			os.Exit(1)
		}
	},
}

var repairCmd = &cobra.Command{
	Use:   "repair [mesh://name]",
	Short: "Probe a file's shards and regenerate any that are missing, within the parity budget",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name, err := parseMeshURL(args[0])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}

		err = withNode(func(ctx context.Context, n *node) error {
			return n.orch.Repair(ctx, name)
		})
		if err != nil {
			fmt.Printf("Error repairing file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("repaired mesh://%s\n", name)
	},
}

func init() {
	putCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
	putCmd.Flags().StringSlice("tags", nil, "Comma-separated tags to attach to the stored file")
	listCmd.Flags().String("tag", "", "Filter listed files to this tag")

	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(repairCmd)
}
