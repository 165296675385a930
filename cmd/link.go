/*
Copyright © 2025 Ambor <saltbo@foxmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/eslsoft/lexmatrix/internal/entity"
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Run the linking engine once over two dictionaries and print the grouped links",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		flags := cmd.Flags()

		side := func(prefix string) entity.LinkingSource {
			id, _ := flags.GetString(prefix)
			endpoint, _ := flags.GetString(prefix + "-endpoint")
			key, _ := flags.GetString(prefix + "-api-key")
			entries, _ := flags.GetStringSlice(prefix + "-entries")
			return entity.LinkingSource{Endpoint: endpoint, ID: id, APIKey: key, Entries: normalizeValues(entries)}
		}
		job := &entity.LinkingJob{
			ID:     entity.NewID(),
			Source: side("source"),
			Target: side("target"),
			State:  entity.LinkingProcessing,
		}
		if err := job.Source.Validate("source"); err != nil {
			return err
		}
		if err := job.Target.Validate("target"); err != nil {
			return err
		}
		if path, _ := flags.GetString("config"); path != "" {
			data, err := os.ReadFile(filepath.Clean(path))
			if err != nil {
				return fmt.Errorf("read engine config: %w", err)
			}
			if err := json.Unmarshal(data, &job.Config); err != nil {
				return fmt.Errorf("parse engine config: %w", err)
			}
		}

		c, cleanup, err := loadContainer(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		links, err := c.Linker.Link(ctx, job)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(entity.GroupLinks(links))
	},
}

func init() {
	rootCmd.AddCommand(linkCmd)

	for _, prefix := range []string{"source", "target"} {
		linkCmd.Flags().String(prefix, "", prefix+" dictionary id")
		linkCmd.Flags().String(prefix+"-endpoint", "", "fetch the "+prefix+" dictionary from this instance")
		linkCmd.Flags().String(prefix+"-api-key", "", "API key for the "+prefix+" endpoint")
		linkCmd.Flags().StringSlice(prefix+"-entries", nil, "restrict the "+prefix+" side to these entry ids")
	}
	linkCmd.Flags().String("config", "", "JSON file handed to the engine as its configuration")
}
