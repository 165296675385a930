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
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eslsoft/lexmatrix/internal/adapter/format"
)

const (
	exportOutputKey     = "cli.export.output"
	exportGzipKey       = "cli.export.gzip"
	exportFormatKey     = "cli.export.format"
	exportDictionaryKey = "cli.export.dictionary"
	exportEntryKey      = "cli.export.entry"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a dictionary or a single entry as JSON, TEI or OntoLex",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()

		dictionaryID := viper.GetString(exportDictionaryKey)
		if dictionaryID == "" {
			return fmt.Errorf("--dictionary is required")
		}
		f, err := format.ParseExportFormat(viper.GetString(exportFormatKey))
		if err != nil {
			return err
		}

		c, cleanup, err := loadContainer(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		outputPath := viper.GetString(exportOutputKey)
		if outputPath == "" {
			outputPath = "-"
		}
		writer, closers, err := openOutput(cmd, outputPath, viper.GetBool(exportGzipKey))
		if err != nil {
			return fmt.Errorf("open output: %w", err)
		}
		defer runClosers(closers, &err)

		if entryID := viper.GetString(exportEntryKey); entryID != "" {
			err = c.Dictionaries.ExportEntry(ctx, dictionaryID, entryID, f, writer)
		} else {
			err = c.Dictionaries.ExportDictionary(ctx, dictionaryID, f, writer)
		}
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		if outputPath != "-" {
			cmd.PrintErrf("exported %s to %s\n", dictionaryID, outputPath)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringP("output", "o", "", "output path, - or empty writes standard output")
	exportCmd.Flags().Bool("gzip", false, "compress the output with gzip")
	exportCmd.Flags().StringP("format", "f", "ontolex", "json, tei or ontolex")
	exportCmd.Flags().String("dictionary", "", "dictionary id")
	exportCmd.Flags().String("entry", "", "export only this entry")

	bindFlagToViper(exportOutputKey, exportCmd.Flags().Lookup("output"))
	bindFlagToViper(exportGzipKey, exportCmd.Flags().Lookup("gzip"))
	bindFlagToViper(exportFormatKey, exportCmd.Flags().Lookup("format"))
	bindFlagToViper(exportDictionaryKey, exportCmd.Flags().Lookup("dictionary"))
	bindFlagToViper(exportEntryKey, exportCmd.Flags().Lookup("entry"))
}
