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
	"github.com/eslsoft/lexmatrix/internal/usecase"
)

const (
	importInputKey    = "cli.import.input"
	importURLKey      = "cli.import.url"
	importGzipKey     = "cli.import.gzip"
	importFormatKey   = "cli.import.format"
	importTargetKey   = "cli.import.dictionary"
	importReleaseKey  = "cli.import.release"
	importLanguageKey = "cli.import.source_language"
	importTargetsKey  = "cli.import.target_languages"
	importGenresKey   = "cli.import.genres"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a dictionary document into the configured store",
	Example: `  lexmatrix import -i cats.ttl --release PUBLIC
  lexmatrix import --url https://example.org/dict.xml --source-language de --genre gen,lrn
  gunzip -c dict.json.gz | lexmatrix import -i - --dictionary 0192f8a1c3b4d5e6f7a8b9c0`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()

		inputPath := viper.GetString(importInputKey)
		rawURL := viper.GetString(importURLKey)
		if (inputPath == "") == (rawURL == "") {
			return fmt.Errorf("exactly one of --input and --url is required")
		}
		f, err := format.ParseFormat(viper.GetString(importFormatKey))
		if err != nil {
			return err
		}

		c, cleanup, err := loadContainer(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		req := &usecase.ImportRequest{
			URL:             rawURL,
			Format:          f,
			TargetID:        viper.GetString(importTargetKey),
			Release:         viper.GetString(importReleaseKey),
			SourceLanguage:  viper.GetString(importLanguageKey),
			TargetLanguages: normalizeValues(viper.GetStringSlice(importTargetsKey)),
			Genres:          normalizeValues(viper.GetStringSlice(importGenresKey)),
		}
		if inputPath != "" {
			reader, closers, openErr := openInput(cmd, inputPath, viper.GetBool(importGzipKey))
			if openErr != nil {
				return fmt.Errorf("open input: %w", openErr)
			}
			defer runClosers(closers, &err)
			req.Body = reader
		}

		dict, err := c.Dictionaries.Import(ctx, req)
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), dict.ID)
		c.Logger.WithField("entries", dict.EntryCount).Infof("imported dictionary %s", dict.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringP("input", "i", "", "document path, - reads standard input")
	importCmd.Flags().String("url", "", "download the document from this URL")
	importCmd.Flags().Bool("gzip", false, "input is gzip compressed")
	importCmd.Flags().String("format", "", "turtle, rdfxml, tei or json (sniffed when empty)")
	importCmd.Flags().String("dictionary", "", "replace this dictionary, keeping entry ids")
	importCmd.Flags().String("release", "", "PUBLIC, NONCOMMERCIAL, RESEARCH or PRIVATE")
	importCmd.Flags().String("source-language", "", "source language of the dictionary")
	importCmd.Flags().StringSlice("target-language", nil, "target languages, comma separated or repeated")
	importCmd.Flags().StringSlice("genre", nil, "genres, comma separated or repeated")

	bindImportConfig()
}

func bindImportConfig() {
	bindFlagToViper(importInputKey, importCmd.Flags().Lookup("input"))
	bindFlagToViper(importURLKey, importCmd.Flags().Lookup("url"))
	bindFlagToViper(importGzipKey, importCmd.Flags().Lookup("gzip"))
	bindFlagToViper(importFormatKey, importCmd.Flags().Lookup("format"))
	bindFlagToViper(importTargetKey, importCmd.Flags().Lookup("dictionary"))
	bindFlagToViper(importReleaseKey, importCmd.Flags().Lookup("release"))
	bindFlagToViper(importLanguageKey, importCmd.Flags().Lookup("source-language"))
	bindFlagToViper(importTargetsKey, importCmd.Flags().Lookup("target-language"))
	bindFlagToViper(importGenresKey, importCmd.Flags().Lookup("genre"))
}
