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
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func bindFlagToViper(key string, flag *pflag.Flag) {
	if flag == nil {
		return
	}
	cobra.CheckErr(viper.BindPFlag(key, flag))
}

// normalizeValues trims values, drops empty ones and splits comma separated lists.
func normalizeValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	result := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if name := strings.TrimSpace(part); name != "" {
				result = append(result, name)
			}
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// gzipPath reports whether path names a gzip file.
func gzipPath(path string) bool {
	return path != "-" && strings.HasSuffix(strings.ToLower(path), ".gz")
}

// openInput opens path ("-" is stdin), transparently decompressing gzip input. The closers run
// in order.
func openInput(cmd *cobra.Command, path string, gzipped bool) (io.Reader, []func() error, error) {
	var (
		reader  = cmd.InOrStdin()
		closers []func() error
	)
	if path != "-" {
		file, err := os.Open(filepath.Clean(path))
		if err != nil {
			return nil, nil, err
		}
		reader = file
		closers = append(closers, file.Close)
	}
	if gzipped || gzipPath(path) {
		gzr, err := gzip.NewReader(reader)
		if err != nil {
			for _, c := range closers {
				_ = c()
			}
			return nil, nil, err
		}
		reader = gzr
		closers = append([]func() error{gzr.Close}, closers...)
	}
	return reader, closers, nil
}

// openOutput creates path ("-" is stdout), compressing when asked or when path ends in .gz.
func openOutput(cmd *cobra.Command, path string, gzipped bool) (io.Writer, []func() error, error) {
	var (
		writer  = cmd.OutOrStdout()
		closers []func() error
	)
	if path != "-" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, err
		}
		file, err := os.Create(path)
		if err != nil {
			return nil, nil, err
		}
		writer = file
		closers = append(closers, file.Close)
	}
	if gzipped || gzipPath(path) {
		gz := gzip.NewWriter(writer)
		writer = gz
		closers = append([]func() error{gz.Close}, closers...)
	}
	return writer, closers, nil
}

func runClosers(closers []func() error, err *error) {
	for _, closer := range closers {
		if cerr := closer(); cerr != nil && *err == nil {
			*err = cerr
		}
	}
}
