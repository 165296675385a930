package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eslsoft/lexmatrix/internal/entity"
)

func TestNormalizeValues(t *testing.T) {
	assert.Equal(t, []string{"gen", "lrn", "ety"}, normalizeValues([]string{" gen, lrn", "", "ety "}))
	assert.Nil(t, normalizeValues([]string{" ", ","}))
	assert.Nil(t, normalizeValues(nil))
}

func TestGzipRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "dict.ttl.gz")
	cmd := &cobra.Command{}

	w, closers, err := openOutput(cmd, path, false)
	require.NoError(t, err)
	_, err = io.WriteString(w, "@prefix ontolex: <http://www.w3.org/ns/lemon/ontolex#> .\n")
	require.NoError(t, err)
	runClosers(closers, &err)
	require.NoError(t, err)

	r, closers, err := openInput(cmd, path, false)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	runClosers(closers, &err)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "@prefix ontolex:"))
}

func TestOpenInput_Stdin(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader("{}"))
	r, closers, err := openInput(cmd, "-", false)
	require.NoError(t, err)
	assert.Empty(t, closers)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestImportExportCommands(t *testing.T) {
	if testing.Short() {
		t.Skip("uses a sqlite database file")
	}
	dir := t.TempDir()
	t.Setenv("DATABASE_DRIVER", "sqlite3")
	t.Setenv("DATABASE_DSN", "file:"+filepath.Join(dir, "lexmatrix.db")+"?_busy_timeout=5000")
	t.Setenv("LOG_LEVEL", "error")

	doc := filepath.Join(dir, "cats.ttl")
	require.NoError(t, os.WriteFile(doc, []byte(`@prefix ontolex: <http://www.w3.org/ns/lemon/ontolex#> .
@prefix lexinfo: <http://www.lexinfo.net/ontology/3.0/lexinfo#> .
@prefix skos: <http://www.w3.org/2004/02/skos/core#> .

<#cat-n> a ontolex:LexicalEntry ;
    ontolex:canonicalForm [ ontolex:writtenRep "cat"@en ] ;
    lexinfo:partOfSpeech lexinfo:commonNoun ;
    ontolex:sense <#cat-n-1> .
<#cat-n-1> skos:definition "a small domesticated carnivorous mammal"@en .
`), 0o644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	rootCmd.SetArgs([]string{"import", "-i", doc, "--release", "PUBLIC"})
	require.NoError(t, rootCmd.Execute())
	id := strings.TrimSpace(out.String())
	require.True(t, entity.ValidID(id), id)

	out.Reset()
	rootCmd.SetArgs([]string{"export", "--dictionary", id, "--format", "tei", "-o", "-"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), `<orth xml:lang="en">cat</orth>`)
	assert.Contains(t, out.String(), "a small domesticated carnivorous mammal")
}
