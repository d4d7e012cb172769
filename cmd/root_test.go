package cmd

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags restores every flag of c and its subcommands to its default so
// values do not leak between executions of the shared rootCmd.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// executeCommand runs rootCmd with args against a fresh Viper and returns stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestRootCmd(t *testing.T) {
	output, err := executeCommand(t, "--help")
	require.NoError(t, err)

	assert.Contains(t, output, "KnowledgeWing - importance-aware knowledge memory")
	assert.Contains(t, output, "Usage:")
	assert.Contains(t, output, "Available Commands:")
	for _, name := range []string{"ingest", "search", "timeline", "history", "feedback", "sweep"} {
		assert.Contains(t, output, name)
	}
}

func TestVersion(t *testing.T) {
	assert.Equal(t, "0.3.0", GetVersion())

	output, err := executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "knowledgewing version 0.3.0\n", output)
}

func TestOutputFormat(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})

	viper.Reset()
	defer viper.Reset()

	f, err := outputFormat(cmd)
	require.NoError(t, err)
	assert.Equal(t, outputText, f, "non-file writers get text")

	viper.Set("output", "YAML")
	f, err = outputFormat(cmd)
	require.NoError(t, err)
	assert.Equal(t, outputYAML, f)

	viper.Set("output", "xml")
	_, err = outputFormat(cmd)
	assert.Error(t, err)
}

func TestPrintYAML_UsesJSONNames(t *testing.T) {
	var buf bytes.Buffer
	v := struct {
		EntryID string  `json:"entry_id"`
		Score   float64 `json:"score"`
		Skip    string  `json:"skip,omitempty"`
	}{EntryID: "e1", Score: 0.5}

	require.NoError(t, printYAML(&buf, v))
	assert.Equal(t, "entry_id: e1\nscore: 0.5\n", buf.String())
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"py", "go", "ts"}, splitList([]string{"py, go", " ", "ts,"}))
	assert.Nil(t, splitList(nil))
}
