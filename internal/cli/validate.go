package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/storyva/storyva/internal/markup"
)

func init() {
	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate emotion markup in a text file",
		Long: "Check a marked-up story text against the tag vocabulary and " +
			"placement rules. Reads from stdin when no file is given. Exits " +
			"non-zero when the markup is invalid.",
		Args: cobra.MaximumNArgs(1),
		Run:  runValidate,
	}
	cmd.Flags().Bool("suggest", false, "Suggest corrections for unknown tags")
	RootCmd.AddCommand(cmd)
}

func runValidate(cmd *cobra.Command, args []string) {
	var (
		text []byte
		err  error
	)
	if len(args) == 1 {
		text, err = os.ReadFile(args[0])
	} else {
		text, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		exitErr("read input", err)
	}

	res := markup.Validate(string(text))

	if suggest, _ := cmd.Flags().GetBool("suggest"); suggest && !res.Valid {
		if fixed := markup.SuggestFix(string(text)); fixed != string(text) {
			fmt.Fprintln(os.Stderr, "suggested fix:")
			fmt.Fprintln(os.Stderr, fixed)
		}
	}

	b, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(b))

	if !res.Valid {
		os.Exit(1)
	}
}
