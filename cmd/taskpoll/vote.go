package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/taskpoll/page"
	"github.com/jpalmerr/taskpoll/vote"
)

// voteCmd casts a helpful/unhelpful vote on a review form.
var voteCmd = &cobra.Command{
	Use:   "vote <page-url> <yes|no>",
	Short: "Vote a review helpful or unhelpful",
	Long: `Load a page, apply a yes/no vote to one of its review vote forms,
and submit it. The updated tallies are printed once the submission finishes.

Example:
  taskpoll vote https://app.example.com/packages/foo/ yes
  taskpoll vote --form 2 https://app.example.com/packages/foo/ no`,
	Args: cobra.ExactArgs(2),
	RunE: runVote,
}

func init() {
	rootCmd.AddCommand(voteCmd)

	voteCmd.Flags().Int("form", 0, "index of the vote form on the page")
}

func parseChoice(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "y", "helpful":
		return true, nil
	case "no", "n", "unhelpful":
		return false, nil
	default:
		return false, fmt.Errorf("invalid vote %q (expected yes or no)", s)
	}
}

func runVote(cmd *cobra.Command, args []string) error {
	isHelpful, err := parseChoice(args[1])
	if err != nil {
		return err
	}
	index, _ := cmd.Flags().GetInt("form")

	logger := newLogger(cmd)
	client, err := newHTTPClient()
	if err != nil {
		return err
	}
	headers, err := headerPairs(cmd)
	if err != nil {
		return err
	}

	p, err := newPoller(cmd, client, logger)
	if err != nil {
		return err
	}
	defer p.Close()
	loader, err := page.NewController(p, page.WithHTTPClient(client), page.WithLogger(logger))
	if err != nil {
		return err
	}
	defer loader.Close()

	doc, err := loader.Load(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	widgets, err := vote.Find(doc, args[0])
	if err != nil {
		return err
	}
	if len(widgets) == 0 {
		return errors.New("no vote forms on page")
	}
	if index < 0 || index >= len(widgets) {
		return fmt.Errorf("form index %d out of range (page has %d vote forms)", index, len(widgets))
	}

	voter, err := vote.NewVoter(
		vote.WithHTTPClient(client),
		vote.WithLogger(logger),
		vote.WithHeaders(headers...),
	)
	if err != nil {
		return err
	}

	w := widgets[index]
	voter.Cast(cmd.Context(), w, isHelpful)
	voter.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "%s yes=%d no=%d\n", green("voted"), w.Count(true), w.Count(false))
	return nil
}
