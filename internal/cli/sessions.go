package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/gpchat/pkg/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect stored chat sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:          "list",
	Short:        "List stored sessions",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:          "show <id>",
	Short:        "Print a session transcript",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runSessionsShow,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runSessionsList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	infos, err := session.List(cfg.HistoryDir())
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no sessions found")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMESSAGES\tUPDATED")
	for _, info := range infos {
		fmt.Fprintf(w, "%d\t%d\t%s\n", info.ID, info.Messages, info.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid session id %q", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir := cfg.HistoryDir()

	infos, err := session.List(dir)
	if err != nil {
		return err
	}
	found := false
	for _, info := range infos {
		if info.ID == id {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("session %d not found in %s", id, dir)
	}

	st, err := session.Open(session.Options{Dir: dir, ResumeID: id, SystemPrompt: cfg.SystemMessage})
	if err != nil {
		return err
	}
	defer st.Close()

	for _, msg := range st.Messages() {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", msg.Role, msg.Content)
	}
	return nil
}
